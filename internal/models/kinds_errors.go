package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind is the closed set of stable error identifiers.
type ErrorKind string

const (
	ErrorKindNotInitialized                 ErrorKind = "NotInitialized"
	ErrorKindTaskNotFound                   ErrorKind = "TaskNotFound"
	ErrorKindInvalidParent                  ErrorKind = "InvalidParent"
	ErrorKindCircularDependency             ErrorKind = "CircularDependency"
	ErrorKindUncompletedChildren            ErrorKind = "UncompletedChildren"
	ErrorKindTaskBlocked                    ErrorKind = "TaskBlocked"
	ErrorKindHumanTaskCannotBeCompletedByAI ErrorKind = "HumanTaskCannotBeCompletedByAI"
	ErrorKindNoCurrentTask                  ErrorKind = "NoCurrentTask"
	ErrorKindPlanValidationError            ErrorKind = "PlanValidationError"
	ErrorKindStoreError                     ErrorKind = "StoreError"
	ErrorKindDashboardUnavailable           ErrorKind = "DashboardUnavailable"
)

// KindError is a RecoverableError carrying one of the closed ErrorKind values
// plus structured details. output.Error renders it as the flat error,
// error_code, error_context and suggested_action fields of the response
// envelope; there is no nested {"error":{"kind","message","details"}} object.
type KindError struct {
	Kind    ErrorKind
	Message string
	Details map[string]string
}

func (e *KindError) Error() string { return e.Message }

func (e *KindError) ErrorCode() string { return string(e.Kind) }

func (e *KindError) Context() map[string]string { return e.Details }

func (e *KindError) SuggestedAction() string {
	switch e.Kind {
	case ErrorKindNotInitialized:
		return "run the write path once to lazily initialize the store, or 'ie init'"
	case ErrorKindTaskNotFound:
		return "verify the task id and retry"
	case ErrorKindNoCurrentTask:
		return "focus a task first (start/spawn-subtask/switch) or pass an explicit task id"
	case ErrorKindTaskBlocked:
		return "complete the blocking task(s) first"
	case ErrorKindUncompletedChildren:
		return "complete all child tasks before completing the parent"
	case ErrorKindHumanTaskCannotBeCompletedByAI:
		return "ask a human collaborator to complete this task"
	case ErrorKindCircularDependency:
		return "remove one of the edges in the reported cycle"
	case ErrorKindPlanValidationError:
		return "fix the plan document and resubmit"
	default:
		return ""
	}
}

// NewTaskNotFound builds a TaskNotFound error for the given id.
func NewTaskNotFound(id int64) error {
	return &KindError{
		Kind:    ErrorKindTaskNotFound,
		Message: fmt.Sprintf("task not found: %d", id),
		Details: map[string]string{"id": strconv.FormatInt(id, 10)},
	}
}

// NewInvalidParent builds an InvalidParent error for the given parent id.
func NewInvalidParent(id int64) error {
	return &KindError{
		Kind:    ErrorKindInvalidParent,
		Message: fmt.Sprintf("invalid parent: %d", id),
		Details: map[string]string{"parent_id": strconv.FormatInt(id, 10)},
	}
}

// NewCircularDependency builds a CircularDependency error carrying the cycle path.
func NewCircularDependency(path []string) error {
	return &KindError{
		Kind:    ErrorKindCircularDependency,
		Message: "circular dependency: " + strings.Join(path, " -> "),
		Details: map[string]string{"path": strings.Join(path, ",")},
	}
}

// NewUncompletedChildren builds an UncompletedChildren error for taskID with the given open children.
func NewUncompletedChildren(taskID int64, childIDs []int64) error {
	strs := make([]string, len(childIDs))
	for i, c := range childIDs {
		strs[i] = strconv.FormatInt(c, 10)
	}
	return &KindError{
		Kind:    ErrorKindUncompletedChildren,
		Message: fmt.Sprintf("task %d has uncompleted children", taskID),
		Details: map[string]string{"task_id": strconv.FormatInt(taskID, 10), "child_ids": strings.Join(strs, ",")},
	}
}

// NewTaskBlocked builds a TaskBlocked error for taskID with the given blocking tasks.
func NewTaskBlocked(taskID int64, blockingIDs []int64) error {
	strs := make([]string, len(blockingIDs))
	for i, c := range blockingIDs {
		strs[i] = strconv.FormatInt(c, 10)
	}
	return &KindError{
		Kind:    ErrorKindTaskBlocked,
		Message: fmt.Sprintf("task %d is blocked", taskID),
		Details: map[string]string{"task_id": strconv.FormatInt(taskID, 10), "blocking_task_ids": strings.Join(strs, ",")},
	}
}

// NewHumanTaskCannotBeCompletedByAI builds the corresponding ownership error.
func NewHumanTaskCannotBeCompletedByAI(taskID int64) error {
	return &KindError{
		Kind:    ErrorKindHumanTaskCannotBeCompletedByAI,
		Message: fmt.Sprintf("task %d is human-owned and cannot be completed by an AI caller", taskID),
		Details: map[string]string{"task_id": strconv.FormatInt(taskID, 10)},
	}
}

// NewNoCurrentTask builds a NoCurrentTask error.
func NewNoCurrentTask() error {
	return &KindError{Kind: ErrorKindNoCurrentTask, Message: "no current task is focused"}
}

// NewNotInitialized builds a NotInitialized error.
func NewNotInitialized() error {
	return &KindError{Kind: ErrorKindNotInitialized, Message: "store is not initialized: no write has occurred yet"}
}

// NewPlanValidationError builds a PlanValidationError with a freeform reason.
func NewPlanValidationError(reason string, details map[string]string) error {
	return &KindError{Kind: ErrorKindPlanValidationError, Message: "plan validation failed: " + reason, Details: details}
}

// NewStoreError wraps a lower-level I/O, database, or lock error.
func NewStoreError(sub string, err error) error {
	return &KindError{
		Kind:    ErrorKindStoreError,
		Message: fmt.Sprintf("store error (%s): %v", sub, err),
		Details: map[string]string{"sub_kind": sub},
	}
}

// NewDashboardUnavailable builds a DashboardUnavailable error.
func NewDashboardUnavailable(reason string) error {
	return &KindError{Kind: ErrorKindDashboardUnavailable, Message: "dashboard unavailable: " + reason}
}
