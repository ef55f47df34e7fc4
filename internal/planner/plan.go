package planner

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/store"
)

// planItem is one TaskNode flattened out of its tree, in pre-order (a
// node always appears before its children).
type planItem struct {
	node       *TaskNode
	treeParent *planItem // nil when this node is a root of the request's TaskTree
	taskID     int64
	created    bool
}

// Plan executes the declarative batch reconciliation in a
// single transaction: every node is resolved, created, or updated, then
// depends_on edges are materialized, then (only after commit) any
// @file() source files queued for deletion are removed. callerIsAI gates
// the ownership rule that an AI-driven plan cannot complete a human task.
func Plan(db *sql.DB, req Request, callerIsAI bool) (*Result, error) {
	items := flatten(req.Tasks, nil)

	if err := validateNoDuplicateNames(items); err != nil {
		return nil, err
	}
	if err := validateSingleFocus(items); err != nil {
		return nil, err
	}

	var pendingDeletes []string
	for _, it := range items {
		if it.node.Spec == nil {
			continue
		}
		expanded, err := expandFileDirectives(*it.node.Spec, &pendingDeletes)
		if err != nil {
			return nil, models.NewPlanValidationError(err.Error(), map[string]string{"task": it.node.Name})
		}
		it.node.Spec = &expanded
	}

	// Transact may rerun the closure on a busy retry, so every accumulator
	// is reset at the top of each attempt.
	var result *Result

	err := store.Transact(db, func(tx *sql.Tx) error {
		result = &Result{}
		var doneQueue []*planItem
		resolved := map[string]int64{}

		for _, it := range items {
			existing, err := store.FindTaskByName(tx, it.node.Name)
			if err != nil {
				return err
			}

			parentID, err := resolveParent(tx, it, existing)
			if err != nil {
				return err
			}

			specVal := ""
			if existing != nil {
				specVal = existing.Spec
			}
			if it.node.Spec != nil {
				specVal = *it.node.Spec
			}

			var desiredStatus *models.TaskStatus
			if it.node.Status != nil {
				desiredStatus = it.node.Status
			}

			if existing != nil && existing.Status == models.TaskStatusDone &&
				desiredStatus != nil && *desiredStatus == models.TaskStatusDoing {
				return models.NewPlanValidationError(
					fmt.Sprintf("reopen not allowed: task %q is already done", it.node.Name),
					map[string]string{"task": it.node.Name})
			}

			transitioningToDoing := desiredStatus != nil && *desiredStatus == models.TaskStatusDoing &&
				(existing == nil || existing.Status != models.TaskStatusDoing)
			alreadyDoingNoSpec := desiredStatus != nil && *desiredStatus == models.TaskStatusDoing &&
				existing != nil && existing.Status == models.TaskStatusDoing

			if transitioningToDoing && specVal == "" {
				return models.NewPlanValidationError(
					fmt.Sprintf("task %q cannot transition to doing without a spec", it.node.Name),
					map[string]string{"task": it.node.Name})
			}
			if alreadyDoingNoSpec && specVal == "" {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("task %q is doing with no spec on file", it.node.Name))
			}

			if existing == nil {
				created, err := store.CreateTaskTx(tx, it.node.Name, specVal, parentID, models.OwnerAI)
				if err != nil {
					return err
				}
				it.taskID = created.ID
				it.created = true
				result.TasksCreated++

				u := store.TaskUpdate{}
				needsUpdate := false
				if it.node.Priority != nil {
					u.Priority = it.node.Priority
					needsUpdate = true
				}
				if it.node.ActiveForm != nil {
					u.ActiveForm = it.node.ActiveForm
					needsUpdate = true
				}
				if desiredStatus != nil && *desiredStatus != models.TaskStatusTodo && *desiredStatus != models.TaskStatusDone {
					u.Status = desiredStatus
					needsUpdate = true
				}
				if needsUpdate {
					if _, err := store.UpdateTaskTx(tx, it.taskID, u, callerIsAI); err != nil {
						return err
					}
				}
			} else {
				u := store.TaskUpdate{Spec: &specVal, ParentSet: true, ParentID: parentID}
				if it.node.Priority != nil {
					u.Priority = it.node.Priority
				}
				if it.node.ActiveForm != nil {
					u.ActiveForm = it.node.ActiveForm
				}
				if desiredStatus != nil && *desiredStatus != models.TaskStatusDone {
					u.Status = desiredStatus
				}
				if _, err := store.UpdateTaskTx(tx, existing.ID, u, callerIsAI); err != nil {
					return err
				}
				it.taskID = existing.ID
				result.TasksUpdated++
			}

			resolved[it.node.Name] = it.taskID
			result.Nodes = append(result.Nodes, NodeResult{Name: it.node.Name, TaskID: it.taskID, Created: it.created})

			if desiredStatus != nil && *desiredStatus == models.TaskStatusDone {
				doneQueue = append(doneQueue, it)
			}
			if desiredStatus != nil && *desiredStatus == models.TaskStatusDoing {
				if err := store.SetCurrentTaskID(context.Background(), tx, it.taskID); err != nil {
					return err
				}
			}
		}

		for i := len(doneQueue) - 1; i >= 0; i-- {
			it := doneQueue[i]

			done := models.TaskStatusDone
			if _, err := store.UpdateTaskTx(tx, it.taskID, store.TaskUpdate{Status: &done}, callerIsAI); err != nil {
				return err
			}
			if err := store.ClearCurrentTaskIDIfMatches(context.Background(), tx, it.taskID); err != nil {
				return err
			}
		}

		for _, it := range items {
			for _, depName := range it.node.DependsOn {
				blockingID, ok := resolved[depName]
				if !ok {
					existing, err := store.FindTaskByName(tx, depName)
					if err != nil {
						return err
					}
					if existing == nil {
						return models.NewPlanValidationError(
							fmt.Sprintf("task %q depends_on unknown task %q", it.node.Name, depName),
							map[string]string{"task": it.node.Name, "depends_on": depName})
					}
					blockingID = existing.ID
				}

				alreadyPresent, err := dependencyExists(tx, it.taskID, blockingID)
				if err != nil {
					return err
				}
				if err := store.AddDependencyTx(tx, it.taskID, blockingID); err != nil {
					return err
				}
				if !alreadyPresent {
					result.EdgesAdded++
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, path := range pendingDeletes {
		if rmErr := os.Remove(path); rmErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not remove %s after @file() expansion: %v", path, rmErr))
		}
	}

	return result, nil
}

// flatten walks the request's TaskTree in pre-order, so that every node
// appears after its ancestors.
func flatten(nodes []*TaskNode, treeParent *planItem) []*planItem {
	var out []*planItem
	for _, n := range nodes {
		it := &planItem{node: n, treeParent: treeParent}
		out = append(out, it)
		out = append(out, flatten(n.Children, it)...)
	}
	return out
}

func validateNoDuplicateNames(items []*planItem) error {
	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.node.Name] {
			return models.NewPlanValidationError(
				fmt.Sprintf("duplicate task name %q in request", it.node.Name),
				map[string]string{"task": it.node.Name})
		}
		seen[it.node.Name] = true
	}
	return nil
}

func validateSingleFocus(items []*planItem) error {
	var doing []string
	for _, it := range items {
		if it.node.Status != nil && *it.node.Status == models.TaskStatusDoing {
			doing = append(doing, it.node.Name)
		}
	}
	if len(doing) > 1 {
		return models.NewPlanValidationError(
			fmt.Sprintf("at most one task may be doing per request, got %d: %v", len(doing), doing), nil)
	}
	return nil
}

// resolveParent applies the parent priority chain: structural
// nesting first, then an explicit parent_id, then (new tasks only)
// auto-parenting to the current focus, then top-level.
func resolveParent(tx *sql.Tx, it *planItem, existing *models.Task) (*int64, error) {
	if it.treeParent != nil {
		id := it.treeParent.taskID
		return &id, nil
	}

	if it.node.ParentID.Present {
		if it.node.ParentID.ID == nil {
			return nil, nil
		}
		if _, err := store.GetTaskTx(tx, *it.node.ParentID.ID); err != nil {
			return nil, models.NewInvalidParent(*it.node.ParentID.ID)
		}
		id := *it.node.ParentID.ID
		return &id, nil
	}

	if existing == nil {
		current, err := store.GetCurrentTaskID(tx)
		if err != nil {
			return nil, err
		}
		return current, nil
	}

	return existing.ParentID, nil
}

func dependencyExists(tx *sql.Tx, blockedID, blockingID int64) (bool, error) {
	var exists int
	err := tx.QueryRow(`SELECT COUNT(*) FROM task_dependencies WHERE blocked_task_id = ? AND blocking_task_id = ?`,
		blockedID, blockingID).Scan(&exists)
	return exists > 0, err
}
