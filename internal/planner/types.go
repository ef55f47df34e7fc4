// Package planner implements the declarative batch reconciliation
// operation: a tree of desired task specifications applied atomically
// against the store.
package planner

import (
	"encoding/json"
	"fmt"

	"github.com/intent-engine/ie/internal/models"
)

// ParentRef is the three-valued parent_id field: presence is tracked
// separately from value so "field omitted" (Present=false), "explicitly
// null" (Present=true, ID=nil), and "explicit id" (Present=true, ID!=nil)
// are distinguishable.
type ParentRef struct {
	Present bool
	ID      *int64
}

// TaskNode is one entry of the request's TaskTree.
type TaskNode struct {
	Name       string
	Spec       *string
	Status     *models.TaskStatus
	Priority   *int
	ActiveForm *string
	ParentID   ParentRef
	Children   []*TaskNode
	DependsOn  []string
}

// UnmarshalJSON implements the tri-state parent_id contract by inspecting
// raw key presence before applying Go's usual "absent == zero value" decoding.
func (n *TaskNode) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name       string             `json:"name"`
		Spec       *string            `json:"spec"`
		Status     *models.TaskStatus `json:"status"`
		Priority   *int               `json:"priority"`
		ActiveForm *string            `json:"active_form"`
		ParentID   json.RawMessage    `json:"parent_id"`
		Children   []*TaskNode        `json:"children"`
		DependsOn  []string           `json:"depends_on"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.Name = raw.Name
	n.Spec = raw.Spec
	n.Status = raw.Status
	n.Priority = raw.Priority
	n.ActiveForm = raw.ActiveForm
	n.Children = raw.Children
	n.DependsOn = raw.DependsOn

	if raw.ParentID != nil {
		n.ParentID.Present = true
		if string(raw.ParentID) == "null" {
			n.ParentID.ID = nil
		} else {
			var id int64
			if err := json.Unmarshal(raw.ParentID, &id); err != nil {
				return fmt.Errorf("parent_id: %w", err)
			}
			n.ParentID.ID = &id
		}
	}
	return nil
}

// Request is the top-level `plan` document: `{ "tasks": TaskTree[] }`.
type Request struct {
	Tasks []*TaskNode `json:"tasks"`
}

// NodeResult is the per-input-node outcome recorded in the summary.
type NodeResult struct {
	Name    string `json:"name"`
	TaskID  int64  `json:"task_id"`
	Created bool   `json:"created"`
}

// Result is the summary returned to the caller.
type Result struct {
	Nodes        []NodeResult `json:"nodes"`
	TasksCreated int          `json:"tasks_created"`
	TasksUpdated int          `json:"tasks_updated"`
	EdgesAdded   int          `json:"edges_added"`
	Warnings     []string     `json:"warnings"`
}
