package store

import (
	"database/sql"
	"time"

	"github.com/intent-engine/ie/internal/models"
)

// taskScanner encapsulates the common task row scanning logic shared by the
// single-row and multi-row task queries.
type taskScanner struct {
	task         models.Task
	spec         sql.NullString
	priority     sql.NullInt64
	complexity   sql.NullInt64
	parentID     sql.NullInt64
	activeForm   sql.NullString
	firstTodoAt  sql.NullTime
	firstDoingAt sql.NullTime
	firstDoneAt  sql.NullTime
}

// scan reads one row ordered: id, name, spec, status, priority, complexity,
// parent_id, owner, active_form, first_todo_at, first_doing_at, first_done_at,
// created_at, updated_at.
func (s *taskScanner) scan(row interface{ Scan(dest ...any) error }) error {
	return row.Scan(
		&s.task.ID,
		&s.task.Name,
		&s.spec,
		&s.task.Status,
		&s.priority,
		&s.complexity,
		&s.parentID,
		&s.task.Owner,
		&s.activeForm,
		&s.firstTodoAt,
		&s.firstDoingAt,
		&s.firstDoneAt,
		&s.task.CreatedAt,
		&s.task.UpdatedAt,
	)
}

func (s *taskScanner) hydrate() *models.Task {
	s.task.Spec = s.spec.String
	s.task.ActiveForm = s.activeForm.String
	if s.priority.Valid {
		v := int(s.priority.Int64)
		s.task.Priority = &v
	}
	if s.complexity.Valid {
		v := int(s.complexity.Int64)
		s.task.Complexity = &v
	}
	if s.parentID.Valid {
		v := s.parentID.Int64
		s.task.ParentID = &v
	}
	s.task.FirstTodoAt = scanNullTime(s.firstTodoAt)
	s.task.FirstDoingAt = scanNullTime(s.firstDoingAt)
	s.task.FirstDoneAt = scanNullTime(s.firstDoneAt)
	return &s.task
}

// scanTaskRow scans and hydrates a single task from a row-like value (either
// *sql.Row or *sql.Rows, both of which satisfy the Scan method set).
func scanTaskRow(row interface{ Scan(dest ...any) error }) (*models.Task, error) {
	s := &taskScanner{}
	if err := s.scan(row); err != nil {
		return nil, err
	}
	return s.hydrate(), nil
}

// scanNullTime converts sql.NullTime to *time.Time (nil if NULL).
func scanNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
