package store

import (
	"context"
	"database/sql"
	"strconv"
)

// GetCurrentTaskID returns the workspace singleton's focused task, or nil if unset.
func GetCurrentTaskID(q Querier) (*int64, error) {
	var v sql.NullString
	err := q.QueryRow(`SELECT value FROM workspace_state WHERE key = 'current_task_id'`).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v.String, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SetCurrentTaskID focuses id as the workspace singleton.
func SetCurrentTaskID(ctx context.Context, q execContexter, id int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO workspace_state (key, value, updated_at) VALUES ('current_task_id', ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, strconv.FormatInt(id, 10))
	return err
}

// ClearCurrentTaskID unsets the workspace singleton, e.g. on deletion of
// the focused task.
func ClearCurrentTaskID(ctx context.Context, q execContexter) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO workspace_state (key, value, updated_at) VALUES ('current_task_id', NULL, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = NULL, updated_at = CURRENT_TIMESTAMP
	`)
	return err
}

// ClearCurrentTaskIDIfMatches clears the singleton only if it currently
// points at id, used when deleting a task that may or may not be focused.
func ClearCurrentTaskIDIfMatches(ctx context.Context, tx *sql.Tx, id int64) error {
	current, err := GetCurrentTaskID(tx)
	if err != nil {
		return err
	}
	if current != nil && *current == id {
		return ClearCurrentTaskID(ctx, tx)
	}
	return nil
}
