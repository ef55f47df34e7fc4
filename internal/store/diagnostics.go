package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Diagnostic is a single read-only consistency finding surfaced by the
// doctor command.
type Diagnostic struct {
	Level           string `json:"level"` // "warning" or "error"
	Code            string `json:"code"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// RunDiagnostics performs read-only consistency checks and returns findings.
// It never mutates the store.
func RunDiagnostics(db *sql.DB) ([]Diagnostic, error) {
	var diags []Diagnostic

	checks := []func(*sql.DB) ([]Diagnostic, error){
		checkSchemaCurrent,
		checkFTSShadowTablesInSync,
		checkDanglingParents,
		checkDependencyAcyclicity,
		checkOrphanedFocus,
	}
	for _, check := range checks {
		found, err := check(db)
		if err != nil {
			return nil, err
		}
		diags = append(diags, found...)
	}
	return diags, nil
}

func checkSchemaCurrent(db *sql.DB) ([]Diagnostic, error) {
	current, latest, err := SchemaVersion(db)
	if err != nil {
		return nil, fmt.Errorf("schema version check: %w", err)
	}
	if current < latest {
		return []Diagnostic{{
			Level:           "error",
			Code:            "SCHEMA_STALE",
			Message:         fmt.Sprintf("schema version %d is behind the latest %d", current, latest),
			SuggestedAction: "reopen the store on a write path to apply pending migrations",
		}}, nil
	}
	return nil, nil
}

func checkFTSShadowTablesInSync(db *sql.DB) ([]Diagnostic, error) {
	var diags []Diagnostic

	pairs := []struct {
		base, fts, code string
	}{
		{"tasks", "tasks_fts", "TASKS_FTS_OUT_OF_SYNC"},
		{"events", "events_fts", "EVENTS_FTS_OUT_OF_SYNC"},
	}
	for _, p := range pairs {
		var baseCount, ftsCount int
		if err := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM `+p.base).Scan(&baseCount); err != nil {
			return nil, fmt.Errorf("count %s: %w", p.base, err)
		}
		if err := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM `+p.fts).Scan(&ftsCount); err != nil {
			return nil, fmt.Errorf("count %s: %w", p.fts, err)
		}
		if baseCount != ftsCount {
			diags = append(diags, Diagnostic{
				Level:           "error",
				Code:            p.code,
				Message:         fmt.Sprintf("%s has %d rows but %s has %d", p.base, baseCount, p.fts, ftsCount),
				SuggestedAction: "rebuild the FTS5 shadow table (INSERT INTO <fts>(<fts>) VALUES('rebuild'))",
			})
		}
	}
	return diags, nil
}

func checkDanglingParents(db *sql.DB) ([]Diagnostic, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT t.id, t.parent_id FROM tasks t
		LEFT JOIN tasks p ON p.id = t.parent_id
		WHERE t.parent_id IS NOT NULL AND p.id IS NULL
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var diags []Diagnostic
	for rows.Next() {
		var id, parentID int64
		if err := rows.Scan(&id, &parentID); err != nil {
			return nil, err
		}
		diags = append(diags, Diagnostic{
			Level:           "error",
			Code:            "DANGLING_PARENT",
			Message:         fmt.Sprintf("task %d references missing parent %d", id, parentID),
			SuggestedAction: fmt.Sprintf("update task %d to clear or correct parent_id", id),
		})
	}
	return diags, rows.Err()
}

func checkDependencyAcyclicity(db *sql.DB) ([]Diagnostic, error) {
	edges, err := allDependencyEdges(db)
	if err != nil {
		return nil, err
	}
	if cyclePath, found := findAnyCycle(edges); found {
		return []Diagnostic{{
			Level:           "error",
			Code:            "DEPENDENCY_CYCLE",
			Message:         "dependency graph contains a cycle: " + fmt.Sprint(cyclePath),
			SuggestedAction: "remove one edge in the reported cycle",
		}}, nil
	}
	return nil, nil
}

func allDependencyEdges(db *sql.DB) (map[int64][]int64, error) {
	rows, err := db.QueryContext(context.Background(), `SELECT blocked_task_id, blocking_task_id FROM task_dependencies`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	edges := map[int64][]int64{}
	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		edges[a] = append(edges[a], b)
	}
	return edges, rows.Err()
}

// findAnyCycle runs an iterative depth-first color-marking traversal over
// the whole dependency graph; recursion could overflow on deep chains.
func findAnyCycle(edges map[int64][]int64) ([]int64, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int64]int{}
	for node := range edges {
		color[node] = white
	}

	type frame struct {
		node     int64
		path     []int64
		neighbor int
	}

	for start := range edges {
		if color[start] != white {
			continue
		}
		stack := []*frame{{node: start, path: []int64{start}}}
		color[start] = gray
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			neighbors := edges[top.node]
			if top.neighbor >= len(neighbors) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := neighbors[top.neighbor]
			top.neighbor++
			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, &frame{node: next, path: append(append([]int64{}, top.path...), next)})
			case gray:
				return append(append([]int64{}, top.path...), next), true
			}
		}
	}
	return nil, false
}

func checkOrphanedFocus(db *sql.DB) ([]Diagnostic, error) {
	currentID, err := GetCurrentTaskID(db)
	if err != nil {
		return nil, err
	}
	if currentID == nil {
		return nil, nil
	}

	var status sql.NullString
	err = db.QueryRowContext(context.Background(), `SELECT status FROM tasks WHERE id = ?`, *currentID).Scan(&status)
	if err == sql.ErrNoRows {
		return []Diagnostic{{
			Level:           "error",
			Code:            "ORPHANED_FOCUS",
			Message:         fmt.Sprintf("current_task_id %d does not reference any existing task", *currentID),
			SuggestedAction: "clear workspace focus",
		}}, nil
	}
	if err != nil {
		return nil, err
	}
	if status.String != "doing" {
		return []Diagnostic{{
			Level:           "warning",
			Code:            "ORPHANED_FOCUS",
			Message:         fmt.Sprintf("current_task_id %d points at a task with status %q, expected doing", *currentID, status.String),
			SuggestedAction: "switch focus to a doing task, or clear focus",
		}}, nil
	}
	return nil, nil
}
