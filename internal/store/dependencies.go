package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/intent-engine/ie/internal/models"
)

// AddDependency records that blockedID cannot enter doing until blockingID is
// done. Checked for existence of both endpoints and acyclicity
// across the combined graph before insertion.
func AddDependency(db *sql.DB, blockedID, blockingID int64) error {
	return Transact(db, func(tx *sql.Tx) error {
		return AddDependencyTx(tx, blockedID, blockingID)
	})
}

// AddDependencyTx is the in-transaction variant of AddDependency.
func AddDependencyTx(tx *sql.Tx, blockedID, blockingID int64) error {
	if blockedID == blockingID {
		return models.NewPlanValidationError("a task cannot depend on itself", map[string]string{"task_id": fmt.Sprint(blockedID)})
	}

	for _, id := range []int64{blockedID, blockingID} {
		var exists int
		if err := tx.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM tasks WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("verify task %d: %w", id, err)
		}
		if exists == 0 {
			return models.NewTaskNotFound(id)
		}
	}

	if cyclePath, found := detectDependencyCycleTx(tx, blockedID, blockingID); found {
		return models.NewCircularDependency(cyclePath)
	}

	_, err := tx.ExecContext(context.Background(), `
		INSERT OR IGNORE INTO task_dependencies (blocked_task_id, blocking_task_id) VALUES (?, ?)
	`, blockedID, blockingID)
	if err != nil {
		return fmt.Errorf("insert dependency: %w", err)
	}
	return nil
}

// detectDependencyCycleTx performs BFS from blockingID following existing
// "blocked by" edges; if it reaches blockedID, adding blockedID→blockingID
// would create a cycle. Max 1000 nodes bounds runaway traversals.
func detectDependencyCycleTx(tx *sql.Tx, blockedID, blockingID int64) (path []string, found bool) {
	const maxNodes = 1000

	visited := map[int64]bool{blockingID: true}
	parent := map[int64]int64{}
	queue := []int64{blockingID}
	examined := 0

	for len(queue) > 0 && examined < maxNodes {
		current := queue[0]
		queue = queue[1:]
		examined++

		rows, err := tx.QueryContext(context.Background(), `
			SELECT blocking_task_id FROM task_dependencies WHERE blocked_task_id = ?
		`, current)
		if err != nil {
			return nil, false
		}
		var neighbors []int64
		for rows.Next() {
			var n int64
			if rows.Scan(&n) == nil {
				neighbors = append(neighbors, n)
			}
		}
		rows.Close()

		for _, n := range neighbors {
			if n == blockedID {
				return reconstructCyclePath(parent, blockingID, current, blockedID), true
			}
			if !visited[n] {
				visited[n] = true
				parent[n] = current
				queue = append(queue, n)
			}
		}
	}
	return nil, false
}

func reconstructCyclePath(parent map[int64]int64, root, leaf, closing int64) []string {
	var ids []int64
	cur := leaf
	ids = append(ids, cur)
	for cur != root {
		p, ok := parent[cur]
		if !ok {
			break
		}
		ids = append(ids, p)
		cur = p
	}
	// ids is leaf->...->root; reverse to root->...->leaf, then append the
	// closing edge back to the task that would gain the new dependency.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	ids = append(ids, closing)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprint(id)
	}
	return out
}

// RemoveDependency deletes a "blocked by" edge, if present.
func RemoveDependency(db *sql.DB, blockedID, blockingID int64) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			DELETE FROM task_dependencies WHERE blocked_task_id = ? AND blocking_task_id = ?
		`, blockedID, blockingID)
		return err
	})
}

// IsBlocked reports whether any blocking task is not yet done.
func IsBlocked(q Querier, taskID int64) (bool, []int64, error) {
	rows, err := q.Query(`
		SELECT td.blocking_task_id
		FROM task_dependencies td
		JOIN tasks t ON t.id = td.blocking_task_id
		WHERE td.blocked_task_id = ? AND t.status != 'done'
	`, taskID)
	if err != nil {
		return false, nil, fmt.Errorf("query blocking tasks: %w", err)
	}
	defer rows.Close()

	var blocking []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return false, nil, err
		}
		blocking = append(blocking, id)
	}
	return len(blocking) > 0, blocking, rows.Err()
}
