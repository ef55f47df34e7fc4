package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/intent-engine/ie/internal/models"
)

// CreateTask inserts a new todo task, stamping first_todo_at.
func CreateTask(db *sql.DB, name, spec string, parentID *int64, owner models.Owner) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		t, err := CreateTaskTx(tx, name, spec, parentID, owner)
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

// CreateTaskTx is the in-transaction variant of CreateTask.
func CreateTaskTx(tx *sql.Tx, name, spec string, parentID *int64, owner models.Owner) (*models.Task, error) {
	if parentID != nil {
		if _, err := getTaskTx(tx, *parentID); err != nil {
			return nil, models.NewInvalidParent(*parentID)
		}
	}

	res, err := tx.ExecContext(context.Background(), `
		INSERT INTO tasks (name, spec, status, parent_id, owner, first_todo_at, created_at, updated_at)
		VALUES (?, ?, 'todo', ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, name, spec, nullableInt64(parentID), string(owner))
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return getTaskTx(tx, id)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

const taskColumns = `id, name, spec, status, priority, complexity, parent_id, owner, active_form,
	first_todo_at, first_doing_at, first_done_at, created_at, updated_at`

// GetTask fetches a task by id.
func GetTask(db *sql.DB, id int64) (*models.Task, error) {
	t, err := scanTaskRow(db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, models.NewTaskNotFound(id)
	}
	return t, err
}

func getTaskTx(tx *sql.Tx, id int64) (*models.Task, error) {
	t, err := scanTaskRow(tx.QueryRowContext(context.Background(), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, models.NewTaskNotFound(id)
	}
	return t, err
}

// GetTaskTx is the in-transaction variant of GetTask, exported for callers
// (such as the plan reconciler) that need to read task state inside a
// transaction they control.
func GetTaskTx(tx *sql.Tx, id int64) (*models.Task, error) {
	return getTaskTx(tx, id)
}

// FindTaskByName returns the task most likely meant by name for plan
// identity resolution: the most recently created task with an exact name
// match, or nil if none exists. Names aren't globally unique, so ties are
// broken in favor of recency.
func FindTaskByName(q Querier, name string) (*models.Task, error) {
	row := q.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE name = ? ORDER BY created_at DESC, id DESC LIMIT 1`, name)
	t, err := scanTaskRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// eventCounts is the per-kind rollup used by GetTaskWithEvents.
func eventCounts(db *sql.DB, taskID int64) (int, map[string]int, error) {
	rows, err := db.Query(`SELECT log_type, COUNT(*) FROM events WHERE task_id = ? GROUP BY log_type`, taskID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	total := 0
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return 0, nil, err
		}
		counts[kind] = n
		total += n
	}
	return total, counts, rows.Err()
}

// GetTaskWithEvents returns a task plus a compact event summary.
func GetTaskWithEvents(db *sql.DB, id int64, recentN int) (*models.TaskWithEvents, error) {
	task, err := GetTask(db, id)
	if err != nil {
		return nil, err
	}

	total, counts, err := eventCounts(db, id)
	if err != nil {
		return nil, err
	}
	recent, err := ListEvents(db, id, EventListFilter{Limit: recentN})
	if err != nil {
		return nil, err
	}

	return &models.TaskWithEvents{
		Task: task,
		Events: &models.EventSummary{
			Total:        total,
			CountsByKind: counts,
			Recent:       recent,
		},
	}, nil
}

// GetAncestry returns the root-to-self chain for id.
func GetAncestry(db *sql.DB, id int64) ([]*models.Task, error) {
	task, err := GetTask(db, id)
	if err != nil {
		return nil, err
	}

	chain := []*models.Task{task}
	cur := task
	for cur.ParentID != nil {
		parent, err := GetTask(db, *cur.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append([]*models.Task{parent}, chain...)
		cur = parent
	}
	return chain, nil
}

// GetSubtree returns all direct and transitive children of id.
func GetSubtree(db *sql.DB, id int64) ([]*models.Task, error) {
	if _, err := GetTask(db, id); err != nil {
		return nil, err
	}

	var subtree []*models.Task
	frontier := []int64{id}
	for len(frontier) > 0 {
		var next []int64
		for _, pid := range frontier {
			children, err := listChildren(db, pid)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				subtree = append(subtree, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return subtree, nil
}

func listChildren(db *sql.DB, parentID int64) ([]*models.Task, error) {
	rows, err := db.Query(`SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? ORDER BY priority IS NULL, priority ASC, id ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]*models.Task, error) {
	var out []*models.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindTasksFilter narrows ListAll/Find.
type FindTasksFilter struct {
	Status   *models.TaskStatus
	ParentID *int64 // nil means "no filter"; set TopLevel to request parentless tasks only
	TopLevel bool
}

// FindTasks lists tasks narrowed by status and/or parent.
func FindTasks(db *sql.DB, f FindTasksFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if f.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*f.Status))
	}
	if f.TopLevel {
		query += ` AND parent_id IS NULL`
	} else if f.ParentID != nil {
		query += ` AND parent_id = ?`
		args = append(args, *f.ParentID)
	}
	query += ` ORDER BY id ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListAllTasks returns every task in the store, ordered by id.
func ListAllTasks(db *sql.DB) ([]*models.Task, error) {
	return FindTasks(db, FindTasksFilter{})
}

// TaskUpdate carries the optional fields an Update call may change.
// ParentID uses the three-valued convention: ParentSet=false means
// "leave unchanged"; ParentSet=true + ParentID=nil means "detach to top level".
type TaskUpdate struct {
	Name       *string
	Spec       *string
	ParentSet  bool
	ParentID   *int64
	Status     *models.TaskStatus
	Priority   *int
	Complexity *int
	ActiveForm *string
}

// UpdateTask applies a partial update, stamping first_*_at only the first
// time a status is reached. callerIsAI identifies the caller for the
// ownership rule on transitions to done.
func UpdateTask(db *sql.DB, id int64, u TaskUpdate, callerIsAI bool) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		t, err := UpdateTaskTx(tx, id, u, callerIsAI)
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

// UpdateTaskTx is the in-transaction variant of UpdateTask. Every status
// transition to done passes through the completion gate here, whichever
// surface requested it.
func UpdateTaskTx(tx *sql.Tx, id int64, u TaskUpdate, callerIsAI bool) (*models.Task, error) {
	current, err := getTaskTx(tx, id)
	if err != nil {
		return nil, err
	}

	if u.Status != nil && *u.Status == models.TaskStatusDone && current.Status != models.TaskStatusDone {
		if err := completionGateTx(tx, current, callerIsAI); err != nil {
			return nil, err
		}
	}

	if u.ParentSet {
		if u.ParentID != nil {
			if *u.ParentID == id {
				return nil, models.NewInvalidParent(*u.ParentID)
			}
			if _, err := getTaskTx(tx, *u.ParentID); err != nil {
				return nil, models.NewInvalidParent(*u.ParentID)
			}
		}
	}

	name := current.Name
	if u.Name != nil {
		name = *u.Name
	}
	spec := current.Spec
	if u.Spec != nil {
		spec = *u.Spec
	}
	priority := current.Priority
	if u.Priority != nil {
		priority = u.Priority
	}
	complexity := current.Complexity
	if u.Complexity != nil {
		complexity = u.Complexity
	}
	activeForm := current.ActiveForm
	if u.ActiveForm != nil {
		activeForm = *u.ActiveForm
	}
	parentID := current.ParentID
	if u.ParentSet {
		parentID = u.ParentID
	}

	setStampClause := ""
	if u.Status != nil && *u.Status != current.Status {
		switch *u.Status {
		case models.TaskStatusTodo:
			setStampClause = `, first_todo_at = COALESCE(first_todo_at, CURRENT_TIMESTAMP)`
		case models.TaskStatusDoing:
			setStampClause = `, first_doing_at = COALESCE(first_doing_at, CURRENT_TIMESTAMP)`
		case models.TaskStatusDone:
			setStampClause = `, first_done_at = COALESCE(first_done_at, CURRENT_TIMESTAMP)`
		}
	}
	status := current.Status
	if u.Status != nil {
		status = *u.Status
	}

	_, err = tx.ExecContext(context.Background(), `
		UPDATE tasks SET name = ?, spec = ?, priority = ?, complexity = ?, parent_id = ?, status = ?, active_form = ?,
			updated_at = CURRENT_TIMESTAMP`+setStampClause+`
		WHERE id = ?
	`, name, spec, priority, complexity, nullableInt64(parentID), status, activeForm, id)
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	return getTaskTx(tx, id)
}

// DeleteTask removes a childless task and its events; a task with children
// cannot be deleted. Clears workspace focus if the task was current.
func DeleteTask(db *sql.DB, id int64) error {
	return Transact(db, func(tx *sql.Tx) error {
		if _, err := getTaskTx(tx, id); err != nil {
			return err
		}

		var childCount int
		if err := tx.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM tasks WHERE parent_id = ?`, id).Scan(&childCount); err != nil {
			return err
		}
		if childCount > 0 {
			return models.NewPlanValidationError(fmt.Sprintf("task %d has children and cannot be deleted", id), map[string]string{"task_id": fmt.Sprint(id)})
		}

		if err := ClearCurrentTaskIDIfMatches(context.Background(), tx, id); err != nil {
			return err
		}

		_, err := tx.ExecContext(context.Background(), `DELETE FROM tasks WHERE id = ?`, id)
		return err
	})
}

// StartTask transitions id to doing and focuses it.
func StartTask(db *sql.DB, id int64) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		blocked, blocking, err := IsBlocked(tx, id)
		if err != nil {
			return err
		}
		if blocked {
			return models.NewTaskBlocked(id, blocking)
		}

		status := models.TaskStatusDoing
		t, err := UpdateTaskTx(tx, id, TaskUpdate{Status: &status}, true)
		if err != nil {
			return err
		}
		if err := SetCurrentTaskID(context.Background(), tx, id); err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

// DoneTask completes the current focused task and clears focus.
// callerIsAI gates the HumanTaskCannotBeCompletedByAI rule.
func DoneTask(db *sql.DB, callerIsAI bool) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		currentID, err := GetCurrentTaskID(tx)
		if err != nil {
			return err
		}
		if currentID == nil {
			return models.NewNoCurrentTask()
		}

		status := models.TaskStatusDone
		updated, err := UpdateTaskTx(tx, *currentID, TaskUpdate{Status: &status}, callerIsAI)
		if err != nil {
			return err
		}
		if err := ClearCurrentTaskID(context.Background(), tx); err != nil {
			return err
		}
		task = updated
		return nil
	})
	return task, err
}

// completionGateTx enforces the two rules guarding a transition to done:
// an AI caller may not complete a human-owned task, and a task may not
// complete while any child is not done.
func completionGateTx(tx *sql.Tx, t *models.Task, callerIsAI bool) error {
	if callerIsAI && t.Owner == models.OwnerHuman {
		return models.NewHumanTaskCannotBeCompletedByAI(t.ID)
	}
	uncompleted, err := uncompletedChildrenTx(tx, t.ID)
	if err != nil {
		return err
	}
	if len(uncompleted) > 0 {
		return models.NewUncompletedChildren(t.ID, uncompleted)
	}
	return nil
}

func uncompletedChildrenTx(tx *sql.Tx, parentID int64) ([]int64, error) {
	rows, err := tx.QueryContext(context.Background(), `SELECT id FROM tasks WHERE parent_id = ? AND status != 'done'`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SpawnSubtask creates a doing child of the current focus and makes it
// current.
func SpawnSubtask(db *sql.DB, name, spec string, owner models.Owner) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		currentID, err := GetCurrentTaskID(tx)
		if err != nil {
			return err
		}
		if currentID == nil {
			return models.NewNoCurrentTask()
		}

		child, err := CreateTaskTx(tx, name, spec, currentID, owner)
		if err != nil {
			return err
		}
		status := models.TaskStatusDoing
		child, err = UpdateTaskTx(tx, child.ID, TaskUpdate{Status: &status}, true)
		if err != nil {
			return err
		}
		if err := SetCurrentTaskID(context.Background(), tx, child.ID); err != nil {
			return err
		}
		task = child
		return nil
	})
	return task, err
}

// SwitchTask refocuses the workspace to id, transitioning it to doing if
// needed. The previously focused task, if any and not an ancestor of id,
// is left as-is; hierarchical multi-doing is permitted.
func SwitchTask(db *sql.DB, id int64) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		t, err := getTaskTx(tx, id)
		if err != nil {
			return err
		}

		if t.Status != models.TaskStatusDoing {
			blocked, blocking, err := IsBlocked(tx, id)
			if err != nil {
				return err
			}
			if blocked {
				return models.NewTaskBlocked(id, blocking)
			}
			status := models.TaskStatusDoing
			t, err = UpdateTaskTx(tx, id, TaskUpdate{Status: &status}, true)
			if err != nil {
				return err
			}
		}

		if err := SetCurrentTaskID(context.Background(), tx, id); err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

// PickNext recommends the next task to work on. Returns nil, nil
// when no eligible task exists.
func PickNext(db *sql.DB) (*models.Task, error) {
	var pick *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		currentID, err := GetCurrentTaskID(tx)
		if err != nil {
			return err
		}

		var candidates []*models.Task
		if currentID != nil {
			rows, err := tx.QueryContext(context.Background(), `
				SELECT `+taskColumns+` FROM tasks
				WHERE parent_id = ? AND status = 'todo'
				ORDER BY priority IS NULL, priority ASC, id ASC
			`, *currentID)
			if err != nil {
				return err
			}
			candidates, err = collectTasks(rows)
			if err != nil {
				return err
			}
		} else {
			rows, err := tx.QueryContext(context.Background(), `
				SELECT `+taskColumns+` FROM tasks
				WHERE parent_id IS NULL AND status = 'todo'
				ORDER BY priority IS NULL, priority ASC, id ASC
			`)
			if err != nil {
				return err
			}
			candidates, err = collectTasks(rows)
			if err != nil {
				return err
			}
		}

		for _, c := range candidates {
			blocked, _, err := IsBlocked(tx, c.ID)
			if err != nil {
				return err
			}
			if !blocked {
				pick = c
				return nil
			}
		}
		return nil
	})
	return pick, err
}
