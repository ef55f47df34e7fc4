package planner

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/store"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := store.InitDBWithPath(filepath.Join(dir, "test.db"), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func parseRequest(t *testing.T, raw string) Request {
	t.Helper()
	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return req
}

func TestPlan_CreatesNestedTree(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{
		"tasks": [
			{"name": "root", "spec": "top level work", "children": [
				{"name": "child-a", "spec": "first child"},
				{"name": "child-b", "spec": "second child"}
			]}
		]
	}`)

	result, err := Plan(db, req, true)
	require.NoError(t, err)
	require.Equal(t, 3, result.TasksCreated)
	require.Equal(t, 0, result.TasksUpdated)
	require.Len(t, result.Nodes, 3)

	var childCount int
	root := result.Nodes[0]
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE parent_id = ?`, root.TaskID).Scan(&childCount))
	require.Equal(t, 2, childCount)
}

func TestPlan_DoingNodeBecomesWorkspaceFocus(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{
		"tasks": [
			{"name": "Auth", "status": "doing", "spec": "JWT", "children": [
				{"name": "Sign", "status": "todo"},
				{"name": "Verify", "status": "todo"}
			]}
		]
	}`)

	result, err := Plan(db, req, true)
	require.NoError(t, err)

	current, err := store.GetCurrentTaskID(db)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, result.Nodes[0].TaskID, *current)
}

func TestPlan_IdentityResolutionUpdatesExistingByName(t *testing.T) {
	db := testDB(t)
	_, err := store.CreateTask(db, "existing", "original spec", nil, models.OwnerAI)
	require.NoError(t, err)

	req := parseRequest(t, `{"tasks": [{"name": "existing", "priority": 1}]}`)
	result, err := Plan(db, req, true)
	require.NoError(t, err)
	require.Equal(t, 0, result.TasksCreated)
	require.Equal(t, 1, result.TasksUpdated)

	task, err := store.GetTask(db, result.Nodes[0].TaskID)
	require.NoError(t, err)
	require.Equal(t, "original spec", task.Spec)
	require.NotNil(t, task.Priority)
	require.Equal(t, 1, *task.Priority)
}

func TestPlan_RejectsDuplicateNamesInRequest(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{"tasks": [{"name": "dup"}, {"name": "dup"}]}`)

	_, err := Plan(db, req, true)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindPlanValidationError, kerr.Kind)
}

func TestPlan_RejectsMultipleDoingNodes(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{
		"tasks": [
			{"name": "a", "spec": "a", "status": "doing"},
			{"name": "b", "spec": "b", "status": "doing"}
		]
	}`)

	_, err := Plan(db, req, true)
	require.Error(t, err)
}

func TestPlan_DoingRequiresSpec(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{"tasks": [{"name": "no-spec", "status": "doing"}]}`)

	_, err := Plan(db, req, true)
	require.Error(t, err)
}

func TestPlan_RejectsReopenOfDoneTask(t *testing.T) {
	db := testDB(t)
	task, err := store.CreateTask(db, "finished", "spec", nil, models.OwnerAI)
	require.NoError(t, err)
	status := models.TaskStatusDone
	_, err = store.UpdateTask(db, task.ID, store.TaskUpdate{Status: &status}, true)
	require.NoError(t, err)

	req := parseRequest(t, `{"tasks": [{"name": "finished", "spec": "spec", "status": "doing"}]}`)
	_, err = Plan(db, req, true)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindPlanValidationError, kerr.Kind)
}

func TestPlan_CompletionGateBlocksParentWithOpenChildren(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{
		"tasks": [
			{"name": "parent", "spec": "p", "status": "done", "children": [
				{"name": "kid", "spec": "k"}
			]}
		]
	}`)

	_, err := Plan(db, req, true)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindUncompletedChildren, kerr.Kind)
}

func TestPlan_CompletionGatePassesWhenChildrenDoneInSameBatch(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{
		"tasks": [
			{"name": "parent", "spec": "p", "status": "done", "children": [
				{"name": "kid", "spec": "k", "status": "done"}
			]}
		]
	}`)

	result, err := Plan(db, req, true)
	require.NoError(t, err)

	parentID := result.Nodes[0].TaskID
	task, err := store.GetTask(db, parentID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusDone, task.Status)
}

func TestPlan_DependsOnMaterializesEdges(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{
		"tasks": [
			{"name": "blocker", "spec": "b"},
			{"name": "blocked", "spec": "x", "depends_on": ["blocker"]}
		]
	}`)

	result, err := Plan(db, req, true)
	require.NoError(t, err)
	require.Equal(t, 1, result.EdgesAdded)

	blockedID := result.Nodes[1].TaskID
	blocked, blocking, err := store.IsBlocked(db, blockedID)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Len(t, blocking, 1)
}

func TestPlan_DependsOnUnknownNameFails(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{"tasks": [{"name": "a", "spec": "a", "depends_on": ["ghost"]}]}`)

	_, err := Plan(db, req, true)
	require.Error(t, err)
}

func TestPlan_ExplicitNullParentForcesTopLevel(t *testing.T) {
	db := testDB(t)
	parent, err := store.CreateTask(db, "old-parent", "spec", nil, models.OwnerAI)
	require.NoError(t, err)
	child, err := store.CreateTask(db, "mover", "spec", &parent.ID, models.OwnerAI)
	require.NoError(t, err)

	req := parseRequest(t, `{"tasks": [{"name": "mover", "parent_id": null}]}`)
	_, err = Plan(db, req, true)
	require.NoError(t, err)

	updated, err := store.GetTask(db, child.ID)
	require.NoError(t, err)
	require.Nil(t, updated.ParentID)
}

func TestPlan_AFileDirectiveExpandsAndDeletesOnCommit(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("detailed spec body"), 0o644))

	req := parseRequest(t, `{"tasks": [{"name": "from-file", "spec": "`+`@file(`+path+`)`+`"}]}`)
	result, err := Plan(db, req, true)
	require.NoError(t, err)

	task, err := store.GetTask(db, result.Nodes[0].TaskID)
	require.NoError(t, err)
	require.Equal(t, "detailed spec body", task.Spec)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestPlan_AFileDirectiveWithKeepPreservesSource(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o644))

	req := parseRequest(t, `{"tasks": [{"name": "from-file-kept", "spec": "`+`@file(`+path+`, keep)`+`"}]}`)
	_, err := Plan(db, req, true)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestPlan_MissingFileDirectiveAbortsBeforeAnyWrite(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{"tasks": [{"name": "ghost-file", "spec": "@file(/nope/nope.md)"}]}`)

	_, err := Plan(db, req, true)
	require.Error(t, err)

	tasks, err := store.ListAllTasks(db)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestPlan_NewTaskAutoParentsToCurrentFocus(t *testing.T) {
	db := testDB(t)
	focus, err := store.CreateTask(db, "focused", "spec", nil, models.OwnerAI)
	require.NoError(t, err)
	_, err = store.StartTask(db, focus.ID)
	require.NoError(t, err)

	req := parseRequest(t, `{"tasks": [{"name": "fresh", "spec": "spec"}]}`)
	result, err := Plan(db, req, true)
	require.NoError(t, err)

	task, err := store.GetTask(db, result.Nodes[0].TaskID)
	require.NoError(t, err)
	require.NotNil(t, task.ParentID)
	require.Equal(t, focus.ID, *task.ParentID)
}

func TestPlan_IdempotentReapplyYieldsSameState(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{"tasks": [{"name": "stable", "spec": "v1", "priority": 2}]}`)

	first, err := Plan(db, req, true)
	require.NoError(t, err)
	second, err := Plan(db, req, true)
	require.NoError(t, err)

	require.Equal(t, first.Nodes[0].TaskID, second.Nodes[0].TaskID)
	require.Equal(t, 1, first.TasksCreated)
	require.Equal(t, 1, second.TasksUpdated)

	tasks, err := store.ListAllTasks(db)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestPlan_CircularDependencyAcrossRequestRejected(t *testing.T) {
	db := testDB(t)
	_, err := store.CreateTask(db, "A", "a", nil, models.OwnerAI)
	require.NoError(t, err)
	_, err = store.CreateTask(db, "B", "b", nil, models.OwnerAI)
	require.NoError(t, err)

	req := parseRequest(t, `{"tasks": [
		{"name": "A", "depends_on": ["B"]},
		{"name": "B", "depends_on": ["A"]}
	]}`)

	_, err = Plan(db, req, true)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindCircularDependency, kerr.Kind)

	var edges int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM task_dependencies`).Scan(&edges))
	require.Zero(t, edges)
}

func TestPlan_AICannotCompleteHumanOwnedTask(t *testing.T) {
	db := testDB(t)
	review, err := store.CreateTask(db, "Review", "look it over", nil, models.OwnerHuman)
	require.NoError(t, err)

	req := parseRequest(t, `{"tasks": [{"name": "Review", "status": "done"}]}`)
	_, err = Plan(db, req, true)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindHumanTaskCannotBeCompletedByAI, kerr.Kind)

	unchanged, err := store.GetTask(db, review.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusTodo, unchanged.Status)

	// The same document applied on behalf of a human succeeds.
	result, err := Plan(db, req, false)
	require.NoError(t, err)
	done, err := store.GetTask(db, result.Nodes[0].TaskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusDone, done.Status)
}

func TestPlan_FailedRequestLeavesNoPartialEffects(t *testing.T) {
	db := testDB(t)
	req := parseRequest(t, `{"tasks": [
		{"name": "ok", "spec": "fine"},
		{"name": "broken", "spec": "x", "depends_on": ["nowhere"]}
	]}`)

	_, err := Plan(db, req, true)
	require.Error(t, err)

	tasks, err := store.ListAllTasks(db)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestPlan_ExplicitParentIDReparents(t *testing.T) {
	db := testDB(t)
	newParent, err := store.CreateTask(db, "new-parent", "spec", nil, models.OwnerAI)
	require.NoError(t, err)
	orphan, err := store.CreateTask(db, "orphan", "spec", nil, models.OwnerAI)
	require.NoError(t, err)

	req := parseRequest(t, fmt.Sprintf(`{"tasks": [{"name": "orphan", "parent_id": %d}]}`, newParent.ID))
	_, err = Plan(db, req, true)
	require.NoError(t, err)

	moved, err := store.GetTask(db, orphan.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.ParentID)
	require.Equal(t, newParent.ID, *moved.ParentID)
}

func TestTaskNode_ParentIDTriState(t *testing.T) {
	var absent TaskNode
	require.NoError(t, json.Unmarshal([]byte(`{"name": "a"}`), &absent))
	require.False(t, absent.ParentID.Present)

	var null TaskNode
	require.NoError(t, json.Unmarshal([]byte(`{"name": "a", "parent_id": null}`), &null))
	require.True(t, null.ParentID.Present)
	require.Nil(t, null.ParentID.ID)

	var set TaskNode
	require.NoError(t, json.Unmarshal([]byte(`{"name": "a", "parent_id": 7}`), &set))
	require.True(t, set.ParentID.Present)
	require.NotNil(t, set.ParentID.ID)
	require.Equal(t, int64(7), *set.ParentID.ID)
}
