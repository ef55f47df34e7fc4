package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intent-engine/ie/internal/models"
)

func TestAddDependency_RejectsSelfDependency(t *testing.T) {
	db := newTestStore(t)
	task, err := CreateTask(db, "solo", "", nil, models.OwnerAI)
	require.NoError(t, err)

	require.Error(t, AddDependency(db, task.ID, task.ID))
}

func TestAddDependency_RejectsMissingEndpoints(t *testing.T) {
	db := newTestStore(t)
	task, err := CreateTask(db, "real", "", nil, models.OwnerAI)
	require.NoError(t, err)

	err = AddDependency(db, task.ID, 999)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindTaskNotFound, kerr.Kind)
}

func TestAddDependency_IsIdempotent(t *testing.T) {
	db := newTestStore(t)
	a, err := CreateTask(db, "a", "", nil, models.OwnerAI)
	require.NoError(t, err)
	b, err := CreateTask(db, "b", "", nil, models.OwnerAI)
	require.NoError(t, err)

	require.NoError(t, AddDependency(db, a.ID, b.ID))
	require.NoError(t, AddDependency(db, a.ID, b.ID))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM task_dependencies`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestAddDependency_DetectsDirectCycle(t *testing.T) {
	db := newTestStore(t)
	a, err := CreateTask(db, "a", "", nil, models.OwnerAI)
	require.NoError(t, err)
	b, err := CreateTask(db, "b", "", nil, models.OwnerAI)
	require.NoError(t, err)

	require.NoError(t, AddDependency(db, a.ID, b.ID))

	err = AddDependency(db, b.ID, a.ID)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindCircularDependency, kerr.Kind)
	require.NotEmpty(t, kerr.Details["path"])
}

func TestAddDependency_DetectsTransitiveCycle(t *testing.T) {
	db := newTestStore(t)
	a, err := CreateTask(db, "a", "", nil, models.OwnerAI)
	require.NoError(t, err)
	b, err := CreateTask(db, "b", "", nil, models.OwnerAI)
	require.NoError(t, err)
	c, err := CreateTask(db, "c", "", nil, models.OwnerAI)
	require.NoError(t, err)

	require.NoError(t, AddDependency(db, a.ID, b.ID))
	require.NoError(t, AddDependency(db, b.ID, c.ID))

	err = AddDependency(db, c.ID, a.ID)
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, models.ErrorKindCircularDependency, kerr.Kind)
}

func TestIsBlocked_ClearsWhenBlockingDone(t *testing.T) {
	db := newTestStore(t)
	blocking, err := CreateTask(db, "blocking", "", nil, models.OwnerAI)
	require.NoError(t, err)
	blocked, err := CreateTask(db, "blocked", "", nil, models.OwnerAI)
	require.NoError(t, err)
	require.NoError(t, AddDependency(db, blocked.ID, blocking.ID))

	isBlocked, blockers, err := IsBlocked(db, blocked.ID)
	require.NoError(t, err)
	require.True(t, isBlocked)
	require.Equal(t, []int64{blocking.ID}, blockers)

	done := models.TaskStatusDone
	_, err = UpdateTask(db, blocking.ID, TaskUpdate{Status: &done}, true)
	require.NoError(t, err)

	isBlocked, _, err = IsBlocked(db, blocked.ID)
	require.NoError(t, err)
	require.False(t, isBlocked)
}

func TestRemoveDependency_Unblocks(t *testing.T) {
	db := newTestStore(t)
	blocking, err := CreateTask(db, "blocking", "", nil, models.OwnerAI)
	require.NoError(t, err)
	blocked, err := CreateTask(db, "blocked", "", nil, models.OwnerAI)
	require.NoError(t, err)
	require.NoError(t, AddDependency(db, blocked.ID, blocking.ID))
	require.NoError(t, RemoveDependency(db, blocked.ID, blocking.ID))

	isBlocked, _, err := IsBlocked(db, blocked.ID)
	require.NoError(t, err)
	require.False(t, isBlocked)
}
