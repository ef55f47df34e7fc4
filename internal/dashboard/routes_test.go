package dashboard

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/store"
)

func newTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.InitDBWithPath(filepath.Join(dir, "test.db"), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := DefaultServerConfig()
	cfg.ProjectRoot = dir
	srv, err := NewServer(db, cfg)
	require.NoError(t, err)
	return srv, db
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTaskViaAPI_IsHumanOwned(t *testing.T) {
	srv, db := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]any{"name": "Review"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, models.OwnerHuman, resp.Data.Owner)

	task, err := store.GetTask(db, resp.Data.ID)
	require.NoError(t, err)
	require.Equal(t, models.OwnerHuman, task.Owner)
}

func TestCreateTaskViaAPI_RequiresName(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]any{"spec": "nameless"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetTaskViaAPI_NotFoundMapsToConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/tasks/999", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "TaskNotFound", resp.ErrorCode)
}

func TestUpdateTaskViaAPI_NullParentDetaches(t *testing.T) {
	srv, db := newTestServer(t)
	parent, err := store.CreateTask(db, "parent", "", nil, models.OwnerHuman)
	require.NoError(t, err)
	child, err := store.CreateTask(db, "child", "", &parent.ID, models.OwnerHuman)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPatch,
		"/api/tasks/"+itoa(child.ID), map[string]any{"parent_id": nil})
	require.Equal(t, http.StatusOK, rec.Code)

	moved, err := store.GetTask(db, child.ID)
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)
}

func TestUpdateTaskViaAPI_DoneGatedByChildren(t *testing.T) {
	srv, db := newTestServer(t)
	parent, err := store.CreateTask(db, "parent", "", nil, models.OwnerHuman)
	require.NoError(t, err)
	_, err = store.CreateTask(db, "child", "", &parent.ID, models.OwnerHuman)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPatch,
		"/api/tasks/"+itoa(parent.ID), map[string]any{"status": "done"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "UncompletedChildren", resp.ErrorCode)

	unchanged, err := store.GetTask(db, parent.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusTodo, unchanged.Status)
}

func TestPlanViaAPI_ActsOnBehalfOfHuman(t *testing.T) {
	srv, db := newTestServer(t)
	review, err := store.CreateTask(db, "Review", "spec", nil, models.OwnerHuman)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/plan", map[string]any{
		"tasks": []map[string]any{{"name": "Review", "status": "done"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	task, err := store.GetTask(db, review.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusDone, task.Status)
}

func TestCLINotifyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/internal/cli-notify", map[string]any{
		"type":    WSTypeTaskChanged,
		"payload": map[string]any{"task_id": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownEndpoint_Idempotent(t *testing.T) {
	srv, _ := newTestServer(t)

	first := doJSON(t, srv, http.MethodPost, "/api/internal/shutdown", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, srv, http.MethodPost, "/api/internal/shutdown", nil)
	require.Equal(t, http.StatusOK, second.Code)

	var resp struct {
		AlreadyShuttingDown bool `json:"already_shutting_down"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	require.True(t, resp.AlreadyShuttingDown)
}

func TestSearchViaAPI(t *testing.T) {
	srv, db := newTestServer(t)
	_, err := store.CreateTask(db, "index the corpus", "", nil, models.OwnerHuman)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/api/search?q=corpus", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data store.SearchResults `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.TotalTasks)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
