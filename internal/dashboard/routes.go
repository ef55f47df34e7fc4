package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/planner"
	"github.com/intent-engine/ie/internal/store"
)

// registerRoutes wires every dashboard HTTP endpoint. Every
// write made through this surface is stamped owner=human: a human is, by
// construction, the only actor looking at a browser dashboard.
func (s *Server) registerRoutes(projectRoot string) {
	s.engine.GET("/api/health", s.handleHealth)
	s.engine.GET("/ws", s.handleWebSocket)

	internal := s.engine.Group("/api/internal")
	internal.POST("/shutdown", s.handleShutdown)
	internal.POST("/cli-notify", s.handleCLINotify)

	api := s.engine.Group("/api")
	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.PATCH("/tasks/:id", s.handleUpdateTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)
	api.GET("/tasks/:id/ancestry", s.handleAncestry)
	api.GET("/tasks/:id/subtree", s.handleSubtree)
	api.POST("/tasks/:id/start", s.handleStartTask)
	api.POST("/tasks/:id/switch", s.handleSwitchTask)
	api.POST("/tasks/done", s.handleDoneTask)
	api.GET("/tasks/pick-next", s.handlePickNext)

	api.POST("/dependencies", s.handleAddDependency)
	api.DELETE("/dependencies", s.handleRemoveDependency)

	api.GET("/tasks/:id/events", s.handleListEvents)
	api.POST("/tasks/:id/events", s.handleAppendEvent)

	api.GET("/status", s.handleStatus)
	api.GET("/search", s.handleSearch)
	api.POST("/plan", s.handlePlan)
	api.GET("/diagnostics", s.handleDiagnostics)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleShutdown(c *gin.Context) {
	already := s.requestShutdown()
	c.JSON(http.StatusOK, gin.H{"success": true, "already_shutting_down": already})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, output.Error(models.NewPlanValidationError("invalid id", nil)))
		return 0, false
	}
	return id, true
}

// respond writes a store/planner result as the dashboard's JSON envelope,
// mapping recoverable domain errors to 409 and anything else to 500.
func respond(c *gin.Context, data any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		var re models.RecoverableError
		if errors.As(err, &re) {
			status = http.StatusConflict
		}
		c.JSON(status, output.Error(err))
		return
	}
	c.JSON(http.StatusOK, output.Success(data))
}

type createTaskBody struct {
	Name     string `json:"name" binding:"required"`
	Spec     string `json:"spec"`
	ParentID *int64 `json:"parent_id"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var body createTaskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}
	task, err := store.CreateTask(s.db, body.Name, body.Spec, body.ParentID, models.OwnerHuman)
	if err == nil {
		s.notify(WSTypeTaskChanged, task)
	}
	respond(c, task, err)
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	withEvents := c.Query("with_events") == "1" || c.Query("with_events") == "true"
	if withEvents {
		t, err := store.GetTaskWithEvents(s.db, id, 10)
		respond(c, t, err)
		return
	}
	t, err := store.GetTask(s.db, id)
	respond(c, t, err)
}

func (s *Server) handleListTasks(c *gin.Context) {
	var f store.FindTasksFilter
	if status := c.Query("status"); status != "" {
		st := models.TaskStatus(status)
		f.Status = &st
	}
	if pid := c.Query("parent_id"); pid != "" {
		v, err := strconv.ParseInt(pid, 10, 64)
		if err != nil {
			respond(c, nil, models.NewPlanValidationError("invalid parent_id", nil))
			return
		}
		f.ParentID = &v
	}
	if c.Query("top_level") == "1" || c.Query("top_level") == "true" {
		f.TopLevel = true
	}
	tasks, err := store.FindTasks(s.db, f)
	respond(c, tasks, err)
}

type updateTaskBody struct {
	Name          *string `json:"name"`
	Spec          *string `json:"spec"`
	ActiveForm    *string `json:"active_form"`
	Priority      *int    `json:"priority"`
	Complexity    *int    `json:"complexity"`
	Status        *string `json:"status"`
	ParentIDValue *int64  `json:"parent_id"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}

	var body updateTaskBody
	if err := json.Unmarshal(raw, &body); err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}

	u := store.TaskUpdate{
		Name:       body.Name,
		Spec:       body.Spec,
		ActiveForm: body.ActiveForm,
		Priority:   body.Priority,
		Complexity: body.Complexity,
	}
	if body.Status != nil {
		st := models.TaskStatus(*body.Status)
		u.Status = &st
	}
	if _, present := fields["parent_id"]; present {
		u.ParentSet = true
		u.ParentID = body.ParentIDValue
	}

	task, err := store.UpdateTask(s.db, id, u, false)
	if err == nil {
		s.notify(WSTypeTaskChanged, task)
	}
	respond(c, task, err)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	err := store.DeleteTask(s.db, id)
	if err == nil {
		s.notify(WSTypeTaskChanged, gin.H{"deleted_id": id})
	}
	respond(c, gin.H{"deleted": err == nil}, err)
}

func (s *Server) handleAncestry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	chain, err := store.GetAncestry(s.db, id)
	respond(c, chain, err)
}

func (s *Server) handleSubtree(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	subtree, err := store.GetSubtree(s.db, id)
	respond(c, subtree, err)
}

func (s *Server) handleStartTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	task, err := store.StartTask(s.db, id)
	if err == nil {
		s.notify(WSTypeTaskChanged, task)
		s.notify(WSTypeWorkspaceChanged, gin.H{"current_task_id": task.ID})
	}
	respond(c, task, err)
}

func (s *Server) handleSwitchTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	task, err := store.SwitchTask(s.db, id)
	if err == nil {
		s.notify(WSTypeTaskChanged, task)
		s.notify(WSTypeWorkspaceChanged, gin.H{"current_task_id": task.ID})
	}
	respond(c, task, err)
}

func (s *Server) handleDoneTask(c *gin.Context) {
	task, err := store.DoneTask(s.db, false)
	if err == nil {
		s.notify(WSTypeTaskChanged, task)
		s.notify(WSTypeWorkspaceChanged, gin.H{"current_task_id": nil})
	}
	respond(c, task, err)
}

func (s *Server) handlePickNext(c *gin.Context) {
	task, err := store.PickNext(s.db)
	respond(c, task, err)
}

type dependencyBody struct {
	BlockedTaskID  int64 `json:"blocked_task_id" binding:"required"`
	BlockingTaskID int64 `json:"blocking_task_id" binding:"required"`
}

func (s *Server) handleAddDependency(c *gin.Context) {
	var body dependencyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}
	err := store.AddDependency(s.db, body.BlockedTaskID, body.BlockingTaskID)
	if err == nil {
		s.notify(WSTypeTaskChanged, gin.H{"blocked_task_id": body.BlockedTaskID, "blocking_task_id": body.BlockingTaskID})
	}
	respond(c, gin.H{"added": err == nil}, err)
}

func (s *Server) handleRemoveDependency(c *gin.Context) {
	var body dependencyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}
	err := store.RemoveDependency(s.db, body.BlockedTaskID, body.BlockingTaskID)
	respond(c, gin.H{"removed": err == nil}, err)
}

func (s *Server) handleListEvents(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var f store.EventListFilter
	if k := c.Query("type"); k != "" {
		kind := models.EventKind(k)
		f.Kind = &kind
	}
	f.Since = c.Query("since")
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err == nil {
			f.Limit = n
		}
	}
	events, err := store.ListEvents(s.db, id, f)
	respond(c, events, err)
}

type appendEventBody struct {
	Kind    string `json:"type" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleAppendEvent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body appendEventBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}
	kind := models.EventKind(body.Kind)
	if !kind.Valid() {
		respond(c, nil, models.NewPlanValidationError("invalid event type: "+body.Kind, nil))
		return
	}
	event, err := store.AppendEvent(s.db, &id, kind, body.Message)
	if err == nil {
		s.notify(WSTypeEventAdded, event)
	}
	respond(c, event, err)
}

func (s *Server) handleStatus(c *gin.Context) {
	var id *int64
	if v := c.Query("id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respond(c, nil, models.NewPlanValidationError("invalid id", nil))
			return
		}
		id = &n
	}
	view, err := buildStatusView(s.db, id)
	respond(c, view, err)
}

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	opts := store.DefaultSearchOptions()
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	if c.Query("tasks") == "0" || c.Query("tasks") == "false" {
		opts.IncludeTasks = false
	}
	if c.Query("events") == "0" || c.Query("events") == "false" {
		opts.IncludeEvents = false
	}
	opts.SortByPriority = c.Query("sort_by_priority") == "1" || c.Query("sort_by_priority") == "true"

	results, err := store.Search(s.db, q, opts)
	respond(c, results, err)
}

func (s *Server) handlePlan(c *gin.Context) {
	var req planner.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, models.NewPlanValidationError(err.Error(), nil))
		return
	}
	result, err := planner.Plan(s.db, req, false)
	if err == nil {
		s.notify(WSTypeTaskChanged, result)
	}
	respond(c, result, err)
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	diags, err := store.RunDiagnostics(s.db)
	respond(c, diags, err)
}
