package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"handoff/internal/events"
	"handoff/internal/hil"
	"handoff/internal/logging"
	"handoff/internal/tools"
)

// APIResponse is the generic envelope for mutation endpoints.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// hilTaskView is the API projection of a HIL task.
type hilTaskView struct {
	HILID       string `json:"hil_id"`
	Status      string `json:"status"`
	Instruction string `json:"instruction"`
	TaskID      string `json:"task_id"`
}

func viewOf(task hil.Task) hilTaskView {
	return hilTaskView{
		HILID:       task.HILID,
		Status:      string(task.Status),
		Instruction: task.Instruction,
		TaskID:      task.ContextID,
	}
}

// APIHandler wires the HTTP surface to the gateway and the HIL registry.
type APIHandler struct {
	gateway  *Gateway
	registry *hil.Registry
	history  *events.HistoryHandler
	logger   logging.Logger
}

// NewAPIHandler creates the API handler. history may be nil when event
// replay is disabled.
func NewAPIHandler(gateway *Gateway, registry *hil.Registry, history *events.HistoryHandler, logger logging.Logger) *APIHandler {
	return &APIHandler{
		gateway:  gateway,
		registry: registry,
		history:  history,
		logger:   logging.OrNop(logger),
	}
}

type executeRequest struct {
	TaskID   string         `json:"task_id"`
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
}

// ExecuteTool handles POST /api/tool/execute. For human_in_loop this blocks
// until the task resolves; gin serves each request on its own goroutine, so
// unrelated requests (including the resolution call for this very task) keep
// flowing.
func (h *APIHandler) ExecuteTool(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}
	if req.ToolName == "" {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: "tool_name is required"})
		return
	}
	if req.TaskID == "" {
		req.TaskID = "task-" + uuid.New().String()
	}

	result := h.gateway.Execute(c.Request.Context(), tools.Call{
		TaskID: req.TaskID,
		Name:   req.ToolName,
		Params: req.Params,
	})

	c.JSON(http.StatusOK, APIResponse{Success: true, Data: result})
}

// ListTools handles GET /api/tools.
func (h *APIHandler) ListTools(c *gin.Context) {
	defs := h.gateway.Tools()
	c.JSON(http.StatusOK, gin.H{"total": len(defs), "tools": defs})
}

// ListHILTasks handles GET /api/hil/tasks.
func (h *APIHandler) ListHILTasks(c *gin.Context) {
	tasks := h.registry.List()
	views := make([]hilTaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, viewOf(task))
	}
	c.JSON(http.StatusOK, gin.H{"total": len(views), "tasks": views})
}

// GetHILTask handles GET /api/hil/:hil_id.
func (h *APIHandler) GetHILTask(c *gin.Context) {
	hilID := c.Param("hil_id")

	task, err := h.registry.Get(hilID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"found": false, "error": "HIL task not found: " + hilID})
		return
	}

	view := viewOf(task)
	c.JSON(http.StatusOK, gin.H{
		"found":       true,
		"hil_id":      view.HILID,
		"status":      view.Status,
		"instruction": view.Instruction,
		"task_id":     view.TaskID,
	})
}

type completeRequest struct {
	Result string `json:"result"`
}

// CompleteHILTask handles POST /api/hil/complete/:hil_id. Completing an
// already-terminal task reports success: the first resolution wins.
func (h *APIHandler) CompleteHILTask(c *gin.Context) {
	hilID := c.Param("hil_id")

	// An empty or missing body is acceptable; result defaults to "".
	var req completeRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.registry.Complete(hilID, req.Result); err != nil {
		h.respondResolveError(c, hilID, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "HIL task " + hilID + " marked as completed"})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelHILTask handles POST /api/hil/cancel/:hil_id.
func (h *APIHandler) CancelHILTask(c *gin.Context) {
	hilID := c.Param("hil_id")

	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.registry.Cancel(hilID, req.Reason); err != nil {
		h.respondResolveError(c, hilID, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "HIL task " + hilID + " marked as cancelled"})
}

func (h *APIHandler) respondResolveError(c *gin.Context, hilID string, err error) {
	if errors.Is(err, hil.ErrNotFound) {
		c.JSON(http.StatusNotFound, APIResponse{Success: false, Error: "HIL task not found: " + hilID})
		return
	}
	h.logger.Error("Failed to resolve HIL task %s: %v", hilID, err)
	c.JSON(http.StatusInternalServerError, APIResponse{Success: false, Error: err.Error()})
}

// GetEventHistory handles GET /api/events/:call_id, replaying the stored
// lifecycle events of one run.
func (h *APIHandler) GetEventHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, APIResponse{Success: false, Error: "event history disabled"})
		return
	}

	callID := c.Param("call_id")
	history := h.history.Events(callID)
	if history == nil {
		history = []events.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "total": len(history), "events": history})
}
