package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handoff/internal/events"
	"handoff/internal/hil"
	"handoff/internal/logging"
	"handoff/internal/tools"
	"handoff/internal/tools/builtin"
)

type fixture struct {
	server   *Server
	registry *hil.Registry
	emitter  *events.Emitter
	history  *events.HistoryHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logging.Nop()
	registry := hil.NewRegistry(logger)
	emitter := events.NewEmitter(logger)
	history := events.NewHistoryHandler()
	emitter.Register(history)

	toolRegistry := tools.NewRegistry()
	require.NoError(t, toolRegistry.Register(builtin.NewHumanInLoop(registry, logger)))
	require.NoError(t, toolRegistry.Register(builtin.NewEcho()))

	gateway := NewGateway(toolRegistry, emitter, logger)
	api := NewAPIHandler(gateway, registry, history, logger)

	health := NewHealthChecker()
	health.RegisterProbe(NewRegistryProbe(registry))
	health.RegisterProbe(NewEmitterProbe(emitter))

	stream := NewStreamHub(logger)
	emitter.Register(stream)

	srv := New(Options{Addr: "127.0.0.1:0"}, api, health, stream, logger)
	return &fixture{server: srv, registry: registry, emitter: emitter, history: history}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["components"], 2)
}

func TestExecuteEchoTool(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{
		"task_id":   "task-1",
		"tool_name": "echo",
		"params":    map[string]any{"text": "hello"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, "hello", data["output"])
}

func TestExecuteUnknownToolFailsSoftly(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{
		"task_id":   "task-1",
		"tool_name": "no_such_tool",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "error", data["status"])
	assert.Contains(t, data["error"], "unknown tool")
}

func TestExecuteRequiresToolName(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{"task_id": "task-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHILScenarioCompleteUnblocksToolCall(t *testing.T) {
	f := newFixture(t)

	type response struct {
		code int
		body map[string]any
	}
	results := make(chan response, 1)
	go func() {
		rec := f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{
			"task_id":   "task-9",
			"tool_name": "human_in_loop",
			"params":    map[string]any{"hil_id": "HIL-1", "instruction": "upload file"},
		})
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		results <- response{rec.Code, body}
	}()

	waitForHILStatus(t, f, "HIL-1", "waiting")

	// The completion API lands while the tool call is still blocked.
	rec := f.do(t, http.MethodPost, "/api/hil/complete/HIL-1", map[string]any{"result": "uploaded data.csv"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	select {
	case res := <-results:
		require.Equal(t, http.StatusOK, res.code)
		data := res.body["data"].(map[string]any)
		assert.Equal(t, "success", data["status"])
		assert.Equal(t, "Human task completed: uploaded data.csv", data["output"])
	case <-time.After(2 * time.Second):
		t.Fatal("Blocked tool call never returned after completion")
	}
}

func TestHILScenarioCancelReturnsSuccessWithReason(t *testing.T) {
	f := newFixture(t)

	results := make(chan map[string]any, 1)
	go func() {
		rec := f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{
			"task_id":   "task-2",
			"tool_name": "human_in_loop",
			"params":    map[string]any{"hil_id": "HIL-2", "instruction": "review config"},
		})
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		results <- body
	}()

	waitForHILStatus(t, f, "HIL-2", "waiting")

	rec := f.do(t, http.MethodPost, "/api/hil/cancel/HIL-2", map[string]any{"reason": "not needed"})
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case body := <-results:
		data := body["data"].(map[string]any)
		assert.Equal(t, "success", data["status"])
		assert.Equal(t, "User cancelled: not needed", data["output"])
	case <-time.After(2 * time.Second):
		t.Fatal("Blocked tool call never returned after cancellation")
	}
}

func TestHILGetAndList(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.registry.Create("HIL-1", "task-1", "upload file", 0))

	rec := f.do(t, http.MethodGet, "/api/hil/HIL-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "HIL-1", body["hil_id"])
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, "upload file", body["instruction"])
	assert.Equal(t, "task-1", body["task_id"])

	rec = f.do(t, http.MethodGet, "/api/hil/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["total"])
	tasks := body["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "HIL-1", tasks[0].(map[string]any)["hil_id"])
}

func TestHILUnknownID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/hil/UNKNOWN", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["found"])

	rec = f.do(t, http.MethodPost, "/api/hil/complete/UNKNOWN", map[string]any{"result": "r"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])

	rec = f.do(t, http.MethodPost, "/api/hil/cancel/UNKNOWN", map[string]any{"reason": "r"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestBlockedHILDoesNotDelayOtherRequests(t *testing.T) {
	f := newFixture(t)

	go func() {
		_ = f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{
			"task_id":   "task-3",
			"tool_name": "human_in_loop",
			"params":    map[string]any{"hil_id": "HIL-busy", "instruction": "wait"},
		})
	}()
	waitForHILStatus(t, f, "HIL-busy", "waiting")

	start := time.Now()
	rec := f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{
		"task_id":   "task-4",
		"tool_name": "echo",
		"params":    map[string]any{"text": "still responsive"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Unblock the waiter so the test goroutine exits.
	_ = f.registry.Complete("HIL-busy", "done")
}

func TestCompleteIsIdempotentOverHTTP(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Create("HIL-1", "task-1", "upload", 0))

	rec := f.do(t, http.MethodPost, "/api/hil/complete/HIL-1", map[string]any{"result": "first"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/hil/complete/HIL-1", map[string]any{"result": "second"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	task, err := f.registry.Get("HIL-1")
	require.NoError(t, err)
	assert.Equal(t, "first", task.Result)
}

func TestToolExecutionEmitsOrderedLifecycleEvents(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tool/execute", map[string]any{
		"task_id":   "task-ev",
		"tool_name": "echo",
		"params":    map[string]any{"text": "hi"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	history := f.history.Events("task-ev")
	require.Len(t, history, 2)
	assert.Equal(t, events.TypeToolCallStart, history[0].EventType())
	assert.Equal(t, events.TypeToolCallEnd, history[1].EventType())
}

func TestEventHistoryEndpoint(t *testing.T) {
	f := newFixture(t)

	f.emitter.Dispatch(events.NewAgentStart("call-7", "planner", "do a thing"))
	f.emitter.Dispatch(events.NewAgentEnd("call-7", "success", nil))

	rec := f.do(t, http.MethodGet, "/api/events/call-7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["total"])

	rec = f.do(t, http.MethodGet, "/api/events/call-unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total"])
}

func waitForHILStatus(t *testing.T, f *fixture, hilID, status string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task, err := f.registry.Get(hilID); err == nil && string(task.Status) == status {
			// Let the awaiting goroutine attach before resolving.
			time.Sleep(20 * time.Millisecond)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("HIL task %s never reached status %s", hilID, status)
}
