package server

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"handoff/internal/events"
	"handoff/internal/logging"
	"handoff/internal/tools"
)

var toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "handoff_tool_executions_total",
	Help: "Tool executions, by tool name and result status.",
}, []string{"tool", "status"})

// Gateway receives tool-invocation requests, dispatches them to the tool
// registry, and publishes the run.tool.start/end lifecycle events around each
// execution. A blocking tool (human_in_loop) occupies only the serving
// context of its one request.
type Gateway struct {
	tools   *tools.Registry
	emitter *events.Emitter
	logger  logging.Logger
}

// NewGateway creates a gateway over the given tool registry and emitter.
func NewGateway(registry *tools.Registry, emitter *events.Emitter, logger logging.Logger) *Gateway {
	return &Gateway{
		tools:   registry,
		emitter: emitter,
		logger:  logging.OrNop(logger),
	}
}

// Execute runs one tool call to completion and returns its result. Expected
// failures (unknown tool, bad parameters, HIL timeout) come back as failed
// results, never as Go errors; only infrastructure faults error out.
func (g *Gateway) Execute(ctx context.Context, call tools.Call) *tools.Result {
	callID := call.TaskID
	g.emitter.Dispatch(events.NewToolCallStart(callID, call.Name, call.Params))

	result := g.execute(ctx, call)

	g.emitter.Dispatch(events.NewToolCallEnd(callID, call.Name, result.Status, map[string]any{
		"output": result.Output,
		"error":  result.Error,
	}))
	toolExecutions.WithLabelValues(call.Name, result.Status).Inc()
	return result
}

func (g *Gateway) execute(ctx context.Context, call tools.Call) *tools.Result {
	tool, err := g.tools.Get(call.Name)
	if err != nil {
		return tools.Failure(fmt.Sprintf("unknown tool: %s", call.Name))
	}

	result, err := tool.Execute(ctx, call)
	if err != nil {
		// Unexpected internal fault: surfaced on the error event channel, then
		// mapped to a tool failure so the serving process stays up.
		g.logger.Error("Tool %s failed internally: %v", call.Name, err)
		g.emitter.Dispatch(events.NewError(call.TaskID, fmt.Sprintf("tool %s: %v", call.Name, err)))
		return tools.Failure(fmt.Sprintf("internal error executing %s", call.Name))
	}
	return result
}

// Tools lists the definitions of every registered tool.
func (g *Gateway) Tools() []tools.Definition {
	return g.tools.List()
}
