package builtin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"handoff/internal/hil"
	"handoff/internal/logging"
	"handoff/internal/tools"
)

// ToolNameHumanInLoop is the tool name the agent uses to hand work to a human.
const ToolNameHumanInLoop = "human_in_loop"

// humanInLoop suspends the calling tool request until an external actor
// resolves the HIL task through the API. Only the serving context of this one
// request blocks; the rest of the server keeps running.
type humanInLoop struct {
	registry *hil.Registry
	logger   logging.Logger
}

// NewHumanInLoop creates the human_in_loop tool backed by registry.
func NewHumanInLoop(registry *hil.Registry, logger logging.Logger) tools.Tool {
	return &humanInLoop{registry: registry, logger: logging.OrNop(logger)}
}

func (t *humanInLoop) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	hilID, _ := call.Params["hil_id"].(string)
	instruction, _ := call.Params["instruction"].(string)
	timeout := timeoutSeconds(call.Params["timeout"])

	if hilID == "" {
		return tools.Failure("hil_id is required"), nil
	}
	if instruction == "" {
		return tools.Failure("instruction is required"), nil
	}

	if err := t.registry.Create(hilID, call.TaskID, instruction, timeout); err != nil {
		if errors.Is(err, hil.ErrDuplicateID) {
			return tools.Failure(fmt.Sprintf("hil_id already in use: %s", hilID)), nil
		}
		return nil, err
	}

	t.logger.Info("Blocking on HIL task %s (timeout=%s)", hilID, timeout)

	task, err := t.registry.Await(ctx, hilID, timeout)
	if err != nil {
		if errors.Is(err, hil.ErrWaiterAttached) {
			return tools.Failure(fmt.Sprintf("hil task already awaited: %s", hilID)), nil
		}
		// Context cancellation: the caller is gone, but the task stays
		// resolvable through the API.
		return nil, err
	}

	switch task.Status {
	case hil.StatusCompleted:
		return tools.Success(fmt.Sprintf("Human task completed: %s", task.Result)), nil
	case hil.StatusCancelled:
		// A successful-but-redirecting outcome: the agent picks another path.
		return tools.Success(fmt.Sprintf("User cancelled: %s", task.Reason)), nil
	case hil.StatusTimeout:
		return tools.Failure("HIL task timed out"), nil
	default:
		return nil, fmt.Errorf("hil task %s woke in non-terminal state %s", hilID, task.Status)
	}
}

func (t *humanInLoop) Definition() tools.Definition {
	return tools.Definition{
		Name:        ToolNameHumanInLoop,
		Description: "Suspend execution and wait for a human to complete a task out of band",
		Parameters: tools.ParameterSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"hil_id":      {Type: "string", Description: "Unique id of the human task"},
				"instruction": {Type: "string", Description: "What the human is asked to do"},
				"timeout":     {Type: "number", Description: "Optional timeout in seconds; absent means unbounded wait"},
			},
			Required: []string{"hil_id", "instruction"},
		},
	}
}

// timeoutSeconds extracts an optional timeout parameter. JSON numbers decode
// as float64; integers show up when calls originate in Go code.
func timeoutSeconds(raw any) time.Duration {
	switch v := raw.(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}
