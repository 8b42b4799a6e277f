package builtin

import (
	"context"

	"handoff/internal/tools"
)

// echo returns its input. It keeps the ordinary (non-blocking) dispatch path
// of the gateway exercisable without pulling in real tool suites.
type echo struct{}

// NewEcho creates the echo tool.
func NewEcho() tools.Tool {
	return &echo{}
}

func (echo) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	text, _ := call.Params["text"].(string)
	if text == "" {
		return tools.Failure("text is required"), nil
	}
	return tools.Success(text), nil
}

func (echo) Definition() tools.Definition {
	return tools.Definition{
		Name:        "echo",
		Description: "Return the given text unchanged",
		Parameters: tools.ParameterSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"text": {Type: "string", Description: "Text to echo back"},
			},
			Required: []string{"text"},
		},
	}
}
