package tools

import "context"

// Result statuses surfaced to the agent engine.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Call carries one tool invocation request.
type Call struct {
	TaskID string         `json:"task_id"`
	Name   string         `json:"tool_name"`
	Params map[string]any `json:"params"`
}

// Result is the outcome of one tool execution. Tool-level failures are data,
// not Go errors: they ride in Status/Error so the agent can react to them.
type Result struct {
	Status string `json:"status"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

// Success builds a successful result.
func Success(output string) *Result {
	return &Result{Status: StatusSuccess, Output: output}
}

// Failure builds a failed result.
func Failure(message string) *Result {
	return &Result{Status: StatusError, Error: message}
}

// Tool executes one capability. Execute returns a non-nil error only for
// infrastructure faults; expected failures belong in the Result.
type Tool interface {
	Execute(ctx context.Context, call Call) (*Result, error)
	Definition() Definition
}

// Definition describes a tool for discovery and validation.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema is a minimal JSON-schema-shaped parameter description.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single tool parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}
