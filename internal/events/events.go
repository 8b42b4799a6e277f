package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type tags follow the "phase.domain.action" convention:
//   - phase: prepare, run, agent, system
//   - domain: model, history, llm, tool, thinking, cli_display, error
//   - action: start, end, fail, select, load
const (
	TypeAgentStart     = "agent.start"
	TypeAgentEnd       = "agent.end"
	TypeModelSelection = "prepare.model.select"
	TypeHistoryLoad    = "prepare.history.load"
	TypeThinkingStart  = "run.thinking.start"
	TypeThinkingEnd    = "run.thinking.end"
	TypeThinkingFail   = "run.thinking.fail"
	TypeLLMCallStart   = "run.llm.start"
	TypeLLMCallEnd     = "run.llm.end"
	TypeToolCallStart  = "run.tool.start"
	TypeToolCallEnd    = "run.tool.end"
	TypeError          = "system.error"
	TypeCliDisplay     = "system.cli_display"
)

// Event is the contract every lifecycle and display event satisfies.
type Event interface {
	EventType() string
	EventCallID() string
}

// Base carries the fields shared by every event. Concrete events embed it so
// their JSON encodes flat: {"type":..., "call_id":..., "timestamp":..., ...}.
type Base struct {
	Type      string    `json:"type"`
	CallID    string    `json:"call_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (b Base) EventType() string   { return b.Type }
func (b Base) EventCallID() string { return b.CallID }

func newBase(eventType, callID string) Base {
	return Base{Type: eventType, CallID: callID, Timestamp: time.Now()}
}

// NewCallID returns a fresh correlation identifier for one agent run.
func NewCallID() string {
	return "call-" + uuid.New().String()
}

// IsDisplay reports whether the event is display-only (console output, never
// part of the programmatic lifecycle stream).
func IsDisplay(e Event) bool {
	return e.EventType() == TypeCliDisplay
}

// AgentStartEvent marks the beginning of an agent run.
type AgentStartEvent struct {
	Base
	AgentName string `json:"agent_name"`
	TaskInput string `json:"task_input"`
}

func NewAgentStart(callID, agentName, taskInput string) *AgentStartEvent {
	return &AgentStartEvent{Base: newBase(TypeAgentStart, callID), AgentName: agentName, TaskInput: taskInput}
}

// AgentEndEvent marks the end of an agent run, whatever the outcome.
type AgentEndEvent struct {
	Base
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
}

func NewAgentEnd(callID, status string, result map[string]any) *AgentEndEvent {
	return &AgentEndEvent{Base: newBase(TypeAgentEnd, callID), Status: status, Result: result}
}

// ModelSelectionEvent records which model the run settled on.
type ModelSelectionEvent struct {
	Base
	RequestedModel string `json:"requested_model"`
	FinalModel     string `json:"final_model"`
	IsFallback     bool   `json:"is_fallback"`
}

func NewModelSelection(callID, requested, final string, fallback bool) *ModelSelectionEvent {
	return &ModelSelectionEvent{Base: newBase(TypeModelSelection, callID), RequestedModel: requested, FinalModel: final, IsFallback: fallback}
}

// HistoryLoadEvent records how much prior context the run resumed with.
type HistoryLoadEvent struct {
	Base
	StartTurn        int `json:"start_turn"`
	ActionHistoryLen int `json:"action_history_len"`
	PendingToolCount int `json:"pending_tool_count"`
}

func NewHistoryLoad(callID string, startTurn, historyLen, pendingTools int) *HistoryLoadEvent {
	return &HistoryLoadEvent{Base: newBase(TypeHistoryLoad, callID), StartTurn: startTurn, ActionHistoryLen: historyLen, PendingToolCount: pendingTools}
}

// ThinkingStartEvent marks the start of a reasoning pass.
type ThinkingStartEvent struct {
	Base
	AgentName string `json:"agent_name"`
	IsInitial bool   `json:"is_initial"`
	IsForced  bool   `json:"is_forced"`
}

func NewThinkingStart(callID, agentName string, initial, forced bool) *ThinkingStartEvent {
	return &ThinkingStartEvent{Base: newBase(TypeThinkingStart, callID), AgentName: agentName, IsInitial: initial, IsForced: forced}
}

// ThinkingEndEvent carries the result of a successful reasoning pass.
type ThinkingEndEvent struct {
	Base
	AgentName string `json:"agent_name"`
	Result    string `json:"result"`
}

func NewThinkingEnd(callID, agentName, result string) *ThinkingEndEvent {
	return &ThinkingEndEvent{Base: newBase(TypeThinkingEnd, callID), AgentName: agentName, Result: result}
}

// ThinkingFailEvent marks a failed reasoning pass.
type ThinkingFailEvent struct {
	Base
	AgentName    string `json:"agent_name"`
	ErrorMessage string `json:"error_message"`
}

func NewThinkingFail(callID, agentName, errMsg string) *ThinkingFailEvent {
	return &ThinkingFailEvent{Base: newBase(TypeThinkingFail, callID), AgentName: agentName, ErrorMessage: errMsg}
}

// LLMCallStartEvent marks the start of an LLM request.
type LLMCallStartEvent struct {
	Base
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

func NewLLMCallStart(callID, model, systemPrompt string) *LLMCallStartEvent {
	return &LLMCallStartEvent{Base: newBase(TypeLLMCallStart, callID), Model: model, SystemPrompt: systemPrompt}
}

// LLMCallEndEvent carries the model output and any tool calls it requested.
type LLMCallEndEvent struct {
	Base
	Output    string           `json:"llm_output"`
	ToolCalls []map[string]any `json:"tool_calls,omitempty"`
}

func NewLLMCallEnd(callID, output string, toolCalls []map[string]any) *LLMCallEndEvent {
	return &LLMCallEndEvent{Base: newBase(TypeLLMCallEnd, callID), Output: output, ToolCalls: toolCalls}
}

// ToolCallStartEvent marks the start of one tool execution.
type ToolCallStartEvent struct {
	Base
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func NewToolCallStart(callID, toolName string, args map[string]any) *ToolCallStartEvent {
	return &ToolCallStartEvent{Base: newBase(TypeToolCallStart, callID), ToolName: toolName, Arguments: args}
}

// ToolCallEndEvent carries the outcome of one tool execution.
type ToolCallEndEvent struct {
	Base
	ToolName string         `json:"tool_name"`
	Status   string         `json:"status"`
	Result   map[string]any `json:"result,omitempty"`
}

func NewToolCallEnd(callID, toolName, status string, result map[string]any) *ToolCallEndEvent {
	return &ToolCallEndEvent{Base: newBase(TypeToolCallEnd, callID), ToolName: toolName, Status: status, Result: result}
}

// ErrorEvent signals a fault severe enough to interrupt execution.
type ErrorEvent struct {
	Base
	ErrorDisplay string `json:"error_display"`
}

func NewError(callID, display string) *ErrorEvent {
	return &ErrorEvent{Base: newBase(TypeError, callID), ErrorDisplay: display}
}

// Display styles accepted by CliDisplayEvent.
const (
	StyleInfo      = "info"
	StyleWarning   = "warning"
	StyleSuccess   = "success"
	StyleError     = "error"
	StyleSeparator = "separator"
)

// CliDisplayEvent is a display-only message for human-readable console
// output. It never enters the programmatic lifecycle stream.
type CliDisplayEvent struct {
	Base
	Message string `json:"message"`
	Style   string `json:"style"`
}

func NewCliDisplay(callID, message, style string) *CliDisplayEvent {
	if style == "" {
		style = StyleInfo
	}
	return &CliDisplayEvent{Base: newBase(TypeCliDisplay, callID), Message: message, Style: style}
}
