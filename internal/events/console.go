package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// ConsoleHandler renders events as human-readable console lines. Known
// lifecycle types get one formatted line each, unknown lifecycle types are
// ignored, and display events are always rendered.
type ConsoleHandler struct {
	mu           sync.Mutex
	out          io.Writer
	colorEnabled bool
}

// NewConsoleHandler creates a console handler writing to out. When out is
// nil, os.Stdout is used.
func NewConsoleHandler(out io.Writer, colorEnabled bool) *ConsoleHandler {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleHandler{out: out, colorEnabled: colorEnabled}
}

// Handle implements Handler.
func (h *ConsoleHandler) Handle(event Event) error {
	line, ok := h.render(event)
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.out, line)
	return err
}

func (h *ConsoleHandler) render(event Event) (string, bool) {
	switch e := event.(type) {
	case *CliDisplayEvent:
		return h.renderDisplay(e), true
	case *AgentStartEvent:
		return h.paint(fmt.Sprintf("Agent started: %s | task: %s", e.AgentName, truncate(e.TaskInput, 100)), blue), true
	case *AgentEndEvent:
		return h.paint(fmt.Sprintf("Agent finished: %s", e.Status), green), true
	case *ModelSelectionEvent:
		if e.IsFallback {
			return h.paint(fmt.Sprintf("Model fallback: %s -> %s", e.RequestedModel, e.FinalModel), yellow), true
		}
		return h.paint(fmt.Sprintf("Model selected: %s", e.FinalModel), gray), true
	case *HistoryLoadEvent:
		return h.paint(fmt.Sprintf("History loaded: turn %d, %d actions, %d pending tools", e.StartTurn, e.ActionHistoryLen, e.PendingToolCount), gray), true
	case *ThinkingStartEvent:
		return h.paint(fmt.Sprintf("[%s] thinking...", e.AgentName), cyan), true
	case *ThinkingEndEvent:
		return h.paint(fmt.Sprintf("[%s] %s", e.AgentName, truncate(e.Result, 200)), cyan), true
	case *ThinkingFailEvent:
		return h.paint(fmt.Sprintf("[%s] thinking failed: %s", e.AgentName, e.ErrorMessage), red), true
	case *LLMCallStartEvent:
		return h.paint(fmt.Sprintf("Calling LLM: %s (system prompt %d chars)", e.Model, len(e.SystemPrompt)), blue), true
	case *LLMCallEndEvent:
		return h.paint(fmt.Sprintf("LLM output: %s | %d tool calls", truncate(e.Output, 100), len(e.ToolCalls)), gray), true
	case *ToolCallStartEvent:
		return h.paint(fmt.Sprintf("Executing tool: %s", e.ToolName), blue), true
	case *ToolCallEndEvent:
		return h.paint(fmt.Sprintf("Tool %s finished: %s", e.ToolName, e.Status), green), true
	case *ErrorEvent:
		return h.paint(e.ErrorDisplay, red), true
	default:
		// Unknown lifecycle types are not an error, just nothing to print.
		return "", false
	}
}

func (h *ConsoleHandler) renderDisplay(e *CliDisplayEvent) string {
	if e.Style == StyleSeparator {
		return h.paint(strings.Repeat("=", 80), gray)
	}
	switch e.Style {
	case StyleWarning:
		return h.paint(e.Message, yellow)
	case StyleSuccess:
		return h.paint(e.Message, green)
	case StyleError:
		return h.paint(e.Message, red)
	default:
		return e.Message
	}
}

func (h *ConsoleHandler) paint(text string, painter func(a ...interface{}) string) string {
	if !h.colorEnabled {
		return text
	}
	return painter(text)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
