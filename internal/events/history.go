package events

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultHistoryRuns      = 256
	defaultHistoryPerCallID = 1000
)

// HistoryHandler keeps the most recent lifecycle events per call_id so a
// client that connects late can replay what it missed. Old runs are evicted
// LRU-style once the run limit is reached.
type HistoryHandler struct {
	mu        sync.Mutex
	runs      *lru.Cache[string, []Event]
	maxPerRun int
}

// NewHistoryHandler creates a history handler with default capacity.
func NewHistoryHandler() *HistoryHandler {
	cache, _ := lru.New[string, []Event](defaultHistoryRuns)
	return &HistoryHandler{runs: cache, maxPerRun: defaultHistoryPerCallID}
}

// Handle implements Handler. Display events are not part of the replayable
// lifecycle stream and are skipped.
func (h *HistoryHandler) Handle(event Event) error {
	if IsDisplay(event) {
		return nil
	}
	callID := event.EventCallID()
	if callID == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	history, _ := h.runs.Get(callID)
	history = append(history, event)
	if len(history) > h.maxPerRun {
		history = history[len(history)-h.maxPerRun:]
	}
	h.runs.Add(callID, history)
	return nil
}

// Events returns a copy of the stored events for one call_id, in emission
// order, or nil when the run is unknown or already evicted.
func (h *HistoryHandler) Events(callID string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	history, ok := h.runs.Get(callID)
	if !ok || len(history) == 0 {
		return nil
	}
	out := make([]Event, len(history))
	copy(out, history)
	return out
}
