package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"handoff/internal/logging"
)

const defaultJSONLBuffer = 1024

// JSONLStreamHandler serializes every lifecycle event to one JSON object per
// line on a stable output stream. Display events are skipped by policy.
//
// Encoding happens inline with dispatch so line order matches emission order;
// the actual write is delegated to a background worker so slow consumers
// never stall the emitter's fan-out.
type JSONLStreamHandler struct {
	mu     sync.RWMutex
	closed bool
	out    chan []byte
	done   chan struct{}
	logger logging.Logger
}

// NewJSONLStreamHandler creates a handler streaming to w and starts its
// writer worker. Call Close to flush and stop the worker.
func NewJSONLStreamHandler(w io.Writer, logger logging.Logger) *JSONLStreamHandler {
	h := &JSONLStreamHandler{
		out:    make(chan []byte, defaultJSONLBuffer),
		done:   make(chan struct{}),
		logger: logging.OrNop(logger),
	}
	go h.writeLoop(w)
	return h
}

// Handle implements Handler.
func (h *JSONLStreamHandler) Handle(event Event) error {
	if IsDisplay(event) {
		return nil
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventType(), err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return fmt.Errorf("jsonl stream closed, dropping event %s", event.EventType())
	}

	select {
	case h.out <- line:
		return nil
	default:
		return fmt.Errorf("jsonl buffer full, dropping event %s", event.EventType())
	}
}

func (h *JSONLStreamHandler) writeLoop(w io.Writer) {
	for line := range h.out {
		if _, err := w.Write(append(line, '\n')); err != nil {
			h.logger.Warn("JSONL write failed: %v", err)
		}
	}
	close(h.done)
}

// Close stops accepting events, flushes anything buffered, and waits for the
// writer worker to finish.
func (h *JSONLStreamHandler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.out)
	h.mu.Unlock()

	<-h.done
}
