package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"handoff/internal/logging"
)

// Handler consumes events. Each handler decides on its own which events are
// relevant; returning an error never interrupts delivery to other handlers.
type Handler interface {
	Handle(event Event) error
}

var (
	eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_events_dispatched_total",
		Help: "Events dispatched to handlers, by event type.",
	}, []string{"type"})
	handlerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handoff_event_handler_errors_total",
		Help: "Handler errors and panics swallowed during dispatch.",
	})
)

// Emitter fans events out to every registered handler, synchronously and in
// registration order. It is process-wide state: constructed once at startup
// and passed by explicit reference to everything that publishes events.
type Emitter struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   logging.Logger
}

// NewEmitter creates an emitter with no handlers registered.
func NewEmitter(logger logging.Logger) *Emitter {
	return &Emitter{logger: logging.OrNop(logger)}
}

// Register adds a handler. Registering the same handler twice is a no-op.
func (e *Emitter) Register(handler Handler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.handlers {
		if h == handler {
			return
		}
	}
	e.handlers = append(e.handlers, handler)
}

// Unregister removes a previously registered handler.
func (e *Emitter) Unregister(handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h == handler {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return
		}
	}
}

// HandlerCount returns the number of registered handlers.
func (e *Emitter) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Dispatch delivers event to every registered handler in registration order.
// A failing or panicking handler is logged and skipped; it never aborts
// delivery to subsequent handlers and never propagates to the caller.
func (e *Emitter) Dispatch(event Event) {
	if event == nil {
		return
	}

	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	eventsDispatched.WithLabelValues(event.EventType()).Inc()

	for _, handler := range handlers {
		e.deliver(handler, event)
	}
}

func (e *Emitter) deliver(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerErrors.Inc()
			e.logger.Error("Handler %T panicked on event %s: %v", handler, event.EventType(), r)
		}
	}()

	if err := handler.Handle(event); err != nil {
		handlerErrors.Inc()
		e.logger.Error("Handler %T failed on event %s: %v", handler, event.EventType(), err)
	}
}
