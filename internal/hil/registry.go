// Package hil implements the rendezvous between a blocked human_in_loop tool
// call and the out-of-band API call that resolves it.
package hil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"handoff/internal/logging"
)

// Status is the lifecycle state of a HIL task. waiting is the only
// non-terminal state; transitions are monotonic and happen exactly once.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	return s != StatusWaiting
}

var (
	// ErrNotFound means the hil_id is unknown to the registry.
	ErrNotFound = errors.New("hil task not found")
	// ErrDuplicateID means a non-terminal task with this hil_id already exists.
	ErrDuplicateID = errors.New("hil task already exists")
	// ErrWaiterAttached means another Await call is already blocked on this task.
	ErrWaiterAttached = errors.New("hil task already has a waiter")
)

var (
	waitingTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "handoff_hil_waiting_tasks",
		Help: "HIL tasks currently in the waiting state.",
	})
	resolvedTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_hil_resolved_total",
		Help: "HIL task resolutions, by terminal status.",
	}, []string{"status"})
)

// Task is a snapshot of one HIL record. Snapshots are plain values; mutating
// one never affects registry state.
type Task struct {
	HILID       string        `json:"hil_id"`
	ContextID   string        `json:"context_id,omitempty"`
	Instruction string        `json:"instruction"`
	Status      Status        `json:"status"`
	Result      string        `json:"result,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Timeout     time.Duration `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// record is the single source of truth for one hil_id. done is the
// single-slot wake primitive: closed exactly once, by whichever of
// Complete/Cancel/the sweeper wins the terminal transition.
type record struct {
	task           Task
	done           chan struct{}
	waiterAttached bool
}

// Registry is a thread-safe store of HIL task records. Records are never
// deleted during the process lifetime; terminal ones stay inspectable via
// Get and List.
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*record
	order  []string
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tasks:  make(map[string]*record),
		logger: logging.OrNop(logger),
	}
}

// Create registers a new waiting task. It fails with ErrDuplicateID when a
// non-terminal record with this hil_id already exists; a terminal record may
// be replaced, re-entering the waiting state.
func (r *Registry) Create(hilID, contextID, instruction string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tasks[hilID]; ok {
		if !existing.task.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrDuplicateID, hilID)
		}
		// Replacing a terminal record counts as a fresh creation.
		for i, id := range r.order {
			if id == hilID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}

	r.tasks[hilID] = &record{
		task: Task{
			HILID:       hilID,
			ContextID:   contextID,
			Instruction: instruction,
			Status:      StatusWaiting,
			Timeout:     timeout,
			CreatedAt:   time.Now(),
		},
		done: make(chan struct{}),
	}
	r.order = append(r.order, hilID)
	waitingTasks.Inc()

	r.logger.Info("HIL task created: id=%s context=%s timeout=%s", hilID, contextID, timeout)
	return nil
}

// Get returns a snapshot of the task, or ErrNotFound.
func (r *Registry) Get(hilID string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[hilID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, hilID)
	}
	return rec.task, nil
}

// List returns snapshots of all tasks in creation order.
func (r *Registry) List() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id].task)
	}
	return tasks
}

// WaitingCount returns the number of tasks still in the waiting state.
func (r *Registry) WaitingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, rec := range r.tasks {
		if rec.task.Status == StatusWaiting {
			count++
		}
	}
	return count
}

// Complete transitions a waiting task to completed and wakes its waiter.
// Completing an already-terminal task is a successful no-op: the first
// resolution wins. Unknown hil_ids fail with ErrNotFound.
func (r *Registry) Complete(hilID, result string) error {
	return r.resolve(hilID, StatusCompleted, result, "")
}

// Cancel transitions a waiting task to cancelled, symmetric to Complete.
func (r *Registry) Cancel(hilID, reason string) error {
	return r.resolve(hilID, StatusCancelled, "", reason)
}

// resolve is the single mutation path shared by Complete, Cancel, and the
// sweeper. The status check and the terminal write happen under the registry
// lock, so exactly one caller can win the transition for a given record.
func (r *Registry) resolve(hilID string, status Status, result, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[hilID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, hilID)
	}
	if rec.task.Status.Terminal() {
		// Idempotent no-op; the earlier resolution stands.
		return nil
	}

	now := time.Now()
	rec.task.Status = status
	rec.task.Result = result
	rec.task.Reason = reason
	rec.task.ResolvedAt = &now
	close(rec.done)

	waitingTasks.Dec()
	resolvedTasks.WithLabelValues(string(status)).Inc()
	r.logger.Info("HIL task resolved: id=%s status=%s", hilID, status)
	return nil
}

// expireOverdue transitions every waiting task whose own timeout has elapsed
// to the timeout state, waking its waiter. Returns the expired ids.
func (r *Registry) expireOverdue(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for _, id := range r.order {
		rec := r.tasks[id]
		if rec.task.Status != StatusWaiting || rec.task.Timeout <= 0 {
			continue
		}
		if now.Sub(rec.task.CreatedAt) < rec.task.Timeout {
			continue
		}

		resolvedAt := now
		rec.task.Status = StatusTimeout
		rec.task.ResolvedAt = &resolvedAt
		close(rec.done)

		waitingTasks.Dec()
		resolvedTasks.WithLabelValues(string(StatusTimeout)).Inc()
		expired = append(expired, id)
	}
	return expired
}

// expire transitions a single waiting record to timeout. Used by Await when a
// caller-imposed bound elapses. Reports whether this call won the transition.
func (r *Registry) expire(rec *record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.task.Status.Terminal() {
		return false
	}

	now := time.Now()
	rec.task.Status = StatusTimeout
	rec.task.ResolvedAt = &now
	close(rec.done)

	waitingTasks.Dec()
	resolvedTasks.WithLabelValues(string(StatusTimeout)).Inc()
	return true
}

// Await blocks until the task leaves the waiting state and returns the
// terminal snapshot. Each task supports a single waiter; a second concurrent
// Await on the same hil_id fails with ErrWaiterAttached.
//
// bound applies only when the task itself carries no timeout: it caps how
// long this caller is willing to wait, and on expiry the task is transitioned
// to timeout through the shared mutation path.
//
// Cancelling ctx abandons the wait without resolving the task; the registry
// keeps the record and a later Complete/Cancel still lands.
func (r *Registry) Await(ctx context.Context, hilID string, bound time.Duration) (Task, error) {
	r.mu.Lock()
	rec, ok := r.tasks[hilID]
	if !ok {
		r.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, hilID)
	}
	if rec.waiterAttached && !rec.task.Status.Terminal() {
		r.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrWaiterAttached, hilID)
	}
	rec.waiterAttached = true
	done := rec.done
	hasOwnTimeout := rec.task.Timeout > 0
	r.mu.Unlock()

	var boundC <-chan time.Time
	if !hasOwnTimeout && bound > 0 {
		timer := time.NewTimer(bound)
		defer timer.Stop()
		boundC = timer.C
	}

	select {
	case <-done:
	case <-boundC:
		// Lost races are fine: expire only wins if the task is still waiting,
		// and the snapshot below reads whichever terminal state landed.
		r.expire(rec)
	case <-ctx.Done():
		r.detachWaiter(rec)
		return Task{}, ctx.Err()
	}

	// Snapshot from the captured record: the id may have been re-created by
	// the time we re-acquire the lock.
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.waiterAttached = false
	return rec.task, nil
}

func (r *Registry) detachWaiter(rec *record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.waiterAttached = false
}
