// Package await bridges asynchronous task completion events, such as a
// provider webhook arriving on another request, into an optional
// synchronous "block until done" submission mode.
package await

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyAwaited is returned when a second registration is attempted
// for a task that already has a live waiter. Callers must not
// double-register; the first waiter owns the signal.
var ErrAlreadyAwaited = errors.New("task is already being awaited")

// Outcome is the result of waiting on a completion signal.
type Outcome int

const (
	// Fired means the completion signal was released while waiting.
	Fired Outcome = iota

	// TimedOut means the wait deadline elapsed before the signal fired.
	// The registration is not consumed; the task can still be polled and
	// a later Release remains a harmless no-op.
	TimedOut
)

// Registry tracks one-shot completion signals keyed by task ID. Each task
// may have at most one waiter at a time. Signals are fired by the
// asynchronous completion path (webhook or poll), which may run before or
// without any waiter existing.
type Registry struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]chan struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		waiters: make(map[uuid.UUID]chan struct{}),
	}
}

// Waiter is a handle to a registered one-shot signal.
type Waiter struct {
	taskID   uuid.UUID
	ch       <-chan struct{}
	registry *Registry
}

// Register creates a one-shot signal for the given task ID.
// Returns ErrAlreadyAwaited if a waiter is already registered for it.
func (r *Registry) Register(taskID uuid.UUID) (*Waiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.waiters[taskID]; exists {
		return nil, ErrAlreadyAwaited
	}

	ch := make(chan struct{})
	r.waiters[taskID] = ch

	return &Waiter{taskID: taskID, ch: ch, registry: r}, nil
}

// Wait blocks until the signal fires, the timeout elapses, or the context
// is cancelled. Context cancellation is reported as TimedOut; in both
// non-fired cases the registration stays in place for a later Release.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) Outcome {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ch:
		return Fired
	case <-timer.C:
		return TimedOut
	case <-ctx.Done():
		return TimedOut
	}
}

// Cancel removes the waiter's registration without firing it. Safe to
// call after Release; it only deletes the registration if it still points
// at this waiter's channel.
func (w *Waiter) Cancel() {
	w.registry.mu.Lock()
	defer w.registry.mu.Unlock()

	if ch, exists := w.registry.waiters[w.taskID]; exists && ch == w.ch {
		delete(w.registry.waiters, w.taskID)
	}
}

// Release fires the signal for any waiter registered for the task and
// removes the registration. Calling Release with no registered waiter is
// a silent no-op: the asynchronous completion path may finish before or
// without any synchronous waiter existing.
func (r *Registry) Release(taskID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, exists := r.waiters[taskID]; exists {
		close(ch)
		delete(r.waiters, taskID)
	}
}
