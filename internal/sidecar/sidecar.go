// Package sidecar supervises the single backend process owned by the host
// shell: spawn it at startup, observe its output, and make sure it is gone
// when the host window closes.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quickdock/quickdock/internal/diag"
	"github.com/quickdock/quickdock/internal/metrics"
	"github.com/quickdock/quickdock/internal/proc"
)

const component = "sidecar"

// ErrAlreadyStarted is returned when Start is invoked while a child handle is
// still tracked. Calling Start twice without an intervening Stop is a
// programming error in the host.
var ErrAlreadyStarted = errors.New("sidecar already started")

// Sink receives the supervisor's diagnostic records.
type Sink interface {
	Emit(diag.Record)
}

// Supervisor owns at most one live child handle. Start and Stop may be called
// from different goroutines (setup path vs. window-event path); the slot
// transition is guarded by a mutex so take-and-kill and store-after-spawn
// never race.
type Supervisor struct {
	launcher proc.Launcher
	sink     Sink

	mu    sync.Mutex
	child *proc.Handle

	done chan struct{}
}

// New constructs a supervisor. A nil sink falls back to a JSON-line logger on
// stderr.
func New(launcher proc.Launcher, sink Sink) *Supervisor {
	if sink == nil {
		sink = diag.NewLogger(nil)
	}
	return &Supervisor{launcher: launcher, sink: sink}
}

// Start spawns the backend described by spec, stores its handle and launches
// the drain goroutine over the child's event stream. It returns the spawn
// error unchanged when the OS refuses to create the process; in that case no
// handle is stored and no goroutine is started.
func (s *Supervisor) Start(ctx context.Context, spec proc.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.child != nil {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyStarted, s.child.PID())
	}

	handle, events, err := s.launcher.Launch(ctx, spec)
	if err != nil {
		return fmt.Errorf("spawn backend: %w", err)
	}

	s.child = handle
	s.done = make(chan struct{})
	metrics.SetSidecarUp(true)

	s.sink.Emit(diag.Record{
		Component: component,
		Message:   "backend sidecar started",
		PID:       handle.PID(),
	})

	go s.drain(events, s.done)
	return nil
}

// Stop takes the handle out of the slot and kills the child. Kill failures
// are logged and swallowed; shutdown must never block or crash the host. Stop
// is idempotent: with no tracked handle it does nothing.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	child := s.child
	s.child = nil
	s.mu.Unlock()

	if child == nil {
		return
	}
	metrics.SetSidecarUp(false)

	if err := child.Kill(); err != nil {
		s.sink.Emit(diag.Record{
			Component: component,
			Level:     "warn",
			Message:   "backend sidecar kill failed",
			PID:       child.PID(),
			Err:       err.Error(),
		})
		return
	}
	s.sink.Emit(diag.Record{
		Component: component,
		Message:   "backend sidecar stopped",
		PID:       child.PID(),
	})
}

// Running reports whether a child handle is currently tracked.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.child != nil
}

// PID returns the tracked child's process identifier, or zero when the slot
// is empty.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil {
		return 0
	}
	return s.child.PID()
}

// Done returns a channel closed when the drain goroutine for the most recent
// Start has finished, or nil when Start never succeeded.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
