package sidecar

import (
	"context"

	"github.com/quickdock/quickdock/internal/proc"
)

// Lifecycle is the two-phase contract a host binds to its own event model:
// desktop window events, OS signal handlers, service manager hooks. OnStartup
// runs during host setup; OnShutdown runs when the host window is destroyed.
type Lifecycle interface {
	OnStartup(ctx context.Context) error
	OnShutdown()
}

// Hooks adapts a Supervisor plus a fixed launch spec to the Lifecycle
// contract.
type Hooks struct {
	sup  *Supervisor
	spec proc.Spec
}

// NewHooks binds the supervisor to the backend spec it should launch.
func NewHooks(sup *Supervisor, spec proc.Spec) *Hooks {
	return &Hooks{sup: sup, spec: spec}
}

// OnStartup spawns the backend. A spawn failure is surfaced so the host can
// abort its own setup instead of presenting a window with no backend behind
// it.
func (h *Hooks) OnStartup(ctx context.Context) error {
	return h.sup.Start(ctx, h.spec)
}

// OnShutdown kills the backend. Fire-and-forget: it does not wait for the
// child to exit.
func (h *Hooks) OnShutdown() {
	h.sup.Stop()
}
