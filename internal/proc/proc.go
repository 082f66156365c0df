// Package proc launches local child processes and exposes their lifecycle as
// an ordered event stream.
//
// Full process-group termination is only guaranteed on Unix platforms, where
// the child is placed in its own process group and Kill signals the whole
// group. On Windows only the direct child is terminated; grandchildren may
// linger and must be cleaned up separately by the caller.
package proc

import (
	"context"
	"fmt"
)

// Spec describes a child process to launch.
type Spec struct {
	// Path is the executable to run, resolved against PATH when relative.
	Path string
	// Args are passed verbatim after the executable name.
	Args []string
	// Env entries are appended to the parent environment as KEY=VALUE pairs.
	Env map[string]string
	// Workdir, when non-empty, becomes the child's working directory.
	Workdir string
}

// EventKind enumerates the lifecycle notifications a child can emit.
type EventKind string

const (
	KindStdout EventKind = "stdout"
	KindStderr EventKind = "stderr"
	KindExited EventKind = "exited"
	KindError  EventKind = "error"
)

// Event is a single notification from a running child. The stream delivers
// output and error events in arrival order and ends with at most one Exited
// event, after which the channel is closed.
type Event struct {
	Kind EventKind
	// Line carries the output line for Stdout and Stderr events.
	Line string
	// Code is the exit status for Exited events. -1 when the child was
	// terminated by a signal.
	Code int
	// Signal names the terminating signal for Exited events, empty when the
	// child exited on its own.
	Signal string
	// Err carries the failure detail for Error events.
	Err error
}

// String renders the event for diagnostics.
func (e Event) String() string {
	switch e.Kind {
	case KindStdout, KindStderr:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Line)
	case KindExited:
		if e.Signal != "" {
			return fmt.Sprintf("exited: signal %s", e.Signal)
		}
		return fmt.Sprintf("exited: code %d", e.Code)
	case KindError:
		return fmt.Sprintf("error: %v", e.Err)
	}
	return string(e.Kind)
}

// Launcher starts child processes. Implementations must return a handle that
// can signal the child and a channel that is closed once the child has exited
// and both output pipes are drained.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (*Handle, <-chan Event, error)
}

// Handle identifies a live child and carries its kill capability. Kill is
// best-effort: the child may already be gone by the time the signal lands.
type Handle struct {
	pid  int
	kill func() error
}

// NewHandle wraps a process identifier and kill capability. Primarily useful
// for fakes; production handles come from a Launcher.
func NewHandle(pid int, kill func() error) *Handle {
	return &Handle{pid: pid, kill: kill}
}

// PID returns the operating system process identifier.
func (h *Handle) PID() int {
	return h.pid
}

// Kill requests termination of the child. Safe to call once; the handle is
// spent afterwards.
func (h *Handle) Kill() error {
	if h == nil || h.kill == nil {
		return nil
	}
	return h.kill()
}
