package sidecar

import (
	"github.com/quickdock/quickdock/internal/diag"
	"github.com/quickdock/quickdock/internal/metrics"
	"github.com/quickdock/quickdock/internal/proc"
)

// drain consumes the child's event stream until it ends. It runs without the
// supervisor mutex: holding the lock across a channel receive would deadlock
// Stop. Killing the child closes the stream, which ends the drain naturally;
// no explicit cancellation is needed.
func (s *Supervisor) drain(events <-chan proc.Event, done chan struct{}) {
	defer close(done)

	for evt := range events {
		metrics.ObserveSidecarEvent(string(evt.Kind))

		switch evt.Kind {
		case proc.KindStdout:
			s.sink.Emit(diag.Record{
				Component: component,
				Source:    "stdout",
				Message:   evt.Line,
			})
		case proc.KindStderr:
			s.sink.Emit(diag.Record{
				Component: component,
				Level:     "warn",
				Source:    "stderr",
				Message:   evt.Line,
			})
		case proc.KindExited:
			rec := diag.Record{
				Component: component,
				Message:   evt.String(),
			}
			if evt.Err != nil {
				rec.Level = "error"
				rec.Err = evt.Err.Error()
			}
			s.sink.Emit(rec)
			// Terminal state. The launcher closes the channel right after,
			// but honor the contract without relying on it.
			return
		case proc.KindError:
			// Non-terminal: output may still arrive after a runtime error.
			rec := diag.Record{
				Component: component,
				Level:     "error",
				Message:   "backend sidecar error",
			}
			if evt.Err != nil {
				rec.Err = evt.Err.Error()
			}
			s.sink.Emit(rec)
		default:
			// Unrecognized event kinds are ignored.
		}
	}
}
