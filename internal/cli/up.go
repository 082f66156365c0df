package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickdock/quickdock/internal/diag"
	"github.com/quickdock/quickdock/internal/proc"
	"github.com/quickdock/quickdock/internal/sidecar"
	"github.com/quickdock/quickdock/internal/tui"
)

const drainGrace = 2 * time.Second

func newUpCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Launch the backend sidecar and open the dashboard window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !supportsInteractiveOutput(cmd) {
				return fmt.Errorf("up requires an interactive terminal; use %q for headless operation", "quickdock run")
			}

			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			mux := diag.NewMux(cfg.Diagnostics.Buffer)
			sink := make(diag.ChanSink, 64)
			mux.Add((chan diag.Record)(sink))

			sup := sidecar.New(proc.NewLocalLauncher(), sink)
			hooks := sidecar.NewHooks(sup, cfg.LaunchSpec())

			// Application setup: spawn the sidecar before the window opens.
			// A spawn failure aborts setup; no window without a backend.
			if err := hooks.OnStartup(cmd.Context()); err != nil {
				close(sink)
				mux.Close()
				return err
			}

			window := tui.New(mux.Output(), func() tui.Status {
				return tui.Status{
					PID:     sup.PID(),
					Running: sup.Running(),
					BaseURL: cfg.BaseURL(),
				}
			})

			runErr := window.Run(cmd.Context())

			// Window destroyed: kill the sidecar.
			hooks.OnShutdown()

			flushDiagnostics(sup, sink, mux)
			return runErr
		},
	}
	return cmd
}

// flushDiagnostics waits briefly for the drain goroutine to observe the
// child's exit, then replays any records the closed window never displayed
// onto stderr.
func flushDiagnostics(sup *sidecar.Supervisor, sink diag.ChanSink, mux *diag.Mux) {
	if done := sup.Done(); done != nil {
		select {
		case <-done:
		case <-time.After(drainGrace):
			// The child's stream never closed; abandon the flush rather than
			// close the sink under the still-running drain goroutine.
			return
		}
	}
	close(sink)
	mux.Close()

	logger := diag.NewLogger(os.Stderr)
	for rec := range mux.Output() {
		logger.Emit(rec)
	}
}
