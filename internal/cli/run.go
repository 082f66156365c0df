package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickdock/quickdock/internal/diag"
	"github.com/quickdock/quickdock/internal/proc"
	"github.com/quickdock/quickdock/internal/sidecar"
)

func newRunCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Supervise the backend sidecar headless until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			logger := diag.NewLogger(cmd.ErrOrStderr())
			sup := sidecar.New(proc.NewLocalLauncher(), logger)
			hooks := sidecar.NewHooks(sup, cfg.LaunchSpec())

			if err := hooks.OnStartup(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend API at %s; press Ctrl-C to stop.\n", cfg.BaseURL())

			// Signal delivery is the shutdown hook here. If the backend exits
			// on its own the drain goroutine ends and we stop as well.
			select {
			case <-cmd.Context().Done():
			case <-sup.Done():
			}
			hooks.OnShutdown()

			if done := sup.Done(); done != nil {
				select {
				case <-done:
				case <-time.After(drainGrace):
				}
			}
			return nil
		},
	}
	return cmd
}
