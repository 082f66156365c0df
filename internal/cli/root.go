// Package cli wires the host shell's commands.
package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quickdock/quickdock/internal/config"
)

type context struct {
	configPath *string
}

func (c *context) loadConfig() (*config.Config, error) {
	return config.Load(*c.configPath)
}

// NewRootCmd constructs the host shell command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "quickdock",
		Short: "Desktop-style Docker dashboard with a supervised backend sidecar",
	}

	root.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "Path to quickdock.yaml (default \""+config.DefaultPath+"\")")

	ctx := &context{configPath: &configPath}
	root.AddCommand(newUpCmd(ctx))
	root.AddCommand(newRunCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

// Execute runs the host shell entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func supportsInteractiveOutput(cmd *cobra.Command) bool {
	out, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(out.Fd()))
}
