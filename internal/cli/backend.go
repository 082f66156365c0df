package cli

import (
	stdcontext "context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quickdock/quickdock/internal/backend/docker"
	"github.com/quickdock/quickdock/internal/backend/httpapi"
	"github.com/quickdock/quickdock/internal/diag"
)

const portEnvVar = "QUICKDOCK_PORT"

// NewBackendCmd constructs the backend server command.
func NewBackendCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "quickdock-backend",
		Short: "QuickDock backend API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = addrFromEnv()
			}

			mgr := docker.NewManager()
			defer mgr.Close()

			server, err := httpapi.NewServer(httpapi.Config{Addr: addr, Manager: mgr})
			if err != nil {
				return err
			}

			logger := diag.NewLogger(cmd.ErrOrStderr())
			logger.Emit(diag.Record{
				Component: "backend",
				Message:   fmt.Sprintf("API listening on %s", server.Addr()),
			})
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default 127.0.0.1:$"+portEnvVar+" or 127.0.0.1:18093)")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

// ExecuteBackend runs the backend entrypoint.
func ExecuteBackend() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewBackendCmd()
	cmd.SetContext(ctx)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addrFromEnv() string {
	raw := os.Getenv(portEnvVar)
	if raw == "" {
		return ""
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return ""
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
