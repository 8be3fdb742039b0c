package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"grantor/internal/daemon"
	"grantor/internal/registry"
	"grantor/pkg/logging"
)

var serveAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the acquisition daemon",
		Long: `Runs grantor as a long-lived loopback service. Local tooling can start
acquisitions over HTTP and follow session transitions as server-sent
events. The provider registry reloads automatically when
~/.config/grantor/providers.yaml changes.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", daemon.DefaultAddr, "listen address (loopback only)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := ensureComponents(); err != nil {
		return err
	}

	// Hot-reload the provider overlay while the daemon runs. In-flight
	// sessions keep the descriptor they started with.
	configPath, err := registry.DefaultConfigPath()
	if err != nil {
		return err
	}
	if watcher, err := registry.NewWatcher(componentRegistry(), configPath); err != nil {
		logging.Warn("Serve", "Provider config watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return daemon.New(daemon.Config{Addr: serveAddr}).Run(ctx)
}
