package cmd

import (
	"errors"
	"os"

	"grantor/internal/classify"
	"grantor/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands, usable from scripts.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeCancelled indicates the user cancelled the acquisition, locally
	// or on the provider's page. Not a failure.
	ExitCodeCancelled = 2
	// ExitCodeAcquisitionFailed indicates the acquisition flow failed.
	ExitCodeAcquisitionFailed = 3
)

var logLevel string

// rootCmd is the base command for the grantor application.
var rootCmd = &cobra.Command{
	Use:   "grantor",
	Short: "Acquire provider credentials from the terminal",
	Long: `grantor walks you through acquiring credentials for identity providers:
OAuth device flows, browser-based authorization with a local callback,
automated browser sign-in, importing existing credential files, and
pasted API keys. Acquired credentials land in a local store with
restrictive permissions.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.ParseLevel(logLevel), os.Stderr)
	},
}

// SetVersion sets the version for the root command, injected from main.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the entry point for the CLI, called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "grantor version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps classified acquisition outcomes onto semantic exit codes.
func getExitCode(err error) int {
	var classified *classify.ClassifiedError
	if errors.As(err, &classified) {
		if classified.IsUserAction() {
			return ExitCodeCancelled
		}
		return ExitCodeAcquisitionFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newAcquireCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(newAutomationCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
