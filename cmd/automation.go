package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"grantor/internal/api"
)

func newAutomationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automation",
		Short: "Manage the automated-browser engine",
	}
	cmd.AddCommand(newAutomationStatusCmd())
	cmd.AddCommand(newAutomationInstallCmd())
	return cmd
}

func newAutomationStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the automated-browser strategy can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureComponents(); err != nil {
				return err
			}

			avail, err := api.GetProber().Check(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if avail.Available {
				fmt.Fprintf(out, "Automation browser available: %s\n  %s\n", avail.Version, avail.BinaryPath)
				return nil
			}
			fmt.Fprintf(out, "Automation browser not available: %s\n", avail.Reason)
			fmt.Fprintln(out, "Run 'grantor automation install' to install one.")
			return nil
		},
	}
}

func newAutomationInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install an automation browser via the platform package manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureComponents(); err != nil {
				return err
			}

			events, err := api.GetProber().Install(cmd.Context())
			if err != nil {
				return err
			}

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			spin.Suffix = " Installing automation browser..."
			spin.Start()
			defer spin.Stop()

			var success bool
			for ev := range events {
				spin.Suffix = " " + ev.Message
				if ev.Done {
					success = ev.Success
				}
			}
			spin.Stop()

			if !success {
				return fmt.Errorf("installation failed; see output above")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Automation browser installed.")
			return nil
		},
	}
}
