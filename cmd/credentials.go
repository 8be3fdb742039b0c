package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"grantor/internal/api"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect and manage stored credentials",
	}
	cmd.AddCommand(newCredentialsListCmd())
	cmd.AddCommand(newCredentialsDisableCmd())
	return cmd
}

func newCredentialsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureComponents(); err != nil {
				return err
			}

			creds, err := api.GetCredentialStore().List(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"ID", "Provider", "Name", "Method", "Source", "Expiry", "Status"})

			for _, c := range creds {
				expiry := "-"
				if !c.Record.Expiry.IsZero() {
					expiry = c.Record.Expiry.Format(time.RFC3339)
				}
				status := "active"
				if c.Disabled {
					status = "disabled"
				} else if tok := c.Record.OAuthToken(); tok != nil && !tok.Valid() {
					status = "expired"
				}
				t.AppendRow(table.Row{
					c.ID,
					c.Record.ProviderID,
					c.Record.DisplayName,
					c.Record.AuthMethod,
					c.Record.Source,
					expiry,
					status,
				})
			}
			t.Render()
			return nil
		},
	}
}

func newCredentialsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <credential-id>",
		Short: "Disable a stored credential without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureComponents(); err != nil {
				return err
			}

			if err := api.GetCredentialStore().Disable(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credential %s disabled.\n", args[0])
			return nil
		},
	}
}
