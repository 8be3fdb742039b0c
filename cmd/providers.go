package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"grantor/internal/api"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured identity providers",
		Long: `Lists the providers grantor can acquire credentials for, with the
strategies each one supports. Providers come from the built-in set plus
~/.config/grantor/providers.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureComponents(); err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"ID", "Label", "Strategies", "Import Path"})

			for _, d := range api.GetProviderRegistry().All() {
				t.AppendRow(table.Row{
					d.ID,
					d.Label,
					strategiesString(d.Strategies),
					d.DefaultCredentialPath,
				})
			}
			t.Render()
			return nil
		},
	}
}
