package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/zoo/internal/zoo"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List available architectures and whether their weights are cached",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.hubClient(cmd, false)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Architecture", "Head", "Backbone", "Classes", "Parameters", "Weights", "Cached"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			for _, name := range zoo.Names() {
				arch, err := zoo.Lookup(name)
				if err != nil {
					return err
				}
				cached := "no"
				if client.Cached(arch.Weights.URL) {
					cached = "yes"
				}
				table.Append([]string{
					arch.Name,
					string(arch.Head),
					arch.Backbone.Name,
					fmt.Sprint(arch.Weights.NumClasses),
					orDash(formatCount(arch.Weights.NumParams)),
					arch.Weights.Name,
					cached,
				})
			}
			table.Render()
			return nil
		},
	}
}

// formatCount renders 60996202 as "61.0M".
func formatCount(n int) string {
	switch {
	case n <= 0:
		return ""
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprint(n)
	}
}
