package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newSourcesCmd creates the 'sources' subcommand, which lists the catalog.
func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Lists the configured source catalog",
		RunE:  runSourcesCommand,
	}
	cmd.Flags().StringSliceP("category", "c", nil, "only list these categories")
	return cmd
}

func runSourcesCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	categories, err := cmd.Flags().GetStringSlice("category")
	if err != nil {
		return err
	}
	sources, err := appInstance.Config().Sources(categories...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tNAME\tKIND\tBROWSER\tURL")
	for _, src := range sources {
		browser := "no"
		if src.NeedsPage() {
			browser = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", src.Category, src.Name, src.ResolvedKind(), browser, src.URL)
	}
	return w.Flush()
}
