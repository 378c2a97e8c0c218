package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/store"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"pages"},
	Short:   "List all pages",
	Long:    `List all landing pages with their status, views and revenue.`,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, s store.Store) error {
		pages, err := s.ListPages(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pages: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(pages) == 0 {
			fmt.Fprintln(out, "No pages yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Create one with: shopboost new \"Summer Sale\"")
			return nil
		}

		summary := dashboard.Summarize(pages, time.Now())

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tBLOCKS\tVIEWS\tREVENUE\tMODIFIED")
		for _, row := range summary.Pages {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				row.ID,
				row.Title,
				strings.ToUpper(row.Status),
				row.Blocks,
				row.ViewsText,
				row.RevenueText,
				row.LastModifiedText,
			)
		}
		w.Flush()

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Total revenue %s · Live views %s · Avg. conversion %s%%\n",
			summary.TotalRevenueText, summary.TotalViewsText, summary.AvgConversion)
		return nil
	})
}
