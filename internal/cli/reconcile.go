package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/store"
)

func init() {
	rootCmd.AddCommand(newReconcileCmd())
}

func newReconcileCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find pages whose revenue disagrees with analytics",
		Long: `List pages whose own revenue differs from their analytics record. With
--fix the page takes the analytics figure; pages without a record seed one.

The server runs the same job on reconcile.schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, s store.Store) error {
				drifts, err := s.Reconcile(ctx, fix)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(drifts) == 0 {
					fmt.Fprintln(out, "Revenue is consistent.")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PAGE\tPAGE REVENUE\tANALYTICS REVENUE")
				for _, d := range drifts {
					fmt.Fprintf(w, "%s\t%s\t%s\n", d.PageID, dashboard.FormatMoney(d.PageRevenue), dashboard.FormatMoney(d.AnalyticsRevenue))
				}
				w.Flush()

				fmt.Fprintln(out)
				if fix {
					fmt.Fprintf(out, "Fixed %d page(s).\n", len(drifts))
				} else {
					fmt.Fprintln(out, "Run with --fix to repair.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "repair the drift")
	return cmd
}
