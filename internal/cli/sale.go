package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/store"
)

var saleCmd = &cobra.Command{
	Use:   "sale <id>",
	Short: "Record a demo sale for a page",
	Long: `Record a simulated $49 sale, the same as the editor's test purchase
button. Use it to check that revenue tracking works end to end.`,
	Args: cobra.ExactArgs(1),
	RunE: runSale,
}

func init() {
	rootCmd.AddCommand(saleCmd)
}

func runSale(cmd *cobra.Command, args []string) error {
	return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
		if err := sess.SimulateSale(ctx); err != nil {
			return err
		}
		page := sess.Page()
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s sale. Page revenue %s over %d views\n",
			dashboard.FormatMoney(session.DemoSaleAmount), dashboard.FormatMoney(page.Revenue), page.Views)
		return nil
	})
}
