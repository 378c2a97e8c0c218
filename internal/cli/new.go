package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/store"
)

func init() {
	rootCmd.AddCommand(newNewCmd())
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create a new landing page",
		Long: `Create an empty draft landing page.

Examples:
  shopboost new
  shopboost new "Summer Serum Launch"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, s store.Store) error {
				page, err := dashboard.CreatePage(ctx, s)
				if err != nil {
					return fmt.Errorf("failed to create page: %w", err)
				}

				if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
					page.Title = strings.TrimSpace(args[0])
					if page, err = s.SavePage(ctx, *page); err != nil {
						return fmt.Errorf("failed to save page: %w", err)
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created page '%s' (%s)\n", page.Title, page.ID)
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Next steps:")
				fmt.Fprintf(out, "  shopboost generate %s \"describe your product\"\n", page.ID)
				fmt.Fprintf(out, "  shopboost blocks add %s\n", page.ID)
				return nil
			})
		},
	}
}
