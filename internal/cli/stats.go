package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/stats"
	"github.com/shopboost/shopboost/internal/store"
)

var statsCmd = &cobra.Command{
	Use:     "stats [id...]",
	Aliases: []string{"compare"},
	Short:   "Compare page conversion rates",
	Long: `Show conversion rates with 95% confidence intervals. The first page is
the control; the leading page is tested against it. Without ids every page
is compared.

Examples:
  shopboost stats
  shopboost stats 3f9a1c2e 9b0d2a11`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, s store.Store) error {
		pages, err := selectPages(ctx, s, args)
		if err != nil {
			return err
		}
		records, err := s.GetAnalytics(ctx)
		if err != nil {
			return fmt.Errorf("failed to get analytics: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(pages) == 0 {
			fmt.Fprintln(out, "No pages yet.")
			return nil
		}

		result := stats.Analyze(pages, records)

		fmt.Fprintln(out, "PAGE              VIEWS    SALES  RATE     REVENUE     PER VIEW  95% CI")
		fmt.Fprintln(out, strings.Repeat("─", 80))

		for i, p := range result.Pages {
			indicator := ""
			if i == result.Leading && len(result.Pages) > 1 {
				indicator = " ← LEADING"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", p.CILower*100, p.CIUpper*100)
			if p.Views == 0 {
				ciStr = "N/A"
			}

			// Truncate title if too long
			title := p.Title
			if len(title) > 16 {
				title = title[:13] + "..."
			}

			fmt.Fprintf(out, "%-16s  %-7d  %-5d  %-7s  %-10s  %-8s  %s%s\n",
				title,
				p.Views,
				p.Sales,
				formatPercent(p.Rate),
				dashboard.FormatMoney(p.Revenue),
				dashboard.FormatMoney(p.RevenuePerView),
				ciStr,
				indicator,
			)
		}

		fmt.Fprintln(out)

		if len(result.Pages) > 1 {
			leadingTitle := result.Pages[result.Leading].Title
			confPct := result.ConfidenceLevel * 100

			if result.Confident {
				fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" converts best\n", confPct, leadingTitle)
			} else if confPct >= 90 {
				fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" beats the control (not yet significant)\n", confPct, leadingTitle)
			} else {
				fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
			}
		}
		return nil
	})
}

// selectPages returns the pages named by ids in order, or every page.
func selectPages(ctx context.Context, s store.Store, ids []string) ([]store.Page, error) {
	if len(ids) == 0 {
		pages, err := s.ListPages(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list pages: %w", err)
		}
		return pages, nil
	}

	pages := make([]store.Page, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPage(ctx, id)
		if err != nil {
			return nil, pageNotFound(id, err)
		}
		pages = append(pages, *p)
	}
	return pages, nil
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
