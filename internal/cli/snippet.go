package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/config"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/snippets"
	"github.com/shopboost/shopboost/internal/store"
)

func init() {
	rootCmd.AddCommand(newSnippetCmd())
}

func newSnippetCmd() *cobra.Command {
	var (
		framework string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "snippet <id>",
		Short: "Print tracking code for a page",
		Long: `Print the code that tracks views and sales of a page on your storefront.
Without --framework, pick one from a list.

Frameworks: liquid, html, nextjs, react, vue

Examples:
  shopboost snippet 3f9a1c2e --framework liquid
  shopboost snippet 3f9a1c2e --framework nextjs --server https://boost.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			fw, err := chooseFramework(framework)
			if err != nil {
				return err
			}
			if serverURL == "" {
				serverURL = fmt.Sprintf("http://localhost:%d", cfg.GetInt(config.KeyServerPort))
			}

			return withStore(func(ctx context.Context, s store.Store) error {
				if _, err := s.GetPage(ctx, id); err != nil {
					return pageNotFound(id, err)
				}

				files, err := snippets.Generate(fw, snippets.Config{
					PageID:     id,
					ServerURL:  strings.TrimSuffix(serverURL, "/"),
					SaleAmount: session.DemoSaleAmount,
				})
				if err != nil {
					return fmt.Errorf("failed to generate snippet: %w", err)
				}

				out := cmd.OutOrStdout()
				for _, f := range files {
					fmt.Fprintf(out, "// %s\n", f.Filename)
					fmt.Fprintln(out, strings.Repeat("-", 60))
					fmt.Fprintln(out, f.Content)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "f", "", "liquid, html, nextjs, react or vue")
	cmd.Flags().StringVar(&serverURL, "server", "", "public server URL (default http://localhost:<port>)")
	return cmd
}

func chooseFramework(name string) (snippets.Framework, error) {
	if name != "" {
		fw, ok := snippets.ParseFramework(strings.ToLower(name))
		if !ok {
			return "", fmt.Errorf("unknown framework %q", name)
		}
		return fw, nil
	}

	labels := make([]string, len(snippets.Frameworks))
	for i, f := range snippets.Frameworks {
		labels[i] = f.Label()
	}
	prompt := promptui.Select{
		Label: "Your storefront",
		Items: labels,
		Size:  len(labels),
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return snippets.Frameworks[idx], nil
}
