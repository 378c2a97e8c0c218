package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/shopify"
	"github.com/shopboost/shopboost/internal/store"
)

func init() {
	rootCmd.AddCommand(newProductsCmd())
}

func newProductsCmd() *cobra.Command {
	var domain, token string

	cmd := &cobra.Command{
		Use:     "products <id>",
		Aliases: []string{"connect"},
		Short:   "Connect a Shopify store and list its products",
		Long: `Fetch up to 10 products from a Shopify store through the Storefront API.
A successful fetch saves the store credential for later sessions. Without
--domain and --token the saved credential is used; without either, the demo
products are shown.

Examples:
  shopboost products 3f9a1c2e --domain my-shop.myshopify.com --token abc123
  shopboost products 3f9a1c2e`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (domain == "") != (token == "") {
				return fmt.Errorf("use --domain and --token together")
			}

			return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
				src := newProductSource()
				var err error
				if domain != "" {
					err = sess.ConnectProducts(ctx, src, shopify.NormalizeDomain(domain), token)
				} else {
					err = sess.Reconnect(ctx, src)
				}
				if err != nil {
					return retryHint(err)
				}
				printProducts(cmd, sess.Products())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "store domain, e.g. my-shop.myshopify.com")
	cmd.Flags().StringVar(&token, "token", "", "Storefront API access token")
	return cmd
}

func printProducts(cmd *cobra.Command, products []shopify.Product) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tTITLE\tPRICE")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Handle, p.Title, p.Price)
	}
	w.Flush()
}
