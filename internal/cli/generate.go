package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/store"
)

var generateCmd = &cobra.Command{
	Use:   "generate <id> <prompt...>",
	Short: "Replace a page's blocks with an AI layout",
	Long: `Describe the product and audience; Gemini drafts a block layout that
replaces the current blocks. On failure the page is left unchanged.

Example:
  shopboost generate 3f9a1c2e "vegan vitamin C serum for busy parents"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args[1:], " ")

	return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
		gen, err := newGenerator(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Generating layout...")
		if err := sess.Generate(ctx, gen, prompt); err != nil {
			return retryHint(err)
		}

		page := sess.Page()
		printBlocks(cmd, &page)
		return nil
	})
}
