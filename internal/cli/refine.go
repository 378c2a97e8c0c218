package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/generator"
)

func init() {
	rootCmd.AddCommand(newRefineCmd())
}

func newRefineCmd() *cobra.Command {
	var instruction string

	cmd := &cobra.Command{
		Use:   "refine <text...>",
		Short: "Rewrite marketing copy with AI",
		Long: `Rewrite a piece of copy. When the model is unavailable the original
text is printed unchanged.

Examples:
  shopboost refine "our serum is good for skin"
  shopboost refine "Buy now" --instruction "more urgent"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			gen, err := newGenerator(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gen.Refine(ctx, strings.Join(args, " "), instruction))
			return nil
		},
	}

	cmd.Flags().StringVarP(&instruction, "instruction", "i", generator.DefaultInstruction, "how to rewrite the text")
	return cmd
}
