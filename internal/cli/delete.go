package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/store"
)

func init() {
	rootCmd.AddCommand(newDeleteCmd())
}

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a landing page",
		Long: `Delete a landing page. Its analytics record is kept.

Examples:
  shopboost delete 3f9a1c2e
  shopboost delete 3f9a1c2e --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			return withStore(func(ctx context.Context, s store.Store) error {
				page, err := s.GetPage(ctx, id)
				if err != nil {
					return pageNotFound(id, err)
				}

				if !yes {
					ok, err := confirm(fmt.Sprintf("Delete '%s'", page.Title))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
						return nil
					}
				}

				if err := s.DeletePage(ctx, id); err != nil {
					return fmt.Errorf("failed to delete page: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted page '%s' (%s)\n", page.Title, id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

// confirm asks a yes/no question. Answering no is not an error.
func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
