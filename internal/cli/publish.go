package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/store"
)

func init() {
	rootCmd.AddCommand(publishCmd, unpublishCmd, renameCmd)
}

var publishCmd = &cobra.Command{
	Use:   "publish <id>",
	Short: "Mark a page as published",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], store.StatusPublished)
	},
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish <id>",
	Short: "Return a page to draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], store.StatusDraft)
	},
}

func setStatus(cmd *cobra.Command, id string, status store.PageStatus) error {
	return withSession(id, func(ctx context.Context, _ store.Store, sess *session.Session) error {
		var err error
		if status == store.StatusPublished {
			err = sess.Publish()
		} else {
			err = sess.Unpublish()
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Page '%s' is now %s\n", sess.Page().Title, strings.ToUpper(string(status)))
		return nil
	})
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Change a page title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
			if err := sess.SetTitle(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed page %s to '%s'\n", args[0], args[1])
			return nil
		})
	},
}
