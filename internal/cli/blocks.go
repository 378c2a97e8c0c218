package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/store"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks <id>",
	Short: "Show and edit the blocks of a page",
	Long: `Show the blocks of a page, or edit them with a subcommand.

Examples:
  shopboost blocks 3f9a1c2e
  shopboost blocks add 3f9a1c2e HERO
  shopboost blocks set 3f9a1c2e 7c1d0e9b title "Glow all day"
  shopboost blocks set 3f9a1c2e 7c1d0e9b items "Vegan,Cruelty free"
  shopboost blocks move 3f9a1c2e 7c1d0e9b -- -1
  shopboost blocks remove 3f9a1c2e 7c1d0e9b`,
	Args: cobra.ExactArgs(1),
	RunE: runBlocks,
}

func init() {
	blocksCmd.AddCommand(blocksAddCmd, blocksSetCmd, blocksMoveCmd, blocksRemoveCmd)
	rootCmd.AddCommand(blocksCmd)
}

func runBlocks(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withStore(func(ctx context.Context, s store.Store) error {
		page, err := s.GetPage(ctx, id)
		if err != nil {
			return pageNotFound(id, err)
		}
		printBlocks(cmd, page)
		return nil
	})
}

func printBlocks(cmd *cobra.Command, page *store.Page) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "PAGE: %s (%s)\n", page.Title, page.ID)
	fmt.Fprintf(out, "STATUS: %s\n", strings.ToUpper(string(page.Status)))
	fmt.Fprintln(out)

	if len(page.Blocks) == 0 {
		fmt.Fprintln(out, "No blocks yet. Add one with: shopboost blocks add "+page.ID)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTYPE\tTITLE")
	for i, b := range page.Blocks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, b.ID, store.Label(b.Type), store.CopyOf(b.Content).Title)
	}
	w.Flush()
}

var blocksAddCmd = &cobra.Command{
	Use:   "add <id> [type]",
	Short: "Append a block with default content",
	Long: `Append a block to a page. Without a type, pick one from the palette.

Types: HERO, FEATURES, TESTIMONIALS, PRICING, PRODUCT_GALLERY, CTA,
TRUST_BADGES, URGENCY_TIMER, REVIEWS, BUNDLE, SOCIAL_PROOF, FOOTER`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			t   store.BlockType
			err error
		)
		if len(args) == 2 {
			var ok bool
			if t, ok = store.ParseBlockType(args[1]); !ok {
				return fmt.Errorf("%w: %s", store.ErrUnknownBlockType, args[1])
			}
		} else if t, err = promptBlockType(); err != nil {
			return err
		}

		return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
			blockID, err := sess.AddBlock(t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", store.Label(t), blockID)
			return nil
		})
	},
}

func promptBlockType() (store.BlockType, error) {
	labels := make([]string, len(store.Palette))
	for i, e := range store.Palette {
		labels[i] = e.Label
	}

	prompt := promptui.Select{
		Label: "Block type",
		Items: labels,
		Size:  len(labels),
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return store.Palette[idx].Type, nil
}

var blocksSetCmd = &cobra.Command{
	Use:   "set <id> <block> <field> <value>",
	Short: "Set a content field of a block",
	Long: `Set one content field of a block. The items field takes a comma
separated list. Unknown block ids are ignored.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		blockID, field := args[1], args[2]
		var value any = args[3]
		if field == "items" {
			value = splitList(args[3])
		}

		return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
			if err := sess.UpdateBlockContent(blockID, field, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.%s\n", blockID, field)
			return nil
		})
	},
}

func splitList(s string) []string {
	items := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

var blocksMoveCmd = &cobra.Command{
	Use:   "move <id> <block> <delta>",
	Short: "Move a block up (negative) or down (positive)",
	Long:  `Move a block by delta positions. Put -- before a negative delta.`,
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("delta must be a whole number: %w", err)
		}
		return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
			if err := sess.MoveBlock(args[1], delta); err != nil {
				return err
			}
			page := sess.Page()
			printBlocks(cmd, &page)
			return nil
		})
	},
}

var blocksRemoveCmd = &cobra.Command{
	Use:   "remove <id> <block>",
	Short: "Remove a block",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(args[0], func(ctx context.Context, _ store.Store, sess *session.Session) error {
			if err := sess.RemoveBlock(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[1])
			return nil
		})
	},
}
