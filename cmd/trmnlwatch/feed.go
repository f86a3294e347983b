package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
	"github.com/spf13/cobra"
)

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect synced announcements and blog posts",
	}
	cmd.AddCommand(newFeedListCmd(), newFeedMarkReadCmd())
	return cmd
}

func newFeedListCmd() *cobra.Command {
	var flagUnread bool

	cmd := &cobra.Command{
		Use:   "list <announcements|blog_posts>",
		Short: "List stored feed items, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := feed.ParseKind(args[0])
			if err != nil {
				return err
			}

			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			items, err := database.GetFeedItems(cmd.Context(), kind)
			if err != nil {
				return fmt.Errorf("reading %s: %w", kind, err)
			}
			unread, err := database.UnreadCount(cmd.Context(), kind)
			if err != nil {
				return fmt.Errorf("counting unread %s: %w", kind, err)
			}
			if flagUnread {
				items = unreadOnly(items)
			}

			out := cmd.OutOrStdout()
			if err := printFeedItems(out, items); err != nil {
				return err
			}
			fmt.Fprintln(out, feedSummary(kind, len(items), unread))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagUnread, "unread", false, "Only show unread items")
	return cmd
}

func newFeedMarkReadCmd() *cobra.Command {
	var flagAll bool

	cmd := &cobra.Command{
		Use:   "mark-read <announcements|blog_posts> [id]",
		Short: "Mark one item, or every item with --all, as read",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := feed.ParseKind(args[0])
			if err != nil {
				return err
			}
			if flagAll == (len(args) == 2) {
				return errors.New("pass either an item id or --all")
			}

			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			out := cmd.OutOrStdout()
			if flagAll {
				n, err := database.MarkAllFeedItemsRead(cmd.Context(), kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "marked %d %s as read\n", n, kind.Label())
				return nil
			}

			id := args[1]
			if err := database.MarkFeedItemRead(cmd.Context(), kind, id); err != nil {
				if db.IsNotFound(err) {
					return fmt.Errorf("no %s item with id %q", kind, id)
				}
				return err
			}
			fmt.Fprintf(out, "marked %s %s as read\n", kind, id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagAll, "all", false, "Mark every item in the feed as read")
	return cmd
}

func feedSummary(kind feed.Kind, shown, unread int) string {
	return fmt.Sprintf("%d %s shown, %d unread", shown, kind.Label(), unread)
}

func unreadOnly(items []feed.Item) []feed.Item {
	out := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if !item.IsRead {
			out = append(out, item)
		}
	}
	return out
}

func printFeedItems(w io.Writer, items []feed.Item) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PUBLISHED\tID\tREAD\tTITLE")
	for _, item := range items {
		read := " "
		if item.IsRead {
			read = "x"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			item.PublishedAt.Local().Format(time.DateOnly),
			item.ID,
			read,
			item.Title)
	}
	return tw.Flush()
}
