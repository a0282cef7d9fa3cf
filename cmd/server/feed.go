package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"talkwise.app/circles/internal/store"
)

func newFeedCmd() *cobra.Command {
	var (
		databaseURL string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the stored feed, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.NewSQLiteStore(databaseURL, nil)
			if err != nil {
				return fmt.Errorf("open database %s: %w", databaseURL, err)
			}
			defer s.Close()
			return printFeed(cmd.Context(), cmd.OutOrStdout(), s, limit)
		},
	}

	cmd.Flags().StringVarP(&databaseURL, "database", "d", "circles.db", "path to the SQLite database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum messages to print (0 for all)")
	return cmd
}

func printFeed(ctx context.Context, out io.Writer, s store.MessageStore, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	messages, err := s.ListMessages(ctx)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	if len(messages) == 0 {
		fmt.Fprintln(out, "No messages yet.")
		return nil
	}

	if limit > 0 && limit < len(messages) {
		messages = messages[:limit]
	}
	for _, m := range messages {
		fmt.Fprintf(out, "%s  %-16s %s\n", m.CreatedAt.Local().Format(time.DateTime), m.Author, m.Body)
	}
	return nil
}
