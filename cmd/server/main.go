package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"talkwise.app/circles/internal/config"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circles",
		Short: "Talk Wise Circles message relay",
		Long:  "Serves the discussion feed, relays insert notifications to connected clients and requests AI Assistant replies.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFeedCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "circles %s (commit: %s)\n", Version, Commit)
		},
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
