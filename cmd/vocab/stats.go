package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long: `Display term counts by category, queued submissions, and snapshot history.

Example:
  vocab stats
  vocab stats --json`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	return outputStats(cmd, stats)
}
