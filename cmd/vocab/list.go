package main

import (
	"context"
	"fmt"

	"github.com/hyperengineering/vocab"
	"github.com/spf13/cobra"
)

var (
	listCategory      string
	listMinConfidence float64
	listLimit         int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned vocabulary",
	Long: `List learned terms ordered by frequency.

Example:
  vocab list
  vocab list --category method --min-confidence 0.3
  vocab list --limit 20 --json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "Restrict to one category")
	listCmd.Flags().Float64Var(&listMinConfidence, "min-confidence", vocab.DefaultMinConfidence, "Minimum confidence 0.0-1.0")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum terms to return (cap 100)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	q := vocab.VocabularyQuery{Limit: listLimit}
	if listCategory != "" {
		q.Category = vocab.Category(listCategory)
		if !q.Category.IsValid() {
			return fmt.Errorf("invalid category %q", listCategory)
		}
	}
	if cmd.Flags().Changed("min-confidence") {
		minConf := listMinConfidence
		q.MinConfidence = &minConf
	}

	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	entries, err := svc.GetVocabulary(context.Background(), q)
	if err != nil {
		return fmt.Errorf("list vocabulary: %w", err)
	}
	return outputEntries(cmd, entries)
}
