package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export feedback as a training bundle",
	Long: `Group feedback events by submitter role, summarize ratings and
attach approved vocabulary. The store is not modified.

Example:
  vocab export --output training.json
  vocab export --json > training.json`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write the bundle to this file")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	bundle, err := svc.ExportTrainingData(context.Background(), exportOutput)
	if err != nil {
		return fmt.Errorf("export training data: %w", err)
	}
	return outputBundle(cmd, bundle, exportOutput)
}
