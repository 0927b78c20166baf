package main

import (
	"context"

	"github.com/hyperengineering/vocab"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Run extraction over new submissions",
	Long: `Mine submissions queued since the last run, update the vocabulary and
record a snapshot.

Example:
  vocab snapshot
  vocab snapshot --json`,
	RunE: runSnapshot,
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Decay idle terms and prune stale ones",
	Long: `Run one maintenance cycle: lower the confidence of terms not seen
recently, then delete unapproved low-confidence terms past retention.`,
	RunE: runMaintain,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(maintainCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	var snap *vocab.Snapshot
	err = runWithSpinner(cmd.ErrOrStderr(), "Extracting", func() error {
		var runErr error
		snap, runErr = svc.Snapshot(context.Background())
		return runErr
	})
	if err != nil {
		return err
	}
	return outputSnapshot(cmd, snap)
}

func runMaintain(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	var report *vocab.MaintenanceReport
	err = runWithSpinner(cmd.ErrOrStderr(), "Maintaining", func() error {
		var runErr error
		report, runErr = svc.Maintain(context.Background())
		return runErr
	})
	if err != nil {
		return err
	}
	return outputMaintenance(cmd, report)
}
