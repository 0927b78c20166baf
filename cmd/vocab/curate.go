package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var curateActor string

var approveCmd = &cobra.Command{
	Use:   "approve <term>",
	Short: "Approve a term",
	Long: `Approve a term, pinning it at confidence 1.0 and exempting it from pruning.

Example:
  vocab approve crispr --actor alice`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <term>",
	Short: "Reject and delete a term",
	Long: `Reject a term. The entry is deleted; it can be learned again if it
keeps appearing in submissions.

Example:
  vocab reject fyi --actor alice`,
	Args: cobra.ExactArgs(1),
	RunE: runReject,
}

func init() {
	for _, c := range []*cobra.Command{approveCmd, rejectCmd} {
		c.Flags().StringVar(&curateActor, "actor", "", "Administrator ID (default: $USER)")
		rootCmd.AddCommand(c)
	}
}

func actorID() string {
	if curateActor != "" {
		return curateActor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func runApprove(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	entry, err := svc.Approve(context.Background(), args[0], actorID())
	if err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, entry)
	}
	printSuccess(cmd.OutOrStdout(), "Approved %q (%s)", entry.Term, entry.Category)
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Reject(context.Background(), args[0], actorID()); err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]any{"term": args[0], "rejected": true})
	}
	printSuccess(cmd.OutOrStdout(), "Rejected %q", args[0])
	return nil
}
