package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperengineering/vocab"
	"github.com/spf13/cobra"
)

var enrichPrompt string

var enrichCmd = &cobra.Command{
	Use:   "enrich <context-type>",
	Short: "Print the vocabulary block for a prompt",
	Long: fmt.Sprintf(`Render established vocabulary as a context block for prompt construction.

Known context types: %s. Other types use the largest categories.
With --prompt, the block is appended to the prompt and sent to the
configured refiner (VOCAB_REFINE_URL).

Example:
  vocab enrich meeting
  vocab enrich research --prompt "Summarize these lab notes"`, strings.Join(vocab.ContextTypes(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().StringVarP(&enrichPrompt, "prompt", "p", "", "Prompt to refine with the enrichment block")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	if enrichPrompt != "" {
		refined, err := svc.Refine(ctx, args[0], enrichPrompt)
		if err != nil {
			return fmt.Errorf("refine: %w", err)
		}
		if outputJSON {
			return outputAsJSON(cmd, map[string]string{"context_type": args[0], "output": refined})
		}
		fmt.Fprintln(cmd.OutOrStdout(), refined)
		return nil
	}

	block := svc.EnrichedContext(ctx, args[0])
	if outputJSON {
		return outputAsJSON(cmd, map[string]string{"context_type": args[0], "block": block})
	}
	if block == "" {
		printMuted(cmd.OutOrStdout(), "No established vocabulary yet.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), block)
	return nil
}
