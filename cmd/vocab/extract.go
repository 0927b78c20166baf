package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperengineering/vocab"
	"github.com/hyperengineering/vocab/internal/rules"
	"github.com/spf13/cobra"
)

var extractFile string

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Extract terms from text without storing them",
	Long: `Run the extractor over text and print the terms found per category.

Text comes from the arguments, --file, or stdin when neither is given.
Nothing is written to the store.

Example:
  vocab extract "Patient underwent chemotherapy and PCR testing"
  vocab extract --file notes.txt --json`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "Read text from file")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd, args, extractFile)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	extractor := vocab.DefaultExtractor()
	if cfg.RulesPath != "" {
		table, err := rules.Load(cfg.RulesPath)
		if err != nil {
			return err
		}
		if extractor, err = vocab.NewExtractor(table); err != nil {
			return err
		}
		for _, p := range extractor.Skipped() {
			printWarning(cmd.ErrOrStderr(), "skipped pattern %s", p)
		}
	}

	return outputMatches(cmd, extractor.Extract(text))
}

func readText(cmd *cobra.Command, args []string, path string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}
