package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperengineering/vocab"
	"github.com/spf13/cobra"
)

// maxIngestLine bounds one JSON line.
const maxIngestLine = 4 << 20

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Queue submissions from JSON lines",
	Long: `Read one submission per line and queue it for the next extraction run.
Reads stdin when no file is given. Submissions already queued are ignored.

Line format:
  {"id":"s-1","submitter_role":"clinician","fields":[{"name":"notes","text":"..."}]}

Example:
  vocab ingest submissions.jsonl
  cat export.jsonl | vocab ingest`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	subs, err := parseSubmissions(r)
	if err != nil {
		return err
	}

	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	n, err := svc.Ingest(context.Background(), subs)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]int{"received": len(subs), "queued": n})
	}
	printSuccess(cmd.OutOrStdout(), "Queued %d of %d submissions", n, len(subs))
	if n < len(subs) {
		printMuted(cmd.OutOrStdout(), "  %d already queued", len(subs)-n)
	}
	return nil
}

func parseSubmissions(r io.Reader) ([]vocab.Submission, error) {
	var subs []vocab.Submission
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxIngestLine)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var sub vocab.Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("line %d: submission has no id", line)
		}
		subs = append(subs, sub)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}
	return subs, nil
}
