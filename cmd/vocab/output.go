package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperengineering/vocab"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to stderr with any refine API key redacted.
func outputError(w io.Writer, err error) {
	printStyled(w, iconError, errorStyle, "Error: %s", scrubSensitiveData(err.Error()))
}

func scrubSensitiveData(msg string) string {
	if key := os.Getenv("VOCAB_REFINE_API_KEY"); key != "" && strings.Contains(msg, key) {
		msg = strings.ReplaceAll(msg, key, "[REDACTED]")
	}
	return msg
}

func outputMatches(cmd *cobra.Command, m vocab.Matches) error {
	if outputJSON {
		return outputAsJSON(cmd, m)
	}

	out := cmd.OutOrStdout()
	if m.Count() == 0 {
		fmt.Fprintln(out, "No terms found.")
		return nil
	}
	for _, cat := range vocab.ValidCategories() {
		if terms := m[cat]; len(terms) > 0 {
			printField(out, cat.Label(), strings.Join(terms, ", "))
		}
	}
	return nil
}

func outputEntries(cmd *cobra.Command, entries []vocab.TerminologyEntry) error {
	if outputJSON {
		return outputAsJSON(cmd, entries)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching terms.")
		return nil
	}

	if isTTY() {
		fmt.Fprintln(out, renderMarkdown(entriesMarkdown(entries)))
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tCATEGORY\tFREQ\tCONFIDENCE\tAPPROVED\tLAST SEEN")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%v\t%s\n",
			e.Term, e.Category, e.Frequency, e.Confidence, e.UserApproved, e.LastSeen.Format(time.DateOnly))
	}
	return tw.Flush()
}

// entriesMarkdown renders entries as a markdown table for glamour.
func entriesMarkdown(entries []vocab.TerminologyEntry) string {
	var sb strings.Builder
	sb.WriteString("| Term | Category | Freq | Confidence | Approved |\n")
	sb.WriteString("|---|---|---:|---:|:---:|\n")
	for _, e := range entries {
		approved := ""
		if e.UserApproved {
			approved = "yes"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %s |\n",
			strings.ReplaceAll(e.Term, "|", `\|`), e.Category, e.Frequency, e.Confidence, approved))
	}
	return sb.String()
}

func outputSnapshot(cmd *cobra.Command, snap *vocab.Snapshot) error {
	if outputJSON {
		return outputAsJSON(cmd, snap)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Snapshot %s recorded", snap.ID)
	printField(out, "Submissions", snap.TotalSubmissions)
	printField(out, "New terms", snap.NewTermsFound)
	printField(out, "Updated terms", snap.UpdatedTerms)
	top := "none"
	if len(snap.TopTerms) > 0 {
		top = strings.Join(snap.TopTerms, ", ")
	}
	printField(out, "Top terms", top)
	printField(out, "Duration", snap.Duration.Round(time.Millisecond))
	return nil
}

func outputMaintenance(cmd *cobra.Command, r *vocab.MaintenanceReport) error {
	if outputJSON {
		return outputAsJSON(cmd, r)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Maintenance complete")
	printField(out, "Decayed", r.Decayed)
	printField(out, "Pruned", r.Pruned)
	printField(out, "Terms remaining", r.Stats.TermCount)
	return nil
}

func outputStats(cmd *cobra.Command, s *vocab.StoreStats) error {
	if outputJSON {
		return outputAsJSON(cmd, s)
	}

	out := cmd.OutOrStdout()
	printInfo(out, "Vocabulary store (schema %s)", s.SchemaVersion)
	printField(out, "Terms", s.TermCount)
	printField(out, "Approved", s.ApprovedCount)
	printField(out, "Average confidence", fmt.Sprintf("%.2f", s.AverageConfidence))
	for _, cat := range vocab.ValidCategories() {
		if n := s.ByCategory[cat]; n > 0 {
			printField(out, "  "+cat.Label(), n)
		}
	}
	printField(out, "Snapshots", s.SnapshotCount)
	printField(out, "Feedback events", s.FeedbackCount)
	printField(out, "Pending submissions", s.PendingInbox)
	if s.LastSnapshot.IsZero() {
		printField(out, "Last snapshot", "never")
	} else {
		printField(out, "Last snapshot", fmt.Sprintf("%s (%s ago)",
			s.LastSnapshot.Format(time.RFC3339), time.Since(s.LastSnapshot).Round(time.Minute)))
	}
	return nil
}

func outputBundle(cmd *cobra.Command, b *vocab.TrainingBundle, path string) error {
	if outputJSON && path == "" {
		return outputAsJSON(cmd, b)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]any{
			"path":        path,
			"event_count": b.EventCount,
			"linked":      b.Summary.Linked,
			"unlinked":    len(b.Unlinked),
		})
	}

	out := cmd.OutOrStdout()
	if path != "" {
		printSuccess(out, "Exported %d events to %s", b.EventCount, path)
	} else {
		printInfo(out, "%d feedback events (use --output to write the bundle)", b.EventCount)
	}
	printField(out, "Linked", b.Summary.Linked)
	printField(out, "Unlinked", len(b.Unlinked))
	q := b.Summary.Quality
	printField(out, "Quality", fmt.Sprintf("high %d, medium %d, low %d, unrated %d", q.High, q.Medium, q.Low, q.Unrated))
	printField(out, "Average quality", fmt.Sprintf("%.2f", b.Summary.AverageQuality))
	return nil
}
