package vocab

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func seedFeedback(t *testing.T, svc *Service) {
	t.Helper()
	events := []FeedbackEvent{
		{SubmitterID: "u1", SubmitterRole: "clinician", SubmissionID: "s1", Ratings: Ratings{Quality: 5, Helpfulness: 4, Ease: 3}},
		{SubmitterID: "u2", SubmitterRole: "clinician", SubmissionID: "s2", Ratings: Ratings{Quality: 3, Helpfulness: 2}},
		{SubmitterID: "u3", SubmitterRole: "researcher", SubmissionID: "s3", Ratings: Ratings{Quality: 1}},
		{SubmitterID: "u4", SubmissionID: "s4"},
		{SubmitterID: "u5", SubmitterRole: "researcher", Text: "no link", Ratings: Ratings{Quality: 5}},
	}
	for _, e := range events {
		if !svc.RecordFeedback(context.Background(), e) {
			t.Fatalf("RecordFeedback(%s) failed", e.SubmitterID)
		}
	}
}

func TestExportTrainingData_Groups(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	seedFeedback(t, svc)

	b, err := svc.ExportTrainingData(ctx, "")
	if err != nil {
		t.Fatalf("ExportTrainingData failed: %v", err)
	}
	if b.Version != ExportVersion {
		t.Errorf("Version = %q", b.Version)
	}
	if b.EventCount != 5 || len(b.Events()) != 5 {
		t.Errorf("EventCount = %d, Events = %d, want 5", b.EventCount, len(b.Events()))
	}
	if len(b.ByRole["clinician"]) != 2 || len(b.ByRole["researcher"]) != 1 || len(b.ByRole["unknown"]) != 1 {
		t.Errorf("ByRole sizes = %d/%d/%d", len(b.ByRole["clinician"]), len(b.ByRole["researcher"]), len(b.ByRole["unknown"]))
	}
	if len(b.Unlinked) != 1 || b.Unlinked[0].SubmitterID != "u5" {
		t.Errorf("Unlinked = %+v", b.Unlinked)
	}

	s := b.Summary
	if s.Linked != 4 {
		t.Errorf("Linked = %d, want 4", s.Linked)
	}
	want := QualityDistribution{High: 1, Medium: 1, Low: 1, Unrated: 1}
	if s.Quality != want {
		t.Errorf("Quality = %+v, want %+v", s.Quality, want)
	}
	if s.AverageQuality != 3 {
		t.Errorf("AverageQuality = %v, want 3", s.AverageQuality)
	}
	if s.AverageHelpfulness != 3 {
		t.Errorf("AverageHelpfulness = %v, want 3", s.AverageHelpfulness)
	}
	if s.AverageEase != 3 {
		t.Errorf("AverageEase = %v, want 3", s.AverageEase)
	}
	if got := s.ByRole["clinician"]; got.Count != 2 || got.AverageQuality != 4 {
		t.Errorf("clinician summary = %+v", got)
	}
}

func TestExportTrainingData_WritesFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	seedFeedback(t, svc)
	if _, err := svc.Store().Upsert(ctx, "pcr", CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(ctx, "pcr", "admin"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out", "bundle.json")
	if _, err := svc.ExportTrainingData(ctx, path); err != nil {
		t.Fatalf("ExportTrainingData failed: %v", err)
	}

	b, err := ReadBundle(path)
	if err != nil {
		t.Fatalf("ReadBundle failed: %v", err)
	}
	if len(b.Events()) != 5 {
		t.Errorf("round-tripped events = %d, want 5", len(b.Events()))
	}
	if len(b.Vocabulary) != 1 || b.Vocabulary[0].Term != "pcr" {
		t.Errorf("Vocabulary = %+v, want approved pcr", b.Vocabulary)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("output dir holds %d files, want only the bundle", len(entries))
	}

	// Export is read-only.
	events, _ := svc.Store().FeedbackEvents(ctx)
	if len(events) != 5 {
		t.Errorf("feedback after export = %d", len(events))
	}
}

func TestExportTrainingData_Empty(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	b, err := svc.ExportTrainingData(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if b.EventCount != 0 || b.Unlinked == nil || b.Vocabulary == nil {
		t.Errorf("empty bundle = %+v", b)
	}
	if b.Summary.AverageQuality != 0 {
		t.Errorf("AverageQuality = %v, want 0", b.Summary.AverageQuality)
	}
}
