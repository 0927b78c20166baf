package vocab

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "vocab.db")
	}
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithStoreOptions(WithClock(clock.Now)),
	}, opts...)

	svc, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, clock
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{DBPath: filepath.Join(t.TempDir(), "x.db"), LogFormat: "xml"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("New error = %v, want *ValidationError", err)
	}
}

func TestNew_LoadsRulesFile(t *testing.T) {
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
version: lab-1
sets:
  - category: method
    patterns:
      - '(?i)\bnanopore\b'
`
	if err := os.WriteFile(rulesPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	svc, _ := newTestService(t, Config{RulesPath: rulesPath})
	got := svc.Extract("Sequenced on Nanopore overnight")
	if !containsTerm(got[CategoryMethod], "nanopore") {
		t.Errorf("method = %v, want nanopore from custom rules", got[CategoryMethod])
	}
	if svc.extractor.Version() != "lab-1" {
		t.Errorf("rules version = %q, want lab-1", svc.extractor.Version())
	}
}

func TestNew_MissingRulesFile(t *testing.T) {
	_, err := New(Config{
		DBPath:    filepath.Join(t.TempDir(), "x.db"),
		RulesPath: filepath.Join(t.TempDir(), "missing.yaml"),
	}, WithLogger(zap.NewNop()))
	if err == nil {
		t.Fatal("New returned nil error for missing rules file")
	}
}

func TestService_GetVocabulary_DefaultMinimum(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})

	for i := 0; i < 3; i++ {
		if _, err := svc.Store().Upsert(ctx, "pcr", CategoryMethod, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Store().Upsert(ctx, "elisa", CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}

	got, err := svc.GetVocabulary(ctx, VocabularyQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Term != "pcr" {
		t.Errorf("GetVocabulary = %v, want [pcr] at default minimum 0.5", got)
	}
}

func TestService_Close_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := svc.Stats(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Stats after Close = %v, want ErrStoreClosed", err)
	}
}

func TestService_MetricsRegistered(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	svc, _ := newTestService(t, Config{}, WithRegisterer(reg))

	if _, err := svc.Ingest(ctx, []Submission{{ID: "s1", Fields: []TextField{{Name: "n", Text: "ELISA and PCR"}}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(svc.metrics.RunsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("vocab_runs_total{result=ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(svc.metrics.SubmissionsProcessed); got != 1 {
		t.Errorf("vocab_submissions_processed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(svc.metrics.TermsObservedTotal.WithLabelValues("new")); got < 2 {
		t.Errorf("vocab_terms_observed_total{outcome=new} = %v, want >= 2", got)
	}

	n, err := testutil.GatherAndCount(reg, "vocab_runs_total")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("vocab_runs_total series = %d, want 1", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.observeRun("ok", time.Second)
	m.observeTerm(true)
	m.observeCuration(ActionApprove)
	m.observeFeedback(false)
	m.observeEnrich("hit")
	m.observeMaintenance(1, 2)
}

func TestService_CallContextAppliesTimeout(t *testing.T) {
	svc, _ := newTestService(t, Config{CallTimeout: time.Second})

	ctx, cancel := svc.callContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("callContext did not apply a deadline")
	}

	parent, parentCancel := context.WithTimeout(context.Background(), time.Hour)
	defer parentCancel()
	ctx, cancel2 := svc.callContext(parent)
	defer cancel2()
	if d, _ := ctx.Deadline(); time.Until(d) < 30*time.Minute {
		t.Error("callContext replaced an existing deadline")
	}
}
