package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/vocab"
	"github.com/hyperengineering/vocab/internal/httpapi"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

func newTestAPI(t *testing.T) (*httptest.Server, *vocab.Service) {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc, err := vocab.New(
		vocab.Config{DBPath: filepath.Join(t.TempDir(), "test.db")},
		vocab.WithLogger(zaptest.NewLogger(t)),
		vocab.WithRegisterer(reg),
	)
	if err != nil {
		t.Fatalf("vocab.New failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	ts := httptest.NewServer(httpapi.NewServer(svc, reg, zaptest.NewLogger(t)).Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestHealth(t *testing.T) {
	ts, svc := newTestAPI(t)

	resp, _ := do(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	svc.Store().Close()
	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, want 503 (%s)", resp.StatusCode, body)
	}
}

func TestIngestSnapshotVocabulary(t *testing.T) {
	ts, _ := newTestAPI(t)

	payload := `{"submissions":[
		{"id":"s1","submitter_role":"clinician","fields":[{"name":"notes","text":"Biopsy scheduled, ELISA pending"}]},
		{"id":"s2","fields":[{"name":"notes","text":"ELISA read"}]}
	]}`
	resp, body := do(t, http.MethodPost, ts.URL+"/v1/submissions", payload)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d: %s", resp.StatusCode, body)
	}
	var ing struct{ Received, Queued int }
	if err := json.Unmarshal(body, &ing); err != nil || ing.Queued != 2 {
		t.Errorf("ingest = %s", body)
	}

	resp, body = do(t, http.MethodPost, ts.URL+"/v1/snapshots", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("snapshot status = %d: %s", resp.StatusCode, body)
	}
	var snap vocab.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TotalSubmissions != 2 || snap.NewTermsFound != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	resp, body = do(t, http.MethodGet, ts.URL+"/v1/vocabulary?min_confidence=0&category=method", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vocabulary status = %d", resp.StatusCode)
	}
	var entries []vocab.TerminologyEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Term != "elisa" {
		t.Errorf("entries = %+v", entries)
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/snapshots?limit=5", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("snapshots status = %d", resp.StatusCode)
	}
}

func TestIngest_Validation(t *testing.T) {
	ts, _ := newTestAPI(t)

	for _, body := range []string{
		`{"submissions":[]}`,
		`{"submissions":[{"fields":[]}]}`,
		`[{"id":"s1","fields":[{"name":"notes","text":"ELISA"}]}]`,
		`not json`,
	} {
		resp, _ := do(t, http.MethodPost, ts.URL+"/v1/submissions", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}

	resp, _ := do(t, http.MethodGet, ts.URL+"/v1/vocabulary?category=bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid category status = %d, want 400", resp.StatusCode)
	}
}

func TestCuration(t *testing.T) {
	ts, svc := newTestAPI(t)
	if _, err := svc.Store().Upsert(context.Background(), "crispr", vocab.CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/terms/crispr/approve", `{"actor_id":"admin"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d: %s", resp.StatusCode, body)
	}
	var entry vocab.TerminologyEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		t.Fatal(err)
	}
	if !entry.UserApproved || entry.Confidence != 1.0 {
		t.Errorf("entry = %+v", entry)
	}

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/terms/crispr/approve", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("approve without actor = %d, want 400", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, ts.URL+"/v1/terms/ghost?actor_id=admin", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("reject unknown = %d, want 404", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, ts.URL+"/v1/terms/crispr?actor_id=admin", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("reject = %d, want 204", resp.StatusCode)
	}
}

func TestFeedbackAndEnrich(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/feedback", `{"submitter_id":"u-1","ratings":{"quality":4}}`)
	if resp.StatusCode != http.StatusAccepted || !strings.Contains(string(body), `"recorded":true`) {
		t.Errorf("feedback = %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, ts.URL+"/v1/feedback", `{"ratings":{"quality":4}}`)
	if resp.StatusCode != http.StatusAccepted || !strings.Contains(string(body), `"recorded":false`) {
		t.Errorf("invalid feedback = %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, ts.URL+"/v1/enrich/meeting", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"block":""`) {
		t.Errorf("enrich = %d %s", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, svc := newTestAPI(t)
	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `vocab_runs_total{result="ok"} 1`) {
		t.Errorf("metrics body missing run counter:\n%s", body)
	}
}

func TestMetricsServer_OnlyMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "scrape_check_total", Help: "scrape check"}))

	ts := httptest.NewServer(httpapi.NewMetricsServer(reg, zaptest.NewLogger(t)).Handler())
	defer ts.Close()

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "scrape_check_total 0") {
		t.Errorf("metrics = %d %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodGet, ts.URL+"/health", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("health on metrics server = %d, want 404", resp.StatusCode)
	}
}
