package vocab

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the vocabulary service.
//
// Metrics:
//   - vocab_runs_total{result} - extraction runs by outcome (ok, error, skipped)
//   - vocab_run_duration_seconds - histogram of extraction run times
//   - vocab_submissions_processed_total - submissions mined
//   - vocab_terms_observed_total{outcome} - upserts by outcome (new, updated)
//   - vocab_upsert_errors_total - failed upserts
//   - vocab_maintenance_total{action} - terms decayed or pruned
//   - vocab_curation_total{action} - approve and reject calls
//   - vocab_feedback_total{result} - feedback records by outcome (ok, dropped)
//   - vocab_enrich_total{result} - enrichment reads (hit, empty, error)
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	SubmissionsProcessed prometheus.Counter
	TermsObservedTotal   *prometheus.CounterVec
	UpsertErrorsTotal    prometheus.Counter
	MaintenanceTotal     *prometheus.CounterVec
	CurationTotal        *prometheus.CounterVec
	FeedbackTotal        *prometheus.CounterVec
	EnrichTotal          *prometheus.CounterVec
}

// NewMetrics creates and registers metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocab_runs_total",
				Help: "Total number of extraction runs by result",
			},
			[]string{"result"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vocab_run_duration_seconds",
				Help:    "Duration of extraction runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		SubmissionsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocab_submissions_processed_total",
				Help: "Total number of submissions mined for terms",
			},
		),
		TermsObservedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocab_terms_observed_total",
				Help: "Total number of term observations by outcome",
			},
			[]string{"outcome"},
		),
		UpsertErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocab_upsert_errors_total",
				Help: "Total number of failed term upserts",
			},
		),
		MaintenanceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocab_maintenance_total",
				Help: "Total number of terms affected by maintenance",
			},
			[]string{"action"},
		),
		CurationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocab_curation_total",
				Help: "Total number of curation calls by action",
			},
			[]string{"action"},
		),
		FeedbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocab_feedback_total",
				Help: "Total number of feedback records by result",
			},
			[]string{"result"},
		),
		EnrichTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocab_enrich_total",
				Help: "Total number of enrichment reads by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observeRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.RunDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) observeSubmission() {
	if m == nil {
		return
	}
	m.SubmissionsProcessed.Inc()
}

func (m *Metrics) observeTerm(created bool) {
	if m == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "new"
	}
	m.TermsObservedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeUpsertError() {
	if m == nil {
		return
	}
	m.UpsertErrorsTotal.Inc()
}

func (m *Metrics) observeMaintenance(decayed, pruned int) {
	if m == nil {
		return
	}
	m.MaintenanceTotal.WithLabelValues("decay").Add(float64(decayed))
	m.MaintenanceTotal.WithLabelValues("prune").Add(float64(pruned))
}

func (m *Metrics) observeCuration(action string) {
	if m == nil {
		return
	}
	m.CurationTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) observeFeedback(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "dropped"
	}
	m.FeedbackTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) observeEnrich(result string) {
	if m == nil {
		return
	}
	m.EnrichTotal.WithLabelValues(result).Inc()
}
