package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ExportVersion is the current version of the training bundle format.
const ExportVersion = "1.0"

// Quality rating thresholds for the distribution summary.
const (
	qualityHighMin   = 4
	qualityMediumMin = 3
)

// TrainingBundle is the serializable output of ExportTrainingData.
type TrainingBundle struct {
	Version    string                     `json:"version"`
	ExportedAt time.Time                  `json:"exported_at"`
	EventCount int                        `json:"event_count"`
	ByRole     map[string][]FeedbackEvent `json:"by_role"`
	Unlinked   []FeedbackEvent            `json:"unlinked"`
	Summary    RatingsSummary             `json:"summary"`
	Vocabulary []TerminologyEntry         `json:"vocabulary"`
}

// Events returns every event in the bundle, linked ones first by role.
func (b *TrainingBundle) Events() []FeedbackEvent {
	roles := make([]string, 0, len(b.ByRole))
	for role := range b.ByRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	events := make([]FeedbackEvent, 0, b.EventCount)
	for _, role := range roles {
		events = append(events, b.ByRole[role]...)
	}
	return append(events, b.Unlinked...)
}

// RatingsSummary aggregates ratings across linked events.
type RatingsSummary struct {
	Linked             int                    `json:"linked"`
	Quality            QualityDistribution    `json:"quality"`
	AverageQuality     float64                `json:"average_quality"`
	AverageHelpfulness float64                `json:"average_helpfulness"`
	AverageEase        float64                `json:"average_ease"`
	ByRole             map[string]RoleSummary `json:"by_role"`
}

// QualityDistribution buckets quality ratings: high >= 4, medium == 3,
// low 1-2. A zero rating counts as unrated.
type QualityDistribution struct {
	High    int `json:"high"`
	Medium  int `json:"medium"`
	Low     int `json:"low"`
	Unrated int `json:"unrated"`
}

func (d *QualityDistribution) add(quality int) {
	switch {
	case quality <= 0:
		d.Unrated++
	case quality >= qualityHighMin:
		d.High++
	case quality >= qualityMediumMin:
		d.Medium++
	default:
		d.Low++
	}
}

// RoleSummary aggregates ratings for one submitter role.
type RoleSummary struct {
	Count          int                 `json:"count"`
	Quality        QualityDistribution `json:"quality"`
	AverageQuality float64             `json:"average_quality"`
}

// ExportTrainingData joins feedback with submission links, grouped by
// submitter role, and summarizes ratings. Events without a submission link
// are kept in Unlinked so no event is dropped. When outputPath is set the
// bundle is also written there as indented JSON. It does not modify the
// store.
func (s *Service) ExportTrainingData(ctx context.Context, outputPath string) (*TrainingBundle, error) {
	events, err := s.store.FeedbackEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	approved, err := s.store.ApprovedTerms(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	bundle := buildBundle(events, approved, s.store.now().UTC())

	if outputPath != "" {
		if err := writeBundle(outputPath, bundle); err != nil {
			return nil, err
		}
		s.logger.Info("training data exported",
			zap.String("path", outputPath),
			zap.Int("event_count", bundle.EventCount),
			zap.Int("linked", bundle.Summary.Linked),
		)
	}
	return bundle, nil
}

func buildBundle(events []FeedbackEvent, approved []TerminologyEntry, now time.Time) *TrainingBundle {
	bundle := &TrainingBundle{
		Version:    ExportVersion,
		ExportedAt: now,
		EventCount: len(events),
		ByRole:     make(map[string][]FeedbackEvent),
		Unlinked:   []FeedbackEvent{},
		Summary:    RatingsSummary{ByRole: make(map[string]RoleSummary)},
		Vocabulary: approved,
	}
	if bundle.Vocabulary == nil {
		bundle.Vocabulary = []TerminologyEntry{}
	}

	var (
		qualitySum, qualityN         int
		helpfulnessSum, helpfulnessN int
		easeSum, easeN               int
		roleQuality                  = make(map[string][2]int)
	)

	for _, e := range events {
		if !e.Linked() {
			bundle.Unlinked = append(bundle.Unlinked, e)
			continue
		}

		role := e.SubmitterRole
		if role == "" {
			role = "unknown"
		}
		bundle.ByRole[role] = append(bundle.ByRole[role], e)

		bundle.Summary.Linked++
		bundle.Summary.Quality.add(e.Ratings.Quality)

		rs := bundle.Summary.ByRole[role]
		rs.Count++
		rs.Quality.add(e.Ratings.Quality)
		bundle.Summary.ByRole[role] = rs

		if q := e.Ratings.Quality; q > 0 {
			qualitySum += q
			qualityN++
			rq := roleQuality[role]
			roleQuality[role] = [2]int{rq[0] + q, rq[1] + 1}
		}
		if h := e.Ratings.Helpfulness; h > 0 {
			helpfulnessSum += h
			helpfulnessN++
		}
		if ea := e.Ratings.Ease; ea > 0 {
			easeSum += ea
			easeN++
		}
	}

	bundle.Summary.AverageQuality = average(qualitySum, qualityN)
	bundle.Summary.AverageHelpfulness = average(helpfulnessSum, helpfulnessN)
	bundle.Summary.AverageEase = average(easeSum, easeN)
	for role, rq := range roleQuality {
		rs := bundle.Summary.ByRole[role]
		rs.AverageQuality = average(rq[0], rq[1])
		bundle.Summary.ByRole[role] = rs
	}

	return bundle
}

func average(sum, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(n)*100) / 100
}

// writeBundle writes b to path through a temporary file in the same
// directory so readers never see a partial bundle.
func writeBundle(path string, b *TrainingBundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("export: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bundle-*.json")
	if err != nil {
		return fmt.Errorf("export: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("export: write bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("export: sync bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: rename bundle: %w", err)
	}
	return nil
}

// ReadBundle parses a bundle written by ExportTrainingData.
func ReadBundle(path string) (*TrainingBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b TrainingBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return &b, nil
}
