package vocab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperengineering/vocab/internal/refine"
	"github.com/hyperengineering/vocab/internal/rules"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Refiner rewrites an enriched prompt. The internal refine client satisfies it.
type Refiner interface {
	Refine(ctx context.Context, prompt string) (string, error)
}

// Service is the main interface for the vocabulary service. Construct one
// per process; it owns the store and the background scheduler.
type Service struct {
	store        *Store
	extractor    *Extractor
	orchestrator *Orchestrator
	refiner      Refiner
	logger       *zap.Logger
	metrics      *Metrics
	config       Config

	closeOnce sync.Once
	closeErr  error
}

// Option configures New.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	registerer   prometheus.Registerer
	source       SubmissionSource
	refiner      Refiner
	extractor    *Extractor
	storeOptions []StoreOption
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers service metrics on reg. Without it metrics are
// collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSource replaces the store's submission inbox as the upstream source.
func WithSource(src SubmissionSource) Option {
	return func(o *options) { o.source = src }
}

// WithRefiner sets the text-generation collaborator used by Refine.
func WithRefiner(r Refiner) Option {
	return func(o *options) { o.refiner = r }
}

// WithExtractor overrides the extractor built from Config.RulesPath.
func WithExtractor(e *Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithStoreOptions passes options through to NewStore.
func WithStoreOptions(opts ...StoreOption) Option {
	return func(o *options) { o.storeOptions = append(o.storeOptions, opts...) }
}

// New creates a vocabulary service.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	extractor := o.extractor
	if extractor == nil {
		var err error
		extractor, err = loadExtractor(cfg.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}
	}
	if skipped := extractor.Skipped(); len(skipped) > 0 {
		logger.Warn("rule patterns skipped", zap.Strings("patterns", skipped))
	}

	store, err := NewStore(cfg.DBPath, o.storeOptions...)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	source := o.source
	if source == nil {
		source = store
	}

	refiner := o.refiner
	if refiner == nil && cfg.Refine.Enabled() {
		refiner = refine.New(cfg.Refine)
	}

	metrics := NewMetrics(o.registerer)
	s := &Service{
		store:     store,
		extractor: extractor,
		refiner:   refiner,
		logger:    logger,
		metrics:   metrics,
		config:    cfg,
	}
	s.orchestrator = newOrchestrator(store, source, extractor, cfg, logger.Named("orchestrator"), metrics)

	logger.Info("vocabulary service ready",
		zap.String("db_path", cfg.DBPath),
		zap.String("rules_version", extractor.Version()),
		zap.Bool("refiner", refiner != nil),
	)

	if cfg.AutoStart {
		s.orchestrator.Start()
	}
	return s, nil
}

func loadExtractor(path string) (*Extractor, error) {
	if path == "" {
		return DefaultExtractor(), nil
	}
	table, err := rules.Load(path)
	if err != nil {
		return nil, err
	}
	return NewExtractor(table)
}

// Store returns the underlying store.
func (s *Service) Store() *Store { return s.store }

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.config }

// Orchestrator returns the background scheduler.
func (s *Service) Orchestrator() *Orchestrator { return s.orchestrator }

// Extract runs the extractor over text. It never fails.
func (s *Service) Extract(text string) Matches {
	return s.extractor.Extract(text)
}

// GetVocabulary returns learned terms. A nil MinConfidence uses
// DefaultMinConfidence.
func (s *Service) GetVocabulary(ctx context.Context, query VocabularyQuery) ([]TerminologyEntry, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.store.GetVocabulary(ctx, query)
}

// Get returns a single term entry.
func (s *Service) Get(ctx context.Context, term string) (*TerminologyEntry, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.store.Get(ctx, term)
}

// Snapshot triggers an extraction run and returns its snapshot.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	return s.orchestrator.RunOnce(ctx)
}

// Maintain runs one decay and prune cycle.
func (s *Service) Maintain(ctx context.Context) (*MaintenanceReport, error) {
	return s.orchestrator.Maintain(ctx)
}

// Snapshots returns recent snapshots, newest first.
func (s *Service) Snapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.store.Snapshots(ctx, limit)
}

// Stats returns store statistics.
func (s *Service) Stats(ctx context.Context) (*StoreStats, error) {
	return s.store.Stats(ctx)
}

// Ingest queues submissions for the next extraction run.
func (s *Service) Ingest(ctx context.Context, subs []Submission) (int, error) {
	n, err := s.store.AddSubmissions(ctx, subs)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("submissions queued", zap.Int("received", len(subs)), zap.Int("queued", n))
	return n, nil
}

// Start launches the background scheduler.
func (s *Service) Start() {
	s.orchestrator.Start()
}

// Close stops the scheduler, waiting up to 30 seconds for an in-flight run,
// then closes the store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.orchestrator.Stop(ctx); err != nil {
			s.logger.Warn("scheduler did not drain before close", zap.Error(err))
		}
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

// callContext applies CallTimeout when ctx carries no deadline.
func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.config.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.CallTimeout)
}
