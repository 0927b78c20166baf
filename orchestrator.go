package vocab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the orchestrator's run state.
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateMaintaining State = "maintaining"
)

// Orchestrator mines new submissions into the store on a fixed cadence and
// runs decay and pruning on a slower one.
//
// A run never holds a lock across the whole batch: each term is upserted in
// its own transaction and the submission watermark is checkpointed after
// every fully processed submission. A failed run keeps everything it
// committed and records no snapshot.
type Orchestrator struct {
	store     *Store
	source    SubmissionSource
	extractor *Extractor
	logger    *zap.Logger
	metrics   *Metrics
	config    Config
	now       func() time.Time

	running     atomic.Bool
	maintaining atomic.Bool
	inflight    sync.RWMutex // held shared by each run; Stop takes it exclusively to drain

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func newOrchestrator(store *Store, source SubmissionSource, extractor *Extractor, cfg Config, logger *zap.Logger, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		store:     store,
		source:    source,
		extractor: extractor,
		logger:    logger,
		metrics:   metrics,
		config:    cfg,
		now:       store.now,
	}
}

// State reports whether a run is in progress.
func (o *Orchestrator) State() State {
	switch {
	case o.running.Load():
		return StateRunning
	case o.maintaining.Load():
		return StateMaintaining
	default:
		return StateIdle
	}
}

// RunOnce performs one extraction run and records its snapshot. It returns
// ErrRunInProgress when another run has not finished. The run continues on
// a context detached from ctx's cancellation.
func (o *Orchestrator) RunOnce(ctx context.Context) (snap *Snapshot, err error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	o.inflight.RLock()
	defer func() {
		o.inflight.RUnlock()
		o.running.Store(false)
	}()

	ctx = context.WithoutCancel(ctx)
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			elapsed := o.now().Sub(start)
			o.metrics.observeRun("error", elapsed)
			o.logger.Error("extraction run panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
				zap.Duration("elapsed", elapsed),
			)
			snap, err = nil, fmt.Errorf("%w: %v", ErrRunPanicked, r)
		}
	}()

	snap, err = o.run(ctx, start)
	elapsed := o.now().Sub(start)
	if err != nil {
		o.metrics.observeRun("error", elapsed)
		o.logger.Error("extraction run failed",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
		)
		return nil, err
	}

	o.metrics.observeRun("ok", elapsed)
	o.logger.Info("snapshot recorded",
		zap.String("snapshot_id", snap.ID),
		zap.Int("total_submissions", snap.TotalSubmissions),
		zap.Int("new_terms_found", snap.NewTermsFound),
		zap.Int("updated_terms", snap.UpdatedTerms),
		zap.Strings("top_terms", snap.TopTerms),
		zap.Duration("duration", snap.Duration),
	)
	return snap, nil
}

func (o *Orchestrator) run(ctx context.Context, start time.Time) (*Snapshot, error) {
	cursor, err := o.store.Watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	if floor := start.Add(-o.config.Lookback); cursor.CreatedAt.Before(floor) {
		cursor = Cursor{CreatedAt: floor}
	}

	var (
		total   int
		created = make(map[string]bool)
		updated = make(map[string]bool)
	)

	for {
		batch, err := o.source.SubmissionsAfter(ctx, cursor, o.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch submissions: %w", err)
		}

		advanced := false
		for _, sub := range batch {
			// Sources that page by time only may repeat rows at the cursor.
			if !cursor.Precedes(sub) {
				continue
			}
			advanced = true
			if err := o.process(ctx, sub, created, updated); err != nil {
				return nil, fmt.Errorf("submission %s: %w", sub.ID, err)
			}
			cursor = CursorAt(sub)
			if err := o.store.SetWatermark(ctx, cursor); err != nil {
				return nil, fmt.Errorf("checkpoint watermark: %w", err)
			}
			total++
			o.metrics.observeSubmission()
		}

		if !advanced || o.config.BatchSize <= 0 || len(batch) < o.config.BatchSize {
			break
		}
	}

	top, err := o.topTerms(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Timestamp:        o.now().UTC(),
		TotalSubmissions: total,
		NewTermsFound:    len(created),
		UpdatedTerms:     len(updated),
		TopTerms:         top,
		Duration:         o.now().Sub(start),
	}
	if err := o.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// process upserts every term of one submission in extractor yield order.
func (o *Orchestrator) process(ctx context.Context, sub Submission, created, updated map[string]bool) error {
	text := sub.Text()
	for _, m := range o.extractor.ExtractOrdered(text) {
		res, err := o.store.Upsert(ctx, m.Term, m.Category, Snippet(text, m.Term))
		if errors.Is(err, ErrEmptyTerm) || errors.Is(err, ErrTermTooLong) {
			continue
		}
		if err != nil {
			o.metrics.observeUpsertError()
			return fmt.Errorf("upsert %q: %w", m.Term, err)
		}

		o.metrics.observeTerm(res.Created)
		switch {
		case res.Created:
			created[res.Entry.Term] = true
		case !created[res.Entry.Term]:
			updated[res.Entry.Term] = true
		}
	}
	return nil
}

func (o *Orchestrator) topTerms(ctx context.Context) ([]string, error) {
	if o.config.TopN <= 0 {
		return []string{}, nil
	}
	zero := 0.0
	entries, err := o.store.GetVocabulary(ctx, VocabularyQuery{MinConfidence: &zero, Limit: o.config.TopN})
	if err != nil {
		return nil, fmt.Errorf("top terms: %w", err)
	}
	top := make([]string, 0, len(entries))
	for _, e := range entries {
		top = append(top, e.Term)
	}
	return top, nil
}

// Maintain decays idle terms and prunes stale low-confidence ones.
func (o *Orchestrator) Maintain(ctx context.Context) (report *MaintenanceReport, err error) {
	if !o.maintaining.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	o.inflight.RLock()
	defer func() {
		o.inflight.RUnlock()
		o.maintaining.Store(false)
	}()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("maintenance panicked", zap.Any("panic", r), zap.Stack("stack"))
			report, err = nil, fmt.Errorf("%w: %v", ErrRunPanicked, r)
		}
	}()

	ctx = context.WithoutCancel(ctx)
	report = &MaintenanceReport{Timestamp: o.now().UTC()}
	if o.config.DecayStep > 0 {
		report.Decayed, err = o.store.Decay(ctx, o.config.DecayAfter, o.config.DecayStep)
		if err != nil {
			o.logger.Error("maintenance decay failed", zap.Error(err))
			return nil, err
		}
	}

	report.Pruned, err = o.store.Prune(ctx, o.config.Retention)
	if err != nil {
		o.logger.Error("maintenance prune failed", zap.Error(err))
		return nil, err
	}

	report.Stats, err = o.store.Stats(ctx)
	if err != nil {
		o.logger.Error("maintenance stats failed", zap.Error(err))
		return nil, err
	}

	o.metrics.observeMaintenance(report.Decayed, report.Pruned)
	o.logger.Info("maintenance complete",
		zap.Int("decayed", report.Decayed),
		zap.Int("pruned", report.Pruned),
		zap.Int("term_count", report.Stats.TermCount),
		zap.Int("approved_count", report.Stats.ApprovedCount),
		zap.Int("pending_inbox", report.Stats.PendingInbox),
	)
	return report, nil
}

// Start launches the background loop. Calling Start on a running
// orchestrator is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return
	}
	o.started = true
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	go o.loop(o.stop, o.done)

	o.logger.Info("scheduler started",
		zap.Duration("extract_interval", o.config.ExtractInterval),
		zap.Duration("maintenance_interval", o.config.MaintenanceInterval),
	)
}

// Stop stops accepting ticks and waits for any in-flight run to finish, or
// for ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		close(o.stop)
		o.started = false
	}
	done := o.done
	o.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		o.inflight.Lock()
		o.inflight.Unlock()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (o *Orchestrator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	extract := time.NewTicker(o.config.ExtractInterval)
	defer extract.Stop()
	maintain := time.NewTicker(o.config.MaintenanceInterval)
	defer maintain.Stop()

	for {
		select {
		case <-stop:
			return
		case <-extract.C:
			if _, err := o.RunOnce(context.Background()); errors.Is(err, ErrRunInProgress) {
				o.metrics.observeRun("skipped", 0)
				o.logger.Debug("extraction tick skipped: run in progress")
			}
		case <-maintain.C:
			if _, err := o.Maintain(context.Background()); errors.Is(err, ErrRunInProgress) {
				o.logger.Debug("maintenance tick skipped: run in progress")
			}
		}
	}
}
