package vocab

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStore_Upsert_NewTerm(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	res, err := store.Upsert(ctx, "  PCR ", CategoryMethod, "ran PCR on samples")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !res.Created {
		t.Error("Created = false, want true on first insert")
	}

	e := res.Entry
	if e.Term != "pcr" {
		t.Errorf("Term = %q, want normalized pcr", e.Term)
	}
	if e.Frequency != 1 {
		t.Errorf("Frequency = %d, want 1", e.Frequency)
	}
	if e.Confidence != ConfidenceInitial {
		t.Errorf("Confidence = %v, want %v", e.Confidence, ConfidenceInitial)
	}
	if !reflect.DeepEqual(e.Contexts, []string{"ran PCR on samples"}) {
		t.Errorf("Contexts = %v", e.Contexts)
	}
	if !e.FirstSeen.Equal(clock.Now()) || !e.LastSeen.Equal(clock.Now()) {
		t.Errorf("FirstSeen/LastSeen = %v/%v, want %v", e.FirstSeen, e.LastSeen, clock.Now())
	}
}

func TestStore_Upsert_TwoObservations(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	if _, err := store.Upsert(ctx, "pcr", CategoryMethod, "ctx1"); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	clock.Advance(time.Hour)
	res, err := store.Upsert(ctx, "pcr", CategoryMethod, "ctx2")
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if res.Created {
		t.Error("Created = true on second observation")
	}

	got, err := store.Get(ctx, "pcr")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Frequency != 2 {
		t.Errorf("Frequency = %d, want 2", got.Frequency)
	}
	if got.Confidence != 0.4 {
		t.Errorf("Confidence = %v, want 0.4", got.Confidence)
	}
	if !reflect.DeepEqual(got.Contexts, []string{"ctx1", "ctx2"}) {
		t.Errorf("Contexts = %v, want [ctx1 ctx2]", got.Contexts)
	}
	if !got.LastSeen.Equal(clock.Now()) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, clock.Now())
	}
	if got.FirstSeen.Equal(got.LastSeen) {
		t.Error("FirstSeen moved on update")
	}
}

func TestStore_Upsert_ContextFIFO(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 1; i <= 11; i++ {
		if _, err := store.Upsert(ctx, "pcr", CategoryMethod, fmt.Sprintf("obs%d", i)); err != nil {
			t.Fatalf("Upsert %d failed: %v", i, err)
		}
	}

	got, err := store.Get(ctx, "pcr")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Contexts) != MaxContexts {
		t.Fatalf("len(Contexts) = %d, want %d", len(got.Contexts), MaxContexts)
	}
	want := make([]string, 0, 10)
	for i := 2; i <= 11; i++ {
		want = append(want, fmt.Sprintf("obs%d", i))
	}
	if !reflect.DeepEqual(got.Contexts, want) {
		t.Errorf("Contexts = %v, want %v", got.Contexts, want)
	}
}

func TestStore_Upsert_ConfidenceMonotonicAndCapped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	prevFreq, prevConf := 0, 0.0
	for i := 0; i < 15; i++ {
		res, err := store.Upsert(ctx, "elisa", CategoryMethod, "")
		if err != nil {
			t.Fatalf("Upsert %d failed: %v", i, err)
		}
		e := res.Entry
		if e.Frequency <= prevFreq {
			t.Errorf("step %d: frequency %d did not increase from %d", i, e.Frequency, prevFreq)
		}
		if e.Confidence < prevConf {
			t.Errorf("step %d: confidence %v decreased from %v", i, e.Confidence, prevConf)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			t.Errorf("step %d: confidence %v outside [0,1]", i, e.Confidence)
		}
		prevFreq, prevConf = e.Frequency, e.Confidence
	}
	if prevConf != ConfidenceMax {
		t.Errorf("final confidence = %v, want %v", prevConf, ConfidenceMax)
	}
}

func TestStore_Upsert_CategoryFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Upsert(ctx, "pcr", CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upsert(ctx, "pcr", CategoryAbbreviation, ""); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, "pcr")
	if got.Category != CategoryMethod {
		t.Errorf("Category = %q, want %q", got.Category, CategoryMethod)
	}
	if got.Frequency != 2 {
		t.Errorf("Frequency = %d, want 2", got.Frequency)
	}
}

func TestStore_Upsert_Validation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Upsert(ctx, "   ", CategoryMethod, ""); !errors.Is(err, ErrEmptyTerm) {
		t.Errorf("empty term error = %v, want ErrEmptyTerm", err)
	}
	if _, err := store.Upsert(ctx, strings.Repeat("x", MaxTermLength+1), CategoryMethod, ""); !errors.Is(err, ErrTermTooLong) {
		t.Errorf("long term error = %v, want ErrTermTooLong", err)
	}
	if _, err := store.Upsert(ctx, "pcr", Category("gossip"), ""); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("bad category error = %v, want ErrInvalidCategory", err)
	}
}

func TestStore_Upsert_TruncatesLongContext(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res, err := store.Upsert(ctx, "pcr", CategoryMethod, strings.Repeat("é", MaxContextLength))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(res.Entry.Contexts[0]); n > MaxContextLength {
		t.Errorf("context length = %d, want <= %d", n, MaxContextLength)
	}
}

func TestStore_Upsert_ConcurrentSameTerm(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := store.Upsert(ctx, "crispr", CategoryMethod, fmt.Sprintf("w%d-%d", w, i)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "crispr")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Frequency != workers*perWorker {
		t.Errorf("Frequency = %d, want %d (lost update)", got.Frequency, workers*perWorker)
	}
	if got.Confidence != ConfidenceMax {
		t.Errorf("Confidence = %v, want %v", got.Confidence, ConfidenceMax)
	}
	if len(got.Contexts) != MaxContexts {
		t.Errorf("len(Contexts) = %d, want %d", len(got.Contexts), MaxContexts)
	}
}

func TestStore_ConcurrentApproveAndUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Upsert(ctx, "elisa", CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.Upsert(ctx, "elisa", CategoryMethod, "")
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Approve(ctx, "elisa", "curator")
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "elisa")
	if err != nil {
		t.Fatal(err)
	}
	if !got.UserApproved || got.Confidence != ConfidenceApproved {
		t.Errorf("approved=%v confidence=%v, want approved at 1.0", got.UserApproved, got.Confidence)
	}
	if got.Frequency != 21 {
		t.Errorf("Frequency = %d, want 21", got.Frequency)
	}
}

func TestStore_GetVocabulary_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	observe := map[string]int{"pcr": 5, "elisa": 3, "biopsy": 1, "crispr": 3}
	for term, n := range observe {
		cat := CategoryMethod
		if term == "biopsy" {
			cat = CategoryMedical
		}
		for i := 0; i < n; i++ {
			if _, err := store.Upsert(ctx, term, cat, ""); err != nil {
				t.Fatal(err)
			}
		}
	}

	min := 0.5
	got, err := store.GetVocabulary(ctx, VocabularyQuery{MinConfidence: &min})
	if err != nil {
		t.Fatalf("GetVocabulary failed: %v", err)
	}
	var terms []string
	for _, e := range got {
		if e.Confidence < min {
			t.Errorf("%s confidence %v below minimum %v", e.Term, e.Confidence, min)
		}
		terms = append(terms, e.Term)
	}
	want := []string{"pcr", "crispr", "elisa"}
	if !reflect.DeepEqual(terms, want) {
		t.Errorf("terms = %v, want %v", terms, want)
	}

	zero := 0.0
	medical, err := store.GetVocabulary(ctx, VocabularyQuery{Category: CategoryMedical, MinConfidence: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if len(medical) != 1 || medical[0].Term != "biopsy" {
		t.Errorf("medical = %v, want [biopsy]", medical)
	}
}

func TestStore_GetVocabulary_DefaultMinimumAndCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < MaxVocabularyResults+5; i++ {
		term := fmt.Sprintf("term%03d", i)
		for j := 0; j < 3; j++ {
			if _, err := store.Upsert(ctx, term, CategoryDomainTerm, ""); err != nil {
				t.Fatal(err)
			}
		}
	}
	if _, err := store.Upsert(ctx, "rare", CategoryDomainTerm, ""); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetVocabulary(ctx, VocabularyQuery{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxVocabularyResults {
		t.Errorf("len = %d, want cap %d", len(got), MaxVocabularyResults)
	}
	for _, e := range got {
		if e.Term == "rare" {
			t.Error("default minimum confidence did not filter a 0.3 entry")
		}
	}
}

func TestStore_GetVocabulary_Empty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetVocabulary(context.Background(), VocabularyQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("GetVocabulary on empty store = %v, want empty slice", got)
	}
}

func TestStore_Approve(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	if _, err := store.Upsert(ctx, "pcr", CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}
	first, err := store.Approve(ctx, "PCR", "alice")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if !first.UserApproved || first.Confidence != ConfidenceApproved || first.ApprovedBy != "alice" {
		t.Errorf("approved entry = %+v", first)
	}

	clock.Advance(time.Hour)
	second, err := store.Approve(ctx, "pcr", "bob")
	if err != nil {
		t.Fatalf("second Approve failed: %v", err)
	}
	if second.ApprovedBy != "alice" || !second.ApprovedAt.Equal(*first.ApprovedAt) {
		t.Errorf("idempotent approve changed audit fields: %+v", second)
	}

	res, err := store.Upsert(ctx, "pcr", CategoryMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Entry.Confidence != ConfidenceApproved {
		t.Errorf("confidence after upsert of approved term = %v, want 1.0", res.Entry.Confidence)
	}

	log, err := store.CurationLog(ctx, "pcr")
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 || log[0].ActorID != "alice" || log[1].ActorID != "bob" {
		t.Errorf("curation log = %+v", log)
	}
}

func TestStore_Reject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Upsert(ctx, "pcr", CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.Reject(ctx, "pcr", "alice"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if _, err := store.Get(ctx, "pcr"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after reject = %v, want ErrNotFound", err)
	}

	log, _ := store.CurationLog(ctx, "pcr")
	if len(log) != 1 || log[0].Action != ActionReject {
		t.Errorf("curation log = %+v", log)
	}
}

func TestStore_CurationUnknownTerm(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.Upsert(ctx, "elisa", CategoryMethod, "ctx"); err != nil {
		t.Fatal(err)
	}
	before, _ := store.Get(ctx, "elisa")

	if _, err := store.Approve(ctx, "ghost", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Approve(ghost) = %v, want ErrNotFound", err)
	}
	if err := store.Reject(ctx, "ghost", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reject(ghost) = %v, want ErrNotFound", err)
	}

	stats, _ := store.Stats(ctx)
	if stats.TermCount != 1 {
		t.Errorf("TermCount = %d, want 1", stats.TermCount)
	}
	after, _ := store.Get(ctx, "elisa")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("entry changed: before %+v after %+v", before, after)
	}
	log, _ := store.CurationLog(ctx, "")
	if len(log) != 0 {
		t.Errorf("curation log = %+v, want empty", log)
	}
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	for _, term := range []string{"stale", "fresh", "approved", "confident"} {
		if _, err := store.Upsert(ctx, term, CategoryDomainTerm, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Approve(ctx, "approved", "admin"); err != nil {
		t.Fatal(err)
	}
	// Force confidence below the prune threshold on everything but "confident".
	if _, err := store.db.Exec(`UPDATE terms SET confidence = 0.1 WHERE term != 'confident'`); err != nil {
		t.Fatal(err)
	}

	clock.Advance(40 * 24 * time.Hour)
	if _, err := store.Upsert(ctx, "fresh", CategoryDomainTerm, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(`UPDATE terms SET confidence = 0.1 WHERE term = 'fresh'`); err != nil {
		t.Fatal(err)
	}

	n, err := store.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, err := store.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale entry survived prune: %v", err)
	}
	for _, term := range []string{"fresh", "approved", "confident"} {
		if _, err := store.Get(ctx, term); err != nil {
			t.Errorf("%s removed by prune: %v", term, err)
		}
	}

	last, _ := store.GetMetadata(ctx, metadataKeyLastPrune)
	if last == "" {
		t.Error("last_prune metadata not recorded")
	}
}

func TestStore_Prune_NeverRemovesApproved(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	if _, err := store.Upsert(ctx, "pcr", CategoryMethod, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Approve(ctx, "pcr", "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(`UPDATE terms SET confidence = 0.1 WHERE term = 'pcr'`); err != nil {
		t.Fatal(err)
	}
	clock.Advance(365 * 24 * time.Hour)

	if _, err := store.Prune(ctx, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "pcr"); err != nil {
		t.Errorf("approved entry pruned: %v", err)
	}
}

func TestStore_Decay(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Upsert(ctx, "idle", CategoryDomainTerm, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Upsert(ctx, "floor", CategoryDomainTerm, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upsert(ctx, "kept", CategoryDomainTerm, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Approve(ctx, "kept", "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(`UPDATE terms SET confidence = 0.05 WHERE term = 'floor'`); err != nil {
		t.Fatal(err)
	}

	clock.Advance(20 * 24 * time.Hour)
	n, err := store.Decay(ctx, 14*24*time.Hour, 0.1)
	if err != nil {
		t.Fatalf("Decay failed: %v", err)
	}
	if n != 2 {
		t.Errorf("decayed = %d, want 2", n)
	}

	idle, _ := store.Get(ctx, "idle")
	if idle.Confidence != 0.4 {
		t.Errorf("idle confidence = %v, want 0.4", idle.Confidence)
	}
	floor, _ := store.Get(ctx, "floor")
	if floor.Confidence != 0 {
		t.Errorf("floor confidence = %v, want 0", floor.Confidence)
	}
	kept, _ := store.Get(ctx, "kept")
	if kept.Confidence != ConfidenceApproved {
		t.Errorf("approved confidence = %v, want 1.0", kept.Confidence)
	}
}

func TestStore_ApprovedTerms(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, term := range []string{"pcr", "elisa", "biopsy"} {
		if _, err := store.Upsert(ctx, term, CategoryMethod, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Approve(ctx, "elisa", "admin"); err != nil {
		t.Fatal(err)
	}

	got, err := store.ApprovedTerms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Term != "elisa" {
		t.Errorf("ApprovedTerms = %v, want [elisa]", got)
	}
}

func TestStepConfidence(t *testing.T) {
	tests := []struct {
		current  float64
		approved bool
		want     float64
	}{
		{0.3, false, 0.4},
		{0.9, false, 1.0},
		{1.0, false, 1.0},
		{0.7, false, 0.8},
		{0.2, true, 1.0},
	}
	for _, tt := range tests {
		if got := stepConfidence(tt.current, tt.approved); got != tt.want {
			t.Errorf("stepConfidence(%v, %v) = %v, want %v", tt.current, tt.approved, got, tt.want)
		}
	}
}
