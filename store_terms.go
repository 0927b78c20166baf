package vocab

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
)

var termColumns = []string{
	"term", "category", "frequency", "contexts", "first_seen", "last_seen",
	"confidence", "user_approved", "approved_by", "approved_at",
}

// Upsert records one observation of term. A new term is inserted with the
// initial confidence; a known term has its frequency incremented, its
// confidence stepped up (capped at 1.0) and the snippet appended to its
// contexts. The category is only assigned on first insert.
func (s *Store) Upsert(ctx context.Context, term string, category Category, snippet string) (*UpsertResult, error) {
	term, err := validateTerm(term)
	if err != nil {
		return nil, err
	}
	if !category.IsValid() {
		return nil, ErrInvalidCategory
	}

	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	unlock := s.locks.lock(term)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	now := s.now().UTC()
	snippet = truncateContext(snippet)

	entry, err := getTerm(ctx, tx, term)
	switch {
	case errors.Is(err, ErrNotFound):
		entry = &TerminologyEntry{
			Term:       term,
			Category:   category,
			Frequency:  1,
			Contexts:   appendContext(nil, snippet),
			FirstSeen:  now,
			LastSeen:   now,
			Confidence: ConfidenceInitial,
		}
		if err := insertTerm(ctx, tx, entry); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("store: commit upsert: %w", err)
		}
		return &UpsertResult{Entry: *entry, Created: true}, nil

	case err != nil:
		return nil, err
	}

	entry.Frequency++
	entry.LastSeen = now
	entry.Contexts = appendContext(entry.Contexts, snippet)
	entry.Confidence = stepConfidence(entry.Confidence, entry.UserApproved)

	contexts, err := json.Marshal(entry.Contexts)
	if err != nil {
		return nil, fmt.Errorf("store: encode contexts: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE terms SET frequency = ?, contexts = ?, last_seen = ?, confidence = ?
		WHERE term = ?
	`, entry.Frequency, string(contexts), formatTime(now), entry.Confidence, term)
	if err != nil {
		return nil, fmt.Errorf("store: update term: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit upsert: %w", err)
	}
	return &UpsertResult{Entry: *entry}, nil
}

// stepConfidence applies one observation to a confidence score. Scores are
// kept at two decimals so repeated steps do not drift.
func stepConfidence(current float64, approved bool) float64 {
	if approved {
		return ConfidenceApproved
	}
	next := math.Round((current+ConfidenceStep)*100) / 100
	return math.Min(ConfidenceMax, math.Max(ConfidenceMin, next))
}

// appendContext adds snippet as the newest context, evicting the oldest
// entries past MaxContexts.
func appendContext(contexts []string, snippet string) []string {
	if snippet == "" {
		if contexts == nil {
			return []string{}
		}
		return contexts
	}
	contexts = append(contexts, snippet)
	if over := len(contexts) - MaxContexts; over > 0 {
		contexts = append([]string(nil), contexts[over:]...)
	}
	return contexts
}

func truncateContext(snippet string) string {
	if len(snippet) <= MaxContextLength {
		return snippet
	}
	cut := MaxContextLength
	for cut > 0 && !utf8.RuneStart(snippet[cut]) {
		cut--
	}
	return snippet[:cut]
}

func validateTerm(term string) (string, error) {
	term = NormalizeTerm(term)
	if term == "" {
		return "", ErrEmptyTerm
	}
	if len(term) > MaxTermLength {
		return "", ErrTermTooLong
	}
	return term, nil
}

// Get retrieves a term entry.
func (s *Store) Get(ctx context.Context, term string) (*TerminologyEntry, error) {
	term, err := validateTerm(term)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return getTerm(ctx, s.db, term)
}

// GetVocabulary returns entries with confidence >= the query minimum,
// ordered by frequency descending and capped at MaxVocabularyResults.
func (s *Store) GetVocabulary(ctx context.Context, query VocabularyQuery) ([]TerminologyEntry, error) {
	minConfidence := DefaultMinConfidence
	if query.MinConfidence != nil {
		minConfidence = *query.MinConfidence
	}
	limit := query.Limit
	if limit <= 0 || limit > MaxVocabularyResults {
		limit = MaxVocabularyResults
	}

	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	q := sq.Select(termColumns...).From("terms").
		Where(sq.GtOrEq{"confidence": minConfidence}).
		OrderBy("frequency DESC", "term ASC").
		Limit(uint64(limit))
	if query.Category != "" {
		q = q.Where(sq.Eq{"category": string(query.Category)})
	}

	return s.queryTerms(ctx, q)
}

// ApprovedTerms returns every curated term, most frequent first.
func (s *Store) ApprovedTerms(ctx context.Context) ([]TerminologyEntry, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	q := sq.Select(termColumns...).From("terms").
		Where(sq.Eq{"user_approved": 1}).
		OrderBy("frequency DESC", "term ASC")
	return s.queryTerms(ctx, q)
}

func (s *Store) queryTerms(ctx context.Context, q sq.SelectBuilder) ([]TerminologyEntry, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query terms: %w", err)
	}
	defer rows.Close()

	results := []TerminologyEntry{}
	for rows.Next() {
		entry, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *entry)
	}
	return results, rows.Err()
}

// Approve marks a term as curated: approved with confidence 1.0. Approving
// an approved term keeps the original approver. Returns ErrNotFound when the
// term is absent.
func (s *Store) Approve(ctx context.Context, term, actorID string) (*TerminologyEntry, error) {
	term, err := validateTerm(term)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	unlock := s.locks.lock(term)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	entry, err := getTerm(ctx, tx, term)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !entry.UserApproved || entry.ApprovedAt == nil {
		entry.UserApproved = true
		entry.ApprovedBy = actorID
		entry.ApprovedAt = &now
	}
	entry.Confidence = ConfidenceApproved

	_, err = tx.ExecContext(ctx, `
		UPDATE terms SET user_approved = 1, confidence = ?, approved_by = ?, approved_at = ?
		WHERE term = ?
	`, ConfidenceApproved, nullString(entry.ApprovedBy), formatTime(*entry.ApprovedAt), term)
	if err != nil {
		return nil, fmt.Errorf("store: approve term: %w", err)
	}
	if err := logCuration(ctx, tx, term, ActionApprove, actorID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit approve: %w", err)
	}
	return entry, nil
}

// Reject hard-deletes a term. Returns ErrNotFound when the term is absent.
func (s *Store) Reject(ctx context.Context, term, actorID string) error {
	term, err := validateTerm(term)
	if err != nil {
		return err
	}

	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	unlock := s.locks.lock(term)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM terms WHERE term = ?`, term)
	if err != nil {
		return fmt.Errorf("store: reject term: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: reject term: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := logCuration(ctx, tx, term, ActionReject, actorID, s.now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// Prune deletes unapproved entries with confidence below
// ConfidencePruneBelow whose last observation is older than retention.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int, error) {
	release, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now().UTC()
	query, args, err := sq.Delete("terms").
		Where(sq.Eq{"user_approved": 0}).
		Where(sq.Lt{"confidence": ConfidencePruneBelow}).
		Where(sq.Lt{"last_seen": formatTime(now.Add(-retention))}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build prune: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metadataKeyLastPrune, formatTime(now))
	if err != nil {
		return int(n), fmt.Errorf("store: record prune: %w", err)
	}
	return int(n), nil
}

// Decay lowers the confidence of unapproved entries not observed within
// staleAfter by step, floored at zero.
func (s *Store) Decay(ctx context.Context, staleAfter time.Duration, step float64) (int, error) {
	if step <= 0 {
		return 0, nil
	}

	release, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	query, args, err := sq.Update("terms").
		Set("confidence", sq.Expr("MAX(?, ROUND(confidence - ?, 2))", ConfidenceMin, step)).
		Where(sq.Eq{"user_approved": 0}).
		Where(sq.Gt{"confidence": ConfidenceMin}).
		Where(sq.Lt{"last_seen": formatTime(s.now().UTC().Add(-staleAfter))}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build decay: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: decay: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTerm(ctx context.Context, q queryRower, term string) (*TerminologyEntry, error) {
	query, args, err := sq.Select(termColumns...).From("terms").Where(sq.Eq{"term": term}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanTerm(q.QueryRowContext(ctx, query, args...))
}

func insertTerm(ctx context.Context, tx *sql.Tx, e *TerminologyEntry) error {
	contexts, err := json.Marshal(e.Contexts)
	if err != nil {
		return fmt.Errorf("store: encode contexts: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO terms (term, category, frequency, contexts, first_seen, last_seen, confidence, user_approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`,
		e.Term,
		string(e.Category),
		e.Frequency,
		string(contexts),
		formatTime(e.FirstSeen),
		formatTime(e.LastSeen),
		e.Confidence,
	)
	if err != nil {
		return fmt.Errorf("store: insert term: %w", err)
	}
	return nil
}

func logCuration(ctx context.Context, tx *sql.Tx, term, action, actorID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO curation_log (id, term, action, actor_id, created_at) VALUES (?, ?, ?, ?, ?)
	`, ulid.Make().String(), term, action, actorID, formatTime(at))
	if err != nil {
		return fmt.Errorf("store: log curation: %w", err)
	}
	return nil
}

// scanTerm scans a single term row from any scanner (Row or Rows).
// Returns ErrNotFound only for sql.ErrNoRows from *sql.Row.
func scanTerm(sc scanner) (*TerminologyEntry, error) {
	var (
		entry      TerminologyEntry
		category   string
		contexts   string
		firstSeen  string
		lastSeen   string
		approved   int
		approvedBy sql.NullString
		approvedAt sql.NullString
	)

	err := sc.Scan(
		&entry.Term,
		&category,
		&entry.Frequency,
		&contexts,
		&firstSeen,
		&lastSeen,
		&entry.Confidence,
		&approved,
		&approvedBy,
		&approvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan term: %w", err)
	}

	entry.Category = Category(category)
	entry.Contexts = []string{}
	if contexts != "" {
		if err := json.Unmarshal([]byte(contexts), &entry.Contexts); err != nil {
			return nil, fmt.Errorf("store: decode contexts for %q: %w", entry.Term, err)
		}
	}
	entry.FirstSeen = parseTime(firstSeen)
	entry.LastSeen = parseTime(lastSeen)
	entry.UserApproved = approved != 0
	if approvedBy.Valid {
		entry.ApprovedBy = approvedBy.String
	}
	if approvedAt.Valid {
		t := parseTime(approvedAt.String)
		entry.ApprovedAt = &t
	}

	return &entry, nil
}
