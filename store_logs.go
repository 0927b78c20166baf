package vocab

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
)

// AppendSnapshot records a snapshot. ID and Timestamp are assigned when
// empty.
func (s *Store) AppendSnapshot(ctx context.Context, snap *Snapshot) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	if snap.ID == "" {
		snap.ID = ulid.Make().String()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now().UTC()
	}
	if snap.TopTerms == nil {
		snap.TopTerms = []string{}
	}

	top, err := json.Marshal(snap.TopTerms)
	if err != nil {
		return fmt.Errorf("store: encode top terms: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, created_at, total_submissions, new_terms_found, updated_terms, top_terms, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID,
		formatTime(snap.Timestamp),
		snap.TotalSubmissions,
		snap.NewTermsFound,
		snap.UpdatedTerms,
		string(top),
		snap.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("store: append snapshot: %w", err)
	}
	return nil
}

// Snapshots returns the most recent snapshots, newest first. limit <= 0
// returns all.
func (s *Store) Snapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	q := sq.Select("id", "created_at", "total_submissions", "new_terms_found", "updated_terms", "top_terms", "duration_ms").
		From("snapshots").
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query snapshots: %w", err)
	}
	defer rows.Close()

	results := []Snapshot{}
	for rows.Next() {
		var (
			snap      Snapshot
			createdAt string
			top       string
			duration  int64
		)
		if err := rows.Scan(&snap.ID, &createdAt, &snap.TotalSubmissions, &snap.NewTermsFound,
			&snap.UpdatedTerms, &top, &duration); err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		snap.Timestamp = parseTime(createdAt)
		snap.Duration = time.Duration(duration) * time.Millisecond
		snap.TopTerms = []string{}
		if err := json.Unmarshal([]byte(top), &snap.TopTerms); err != nil {
			return nil, fmt.Errorf("store: decode top terms: %w", err)
		}
		results = append(results, snap)
	}
	return results, rows.Err()
}

// AppendFeedback records a feedback event. ID and Timestamp are assigned
// when empty.
func (s *Store) AppendFeedback(ctx context.Context, event *FeedbackEvent) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	var blob *string
	if len(event.Context) > 0 {
		raw, err := json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("store: encode feedback context: %w", err)
		}
		v := string(raw)
		blob = &v
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback_events (id, created_at, submitter_id, submitter_role, feedback_type, text,
			quality, helpfulness, ease, submission_id, submission_type, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		formatTime(event.Timestamp),
		event.SubmitterID,
		event.SubmitterRole,
		string(event.FeedbackType),
		event.Text,
		event.Ratings.Quality,
		event.Ratings.Helpfulness,
		event.Ratings.Ease,
		nullString(event.SubmissionID),
		nullString(event.SubmissionType),
		blob,
	)
	if err != nil {
		return fmt.Errorf("store: append feedback: %w", err)
	}
	return nil
}

// FeedbackEvents returns every feedback event in creation order.
func (s *Store) FeedbackEvents(ctx context.Context) ([]FeedbackEvent, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, submitter_id, submitter_role, feedback_type, text,
			quality, helpfulness, ease, submission_id, submission_type, context
		FROM feedback_events
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query feedback: %w", err)
	}
	defer rows.Close()

	results := []FeedbackEvent{}
	for rows.Next() {
		var (
			event          FeedbackEvent
			createdAt      string
			feedbackType   string
			submissionID   sql.NullString
			submissionType sql.NullString
			blob           sql.NullString
		)
		if err := rows.Scan(
			&event.ID,
			&createdAt,
			&event.SubmitterID,
			&event.SubmitterRole,
			&feedbackType,
			&event.Text,
			&event.Ratings.Quality,
			&event.Ratings.Helpfulness,
			&event.Ratings.Ease,
			&submissionID,
			&submissionType,
			&blob,
		); err != nil {
			return nil, fmt.Errorf("store: scan feedback: %w", err)
		}
		event.Timestamp = parseTime(createdAt)
		event.FeedbackType = FeedbackType(feedbackType)
		event.SubmissionID = submissionID.String
		event.SubmissionType = submissionType.String
		if blob.Valid && blob.String != "" {
			if err := json.Unmarshal([]byte(blob.String), &event.Context); err != nil {
				return nil, fmt.Errorf("store: decode feedback context %s: %w", event.ID, err)
			}
		}
		results = append(results, event)
	}
	return results, rows.Err()
}

// CurationLog returns curation actions, oldest first. An empty term
// returns the whole log.
func (s *Store) CurationLog(ctx context.Context, term string) ([]CurationAction, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	q := sq.Select("id", "term", "action", "actor_id", "created_at").
		From("curation_log").
		OrderBy("created_at ASC", "id ASC")
	if term != "" {
		q = q.Where(sq.Eq{"term": NormalizeTerm(term)})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query curation log: %w", err)
	}
	defer rows.Close()

	results := []CurationAction{}
	for rows.Next() {
		var (
			action    CurationAction
			createdAt string
		)
		if err := rows.Scan(&action.ID, &action.Term, &action.Action, &action.ActorID, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan curation action: %w", err)
		}
		action.Timestamp = parseTime(createdAt)
		results = append(results, action)
	}
	return results, rows.Err()
}

// AddSubmissions queues submissions in the inbox. A submission whose ID is
// already queued is ignored. Returns the number inserted.
func (s *Store) AddSubmissions(ctx context.Context, subs []Submission) (int, error) {
	release, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range subs {
		sub := &subs[i]
		if sub.ID == "" {
			sub.ID = ulid.Make().String()
		}
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = s.now().UTC()
		}
		fields := sub.Fields
		if fields == nil {
			fields = []TextField{}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return 0, fmt.Errorf("store: encode submission fields: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO submissions (id, submitter_role, fields, created_at) VALUES (?, ?, ?, ?)
		`, sub.ID, sub.SubmitterRole, string(raw), formatTime(sub.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("store: add submission %s: %w", sub.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit submissions: %w", err)
	}
	return inserted, nil
}

// SubmissionsAfter implements SubmissionSource over the inbox table.
func (s *Store) SubmissionsAfter(ctx context.Context, after Cursor, limit int) ([]Submission, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	q := sq.Select("id", "submitter_role", "fields", "created_at").
		From("submissions").
		Where(afterCursor(after)).
		OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query submissions: %w", err)
	}
	defer rows.Close()

	results := []Submission{}
	for rows.Next() {
		var (
			sub       Submission
			fields    string
			createdAt string
		)
		if err := rows.Scan(&sub.ID, &sub.SubmitterRole, &fields, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &sub.Fields); err != nil {
			return nil, fmt.Errorf("store: decode submission %s: %w", sub.ID, err)
		}
		sub.CreatedAt = parseTime(createdAt)
		results = append(results, sub)
	}
	return results, rows.Err()
}

var _ SubmissionSource = (*Store)(nil)
