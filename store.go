package vocab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/hyperengineering/vocab/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// timeLayout is fixed-width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Metadata keys.
const (
	metadataKeySchemaVersion = "schema_version"
	metadataKeyWatermark     = "submission_watermark"
	metadataKeyWatermarkID   = "submission_watermark_id"
	metadataKeyLastPrune     = "last_prune"
)

// Store manages the SQLite vocabulary database: the mutable term table and
// the append-only snapshot, feedback, curation and submission logs.
//
// Mutations of a single term are serialized by a striped per-term lock and
// run inside one transaction. There is no store-wide write lock; mu only
// guards the closed flag and is held shared by every operation.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
	locks  termLocks
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for first_seen/last_seen and
// log timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore opens or creates a vocabulary store.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite admits one writer at a time; a single pooled connection keeps
	// every transaction on the same handle and avoids SQLITE_BUSY upgrades.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &Store{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES (?, ?)
	`, metadataKeySchemaVersion, schemaVersion)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// acquire holds the closed guard for the duration of an operation.
func (s *Store) acquire() (func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	return s.mu.RUnlock, nil
}

// Close closes the store, waiting for in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	return s.db.PingContext(ctx)
}

// lockShards is the number of stripes in the per-term lock table.
const lockShards = 64

// termLocks serializes mutations of the same term while letting different
// terms proceed independently.
type termLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *termLocks) lock(term string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	m := &l.shards[h.Sum32()%lockShards]
	m.Lock()
	return m.Unlock
}

// GetMetadata returns a metadata value, or "" when unset.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	return s.getMetadata(ctx, key)
}

func (s *Store) getMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores a metadata value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set metadata %s: %w", key, err)
	}
	return nil
}

// Watermark returns the cursor of the last fully processed submission.
func (s *Store) Watermark(ctx context.Context) (Cursor, error) {
	release, err := s.acquire()
	if err != nil {
		return Cursor{}, err
	}
	defer release()
	return s.watermark(ctx)
}

func (s *Store) watermark(ctx context.Context) (Cursor, error) {
	at, err := s.getMetadata(ctx, metadataKeyWatermark)
	if err != nil || at == "" {
		return Cursor{}, err
	}
	id, err := s.getMetadata(ctx, metadataKeyWatermarkID)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{CreatedAt: parseTime(at), ID: id}, nil
}

// SetWatermark checkpoints submission processing. Time and ID are written
// in one transaction.
func (s *Store) SetWatermark(ctx context.Context, c Cursor) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin watermark: %w", err)
	}
	defer tx.Rollback()

	for key, value := range map[string]string{
		metadataKeyWatermark:   formatTime(c.CreatedAt),
		metadataKeyWatermarkID: c.ID,
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("store: set watermark: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit watermark: %w", err)
	}
	return nil
}

// afterCursor selects submissions sorting strictly after c.
func afterCursor(c Cursor) sq.Sqlizer {
	at := formatTime(c.CreatedAt)
	return sq.Or{
		sq.Gt{"created_at": at},
		sq.And{sq.Eq{"created_at": at}, sq.Gt{"id": c.ID}},
	}
}

// Stats returns store statistics.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	stats := &StoreStats{ByCategory: map[Category]int{}, SchemaVersion: schemaVersion}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(user_approved), 0), AVG(confidence) FROM terms
	`).Scan(&stats.TermCount, &stats.ApprovedCount, &avg); err != nil {
		return nil, fmt.Errorf("store: count terms: %w", err)
	}
	if avg.Valid {
		stats.AverageConfidence = avg.Float64
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM terms GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("store: count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		stats.ByCategory[Category(category)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&stats.SnapshotCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback_events`).Scan(&stats.FeedbackCount); err != nil {
		return nil, err
	}

	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM snapshots`).Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		stats.LastSnapshot = parseTime(last.String)
	}

	watermark, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}
	pending := sq.Select("COUNT(*)").From("submissions")
	if !watermark.CreatedAt.IsZero() {
		stats.Watermark = watermark.CreatedAt
		pending = pending.Where(afterCursor(watermark))
	}
	query, args, err := pending.ToSql()
	if err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.PendingInbox); err != nil {
		return nil, err
	}

	return stats, nil
}

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
