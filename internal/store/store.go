// Package store keeps the history of reviews and how each fault was resolved.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/retro"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a review is not in the store.
var ErrNotFound = errors.New("review not found")

// Review is one review session of a game for one color.
type Review struct {
	ID          string
	Color       retro.Player
	BlackPlayer string
	WhitePlayer string
	Result      string
	BoardSize   int
	Moves       int
	Faults      int
	StartedAt   time.Time
	// ClosedAt is zero while the review is open.
	ClosedAt time.Time
}

// Outcome is a verdict or resolution recorded for a fault.
type Outcome struct {
	ReviewID string
	Kind     string
	Value    string
	Color    retro.Player
	Ply      int
	Move     string
	Path     retro.Path
	Category string
	Loss     float64
	At       time.Time
}

const (
	KindVerdict    = "verdict"
	KindResolution = "resolution"
)

// Summary counts outcomes over all reviews.
type Summary struct {
	Reviews     int
	Faults      int
	Verdicts    map[string]int
	Resolutions map[string]int
}

// Store is a SQLite database of reviews and outcomes.
type Store struct {
	db     *sql.DB
	logger logging.ContextLogger
}

// Open creates or opens the database at path and applies the schema.
func Open(path string, logger logging.ContextLogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.WithField("component", "store")}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s.logger.Info("Review store opened", "path", path)
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		color TEXT NOT NULL,
		black_player TEXT NOT NULL DEFAULT '',
		white_player TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL DEFAULT '',
		board_size INTEGER NOT NULL,
		moves INTEGER NOT NULL,
		faults INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		closed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		review_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		color TEXT NOT NULL,
		ply INTEGER NOT NULL,
		move TEXT NOT NULL,
		path TEXT NOT NULL,
		category TEXT NOT NULL,
		loss REAL NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (review_id) REFERENCES reviews(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_review ON outcomes(review_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_kind ON outcomes(kind, value);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveReview inserts a review, or updates it in place so its outcomes are
// kept. A zero StartedAt is set to now.
func (s *Store) SaveReview(ctx context.Context, r *Review) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews
		(id, color, black_player, white_player, result, board_size, moves, faults, started_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			color = excluded.color,
			faults = excluded.faults,
			closed_at = excluded.closed_at`,
		r.ID, r.Color.String(), r.BlackPlayer, r.WhitePlayer, r.Result,
		r.BoardSize, r.Moves, r.Faults, r.StartedAt.UnixMilli(), nullableMillis(r.ClosedAt))
	if err != nil {
		return fmt.Errorf("save review %s: %w", r.ID, err)
	}
	return nil
}

// CloseReview marks a review closed at the given time.
func (s *Store) CloseReview(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reviews SET closed_at = ? WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("close review %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close review %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetReview returns the review with id.
func (s *Store) GetReview(ctx context.Context, id string) (*Review, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, color, black_player, white_player, result, board_size, moves, faults, started_at, closed_at
		FROM reviews WHERE id = ?`, id)

	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// ListReviews returns the most recently started reviews first.
func (s *Store) ListReviews(ctx context.Context, limit int) ([]*Review, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, color, black_player, white_player, result, board_size, moves, faults, started_at, closed_at
		FROM reviews ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// AddOutcome records a verdict or resolution. A zero At is set to now.
func (s *Store) AddOutcome(ctx context.Context, o *Outcome) error {
	if o.At.IsZero() {
		o.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (review_id, kind, value, color, ply, move, path, category, loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ReviewID, o.Kind, o.Value, o.Color.String(), o.Ply, o.Move, string(o.Path),
		o.Category, o.Loss, o.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("add outcome for %s: %w", o.ReviewID, err)
	}
	return nil
}

// Outcomes returns the outcomes of a review in the order they happened.
func (s *Store) Outcomes(ctx context.Context, reviewID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT review_id, kind, value, color, ply, move, path, category, loss, created_at
		FROM outcomes WHERE review_id = ? ORDER BY id`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o           Outcome
			color, path string
			createdAtMs int64
		)
		if err := rows.Scan(&o.ReviewID, &o.Kind, &o.Value, &color, &o.Ply, &o.Move, &path,
			&o.Category, &o.Loss, &createdAtMs); err != nil {
			return nil, err
		}
		o.Color, _ = retro.ParsePlayer(color)
		o.Path = retro.Path(path)
		o.At = time.UnixMilli(createdAtMs)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Summarize counts reviews, faults and outcomes.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		Verdicts:    map[string]int{},
		Resolutions: map[string]int{},
	}

	var faults sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(faults) FROM reviews`).Scan(&sum.Reviews, &faults); err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}
	sum.Faults = int(faults.Int64)

	rows, err := s.db.QueryContext(ctx, `SELECT kind, value, COUNT(*) FROM outcomes GROUP BY kind, value`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, value string
		var n int
		if err := rows.Scan(&kind, &value, &n); err != nil {
			return nil, err
		}
		switch kind {
		case KindVerdict:
			sum.Verdicts[value] = n
		case KindResolution:
			sum.Resolutions[value] = n
		}
	}
	return sum, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*Review, error) {
	var (
		r         Review
		color     string
		startedMs int64
		closedMs  sql.NullInt64
	)
	if err := row.Scan(&r.ID, &color, &r.BlackPlayer, &r.WhitePlayer, &r.Result,
		&r.BoardSize, &r.Moves, &r.Faults, &startedMs, &closedMs); err != nil {
		return nil, err
	}
	r.Color, _ = retro.ParsePlayer(color)
	r.StartedAt = time.UnixMilli(startedMs)
	if closedMs.Valid {
		r.ClosedAt = time.UnixMilli(closedMs.Int64)
	}
	return &r, nil
}

func nullableMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
