// Package history keeps a local log of validated practice rounds.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcdev12/flashsum/go/internal/sqlutil"
	_ "modernc.org/sqlite"
)

// Record is one validated round.
type Record struct {
	ID              int64     `json:"id"`
	SessionID       uint64    `json:"session_id"`
	ExpectedSum     int64     `json:"expected_sum"`
	ProvidedSum     int64     `json:"provided_sum"`
	Delta           int64     `json:"delta"`
	Correct         bool      `json:"correct"`
	NumberCount     int       `json:"number_count"`
	DigitsPerNumber *int      `json:"digits_per_number,omitempty"`
	NumberDuration  *float64  `json:"number_duration_seconds,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Stats summarizes the stored rounds.
type Stats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

// Store is a SQLite-backed history. It keeps at most Keep rounds.
type Store struct {
	db   *sql.DB
	keep int
}

// Open opens or creates the history database at path.
func Open(path string, keep int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between the recorder and readers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	s := &Store{db: db, keep: keep}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		expected_sum INTEGER NOT NULL,
		provided_sum INTEGER NOT NULL,
		delta INTEGER NOT NULL,
		correct INTEGER NOT NULL,
		number_count INTEGER NOT NULL,
		digits_per_number INTEGER,
		number_duration REAL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rounds_recorded ON rounds(recorded_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// queries binds statements to one transaction.
type queries struct {
	tx *sql.Tx
}

func newQueries(tx *sql.Tx) *queries {
	return &queries{tx: tx}
}

func (q *queries) insert(ctx context.Context, r Record) (int64, error) {
	res, err := q.tx.ExecContext(ctx, `
	INSERT INTO rounds (session_id, expected_sum, provided_sum, delta, correct,
		number_count, digits_per_number, number_duration, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.SessionID), r.ExpectedSum, r.ProvidedSum, r.Delta, r.Correct,
		r.NumberCount, sqlutil.ToNullInt64(r.DigitsPerNumber), sqlutil.ToNullFloat64(r.NumberDuration),
		sqlutil.ToUnixMilli(r.RecordedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert round: %w", err)
	}
	return res.LastInsertId()
}

func (q *queries) prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := q.tx.ExecContext(ctx, `
	DELETE FROM rounds WHERE id NOT IN (
		SELECT id FROM rounds ORDER BY id DESC LIMIT ?
	)`, keep)
	if err != nil {
		return fmt.Errorf("prune rounds: %w", err)
	}
	return nil
}

// Add stores r and drops the oldest rounds beyond the retention limit.
func (s *Store) Add(ctx context.Context, r Record) (int64, error) {
	return sqlutil.Run(ctx, s.db, newQueries, func(q *queries) (int64, error) {
		id, err := q.insert(ctx, r)
		if err != nil {
			return 0, err
		}
		if err := q.prune(ctx, s.keep); err != nil {
			return 0, err
		}
		return id, nil
	})
}

// Recent returns up to limit rounds, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, session_id, expected_sum, provided_sum, delta, correct,
		number_count, digits_per_number, number_duration, recorded_at
	FROM rounds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r          Record
			sessionID  int64
			digits     sql.NullInt64
			duration   sql.NullFloat64
			recordedAt int64
		)
		if err := rows.Scan(&r.ID, &sessionID, &r.ExpectedSum, &r.ProvidedSum, &r.Delta, &r.Correct,
			&r.NumberCount, &digits, &duration, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan round row: %w", err)
		}
		r.SessionID = uint64(sessionID)
		r.DigitsPerNumber = sqlutil.FromNullInt64(digits)
		r.NumberDuration = sqlutil.FromNullFloat64(duration)
		r.RecordedAt = sqlutil.FromUnixMilli(recordedAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return records, nil
}

// Stats counts stored rounds.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(correct), 0) FROM rounds`).
		Scan(&stats.Total, &stats.Correct)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
