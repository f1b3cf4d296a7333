// Package history persists finished download attempts in a local SQLite
// database so past outcomes survive process restarts.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/downpour-dl/downpour/internal/logging"
)

func init() {
	// The modernc driver registers as "sqlite", which sqlx does not know
	// how to bind named parameters for out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id           TEXT PRIMARY KEY,
	key          TEXT NOT NULL,
	url          TEXT NOT NULL,
	path         TEXT NOT NULL,
	state        TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL DEFAULT '',
	received     INTEGER NOT NULL DEFAULT 0,
	total        INTEGER NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_key ON downloads(key);
CREATE INDEX IF NOT EXISTS idx_downloads_finished_at ON downloads(finished_at);
`

// Entry is one recorded download attempt.
type Entry struct {
	ID          string    `db:"id"`
	Key         string    `db:"key"`
	URL         string    `db:"url"`
	Path        string    `db:"path"`
	State       string    `db:"state"`
	Category    string    `db:"category"`
	Message     string    `db:"message"`
	Received    int64     `db:"received"`
	Total       int64     `db:"total"`
	ContentType string    `db:"content_type"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
}

// Store wraps the downloads database.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

// Open creates or opens the database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite allows one writer; funneling through a single connection
	// avoids SQLITE_BUSY under concurrent terminal events.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &Store{db: db, log: logging.Or(logger)}, nil
}

// Record inserts one finished attempt.
func (s *Store) Record(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO downloads
	(id, key, url, path, state, category, message, received, total, content_type, started_at, finished_at)
VALUES
	(:id, :key, :url, :path, :state, :category, :message, :received, :total, :content_type, :started_at, :finished_at)`

	if _, err := s.db.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("record download %s: %w", e.ID, err)
	}
	s.log.Debug("history recorded",
		zap.String("id", e.ID),
		zap.String("key", e.Key),
		zap.String("state", e.State))
	return nil
}

// Recent returns the most recently finished attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM downloads ORDER BY finished_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// ByKey returns all attempts recorded under one logical key, newest first.
func (s *Store) ByKey(ctx context.Context, key string) ([]Entry, error) {
	var out []Entry
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM downloads WHERE key = ? ORDER BY finished_at DESC, id`, key)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", key, err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
