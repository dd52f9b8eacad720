// Package sqlite stores record collections in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manovate/crm/internal/app"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

var _ app.KVStore = (*Repository)(nil)

// Repository persists one JSON payload per collection key.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Revision records one historical write of a collection.
type Revision struct {
	ID        int64
	Key       string
	SizeBytes int
	WrittenAt time.Time
}

// Open opens the database at path, creating parent directories as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a shared in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Ping reports whether the database file is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the state and revision tables.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS state_revisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bucket TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			written_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_state_revisions_bucket_written_at ON state_revisions(bucket, written_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Get returns the payload stored under key.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return payload, nil
}

// Set replaces the payload under key and appends a revision row.
func (r *Repository) Set(ctx context.Context, key string, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	now := ts(r.now())
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write %s: %w", key, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO state(bucket, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, key, payload, now); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO state_revisions(bucket, size_bytes, written_at) VALUES (?, ?, ?)
	`, key, len(payload), now); err != nil {
		return fmt.Errorf("record revision %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write %s: %w", key, err)
	}
	return nil
}

// Keys lists stored collection keys.
func (r *Repository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT bucket FROM state ORDER BY bucket ASC`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// Revisions lists the newest writes for key, newest first.
func (r *Repository) Revisions(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, bucket, size_bytes, written_at
		FROM state_revisions
		WHERE bucket = ?
		ORDER BY written_at DESC, id DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list revisions %s: %w", key, err)
	}
	defer rows.Close()
	out := make([]Revision, 0)
	for rows.Next() {
		var (
			rev       Revision
			writtenAt string
		)
		if err := rows.Scan(&rev.ID, &rev.Key, &rev.SizeBytes, &writtenAt); err != nil {
			return nil, err
		}
		rev.WrittenAt = parseTS(writtenAt)
		out = append(out, rev)
	}
	return out, rows.Err()
}

// ts formats timestamps for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses stored timestamps, returning zero on malformed rows.
func parseTS(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
