package preload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultCacheName is the named storage cache the primary documents live in.
const DefaultCacheName = "preload-v1"

const schema = `CREATE TABLE IF NOT EXISTS cache_entries (
	cache     TEXT    NOT NULL,
	path      TEXT    NOT NULL,
	body      BLOB    NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (cache, path)
)`

// Store is a named, best-effort document cache backed by SQLite. A nil
// *Store is valid and stores nothing.
type Store struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// OpenStore opens (or creates) the cache database at path. Use ":memory:"
// for a process-local cache.
func OpenStore(ctx context.Context, path, name string) (*Store, error) {
	if name == "" {
		name = DefaultCacheName
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("preload: open store: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preload: init store: %w", err)
	}
	return &Store{db: db, name: name, now: time.Now}, nil
}

// Name returns the cache name.
func (s *Store) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Put records body as the last-known copy of path.
func (s *Store) Put(ctx context.Context, path string, body []byte) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache, path, body, stored_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache, path) DO UPDATE SET body = excluded.body, stored_at = excluded.stored_at`,
		s.name, path, body, s.now().Unix())
	if err != nil {
		return fmt.Errorf("preload: put %s: %w", path, err)
	}
	return nil
}

// Get returns the last-known copy of path.
func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM cache_entries WHERE cache = ? AND path = ?`, s.name, path).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("preload: get %s: %w", path, err)
	}
	return body, true, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
