package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

const createTable = `CREATE TABLE IF NOT EXISTS sunset_cache (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	expires_at INTEGER NOT NULL
)`

const upsert = `INSERT INTO sunset_cache (key, payload, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`

// SQLite is a file-backed cache for single-host deployments.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock
}

// OpenSQLite opens (or creates) the cache database at path.
func OpenSQLite(ctx context.Context, path string, clock clockwork.Clock) (*SQLite, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", createTable} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite cache: %w", err)
		}
	}
	return &SQLite{db: db, clock: clock}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (domain.SunsetResult, bool, error) {
	var (
		b         []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM sunset_cache WHERE key = ?`, key,
	).Scan(&b, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SunsetResult{}, false, nil
	}
	if err != nil {
		return domain.SunsetResult{}, false, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	if s.clock.Now().UnixNano() >= expiresAt {
		return domain.SunsetResult{}, false, nil
	}
	p, err := decode(b)
	if err != nil {
		return domain.SunsetResult{}, false, err
	}
	return p.Result, true, nil
}

func (s *SQLite) Put(ctx context.Context, key string, result domain.SunsetResult, ttl time.Duration) error {
	expiresAt := s.clock.Now().Add(ttl)
	b, err := encode(result, expiresAt)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsert, key, b, expiresAt.UnixNano()); err != nil {
		return fmt.Errorf("sqlite put %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the database is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
