package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/signinbot/internal/bot/store"
	_ "modernc.org/sqlite"
)

const (
	upsertLoginAttempt = `INSERT INTO login_attempts (key, created_at) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET created_at = excluded.created_at`
	getLoginAttempt           = `SELECT created_at FROM login_attempts WHERE key = ?`
	deleteLoginAttempt        = `DELETE FROM login_attempts WHERE key = ?`
	deleteStaleLoginAttempt   = `DELETE FROM login_attempts WHERE key = ? AND created_at = ?`
	deleteExpiredLoginAttempt = `DELETE FROM login_attempts WHERE created_at <= ?`
)

// Store is a LoginRegistry persisted in a SQLite database file.
type Store struct {
	db   *sql.DB
	dsn  string
	opts store.Options
	now  func() time.Time
}

var _ store.LoginRegistry = (*Store)(nil)

func NewStore(dsn string, opts store.Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time; this also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:   db,
		dsn:  dsn,
		opts: opts,
		now:  opts.Clock(),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Add(ctx context.Context, key string) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, upsertLoginAttempt, key, s.now().UnixNano())
	return err
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	var createdAt int64
	err := s.db.QueryRowContext(ctx, getLoginAttempt, key).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if s.opts.Expired(time.Unix(0, createdAt), s.now()) {
		if _, err := s.db.ExecContext(ctx, deleteStaleLoginAttempt, key, createdAt); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, deleteLoginAttempt, key)
	return err
}

func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	if s.opts.TTL <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.opts.TTL).UnixNano()
	res, err := s.db.ExecContext(ctx, deleteExpiredLoginAttempt, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
