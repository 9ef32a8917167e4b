package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/signinbot/internal/bot/store"
)

// Store is a process-local LoginRegistry. Entries are lost on restart.
type Store struct {
	entries sync.Map // map[string]time.Time
	opts    store.Options
	now     func() time.Time
}

var _ store.LoginRegistry = (*Store)(nil)

func NewStore(opts store.Options) *Store {
	return &Store{opts: opts, now: opts.Clock()}
}

func (s *Store) Add(_ context.Context, key string) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	s.entries.Store(key, s.now())
	return nil
}

func (s *Store) Contains(_ context.Context, key string) (bool, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return false, nil
	}
	if s.opts.Expired(v.(time.Time), s.now()) {
		// Only drop the entry we looked at; a concurrent Add may have
		// replaced it.
		s.entries.CompareAndDelete(key, v)
		return false, nil
	}
	return true, nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *Store) DeleteExpired(_ context.Context) (int, error) {
	if s.opts.TTL <= 0 {
		return 0, nil
	}

	now := s.now()
	deleted := 0
	s.entries.Range(func(key, value any) bool {
		if s.opts.Expired(value.(time.Time), now) && s.entries.CompareAndDelete(key, value) {
			deleted++
		}
		return true
	})
	return deleted, nil
}

// Len counts live and expired entries alike.
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
