package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/internal/bot/store"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/sqlite"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/storetest"
)

func newStore(t *testing.T, dsn string, opts store.Options) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(dsn, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, ttl time.Duration) (store.LoginRegistry, func(time.Duration)) {
		clock := storetest.NewClock()
		dsn := filepath.Join(t.TempDir(), "registry.db")
		return newStore(t, dsn, store.Options{TTL: ttl, Now: clock.Now}), clock.Advance
	})
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "registry.db"), store.Options{})
	require.NoError(t, s.ApplyMigrations())

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
}

func TestStore_SchemaVersionBeforeMigrations(t *testing.T) {
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "registry.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	require.Zero(t, version)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "registry.db")

	first, err := sqlite.NewStore(dsn, store.Options{})
	require.NoError(t, err)
	require.NoError(t, first.ApplyMigrations())
	require.NoError(t, first.Add(ctx, "U1"))
	require.NoError(t, first.Close())

	second := newStore(t, dsn, store.Options{})
	ok, err := second.Contains(ctx, "U1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_DeleteExpiredCount(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock()
	s := newStore(t, ":memory:", store.Options{TTL: time.Minute, Now: clock.Now})

	require.NoError(t, s.Add(ctx, "a"))
	require.NoError(t, s.Add(ctx, "b"))
	clock.Advance(time.Minute)
	require.NoError(t, s.Add(ctx, "c"))

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
