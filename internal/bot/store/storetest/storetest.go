// Package storetest holds the behaviour every LoginRegistry driver must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/internal/bot/store"
)

// Clock is a settable time source for expiry tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds a fresh, empty registry. Advance moves the registry's notion
// of time forward; drivers that expire natively (redis) hook their own clock.
type Factory func(t *testing.T, ttl time.Duration) (reg store.LoginRegistry, advance func(time.Duration))

// Run exercises a driver against the shared LoginRegistry contract.
func Run(t *testing.T, newRegistry Factory) {
	ctx := context.Background()

	t.Run("add then contains", func(t *testing.T) {
		reg, _ := newRegistry(t, 0)

		ok, err := reg.Contains(ctx, "U1")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, reg.Add(ctx, "U1"))
		ok, err = reg.Contains(ctx, "U1")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = reg.Contains(ctx, "U2")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("add is idempotent", func(t *testing.T) {
		reg, _ := newRegistry(t, 0)
		require.NoError(t, reg.Add(ctx, "U1"))
		require.NoError(t, reg.Add(ctx, "U1"))

		require.NoError(t, reg.Remove(ctx, "U1"))
		ok, err := reg.Contains(ctx, "U1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		reg, _ := newRegistry(t, 0)
		require.ErrorIs(t, reg.Add(ctx, ""), store.ErrEmptyKey)
	})

	t.Run("remove absent key", func(t *testing.T) {
		reg, _ := newRegistry(t, 0)
		require.NoError(t, reg.Remove(ctx, "nobody"))
	})

	t.Run("entries past ttl are absent", func(t *testing.T) {
		reg, advance := newRegistry(t, time.Minute)
		require.NoError(t, reg.Add(ctx, "U1"))

		advance(59 * time.Second)
		ok, err := reg.Contains(ctx, "U1")
		require.NoError(t, err)
		require.True(t, ok)

		advance(2 * time.Second)
		ok, err = reg.Contains(ctx, "U1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("re-adding restarts the ttl", func(t *testing.T) {
		reg, advance := newRegistry(t, time.Minute)
		require.NoError(t, reg.Add(ctx, "U1"))
		advance(50 * time.Second)
		require.NoError(t, reg.Add(ctx, "U1"))
		advance(50 * time.Second)

		ok, err := reg.Contains(ctx, "U1")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("delete expired keeps live entries", func(t *testing.T) {
		reg, advance := newRegistry(t, time.Minute)
		require.NoError(t, reg.Add(ctx, "old"))
		advance(2 * time.Minute)
		require.NoError(t, reg.Add(ctx, "fresh"))

		_, err := reg.DeleteExpired(ctx)
		require.NoError(t, err)

		ok, err := reg.Contains(ctx, "fresh")
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = reg.Contains(ctx, "old")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("concurrent access", func(t *testing.T) {
		reg, _ := newRegistry(t, 0)

		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("user-%d", i%4)
				_ = reg.Add(ctx, key)
				_, _ = reg.Contains(ctx, key)
				_ = reg.Remove(ctx, key)
			}()
		}
		wg.Wait()

		for i := range 4 {
			ok, err := reg.Contains(ctx, fmt.Sprintf("user-%d", i))
			require.NoError(t, err)
			require.False(t, ok)
		}
	})

	t.Run("ping", func(t *testing.T) {
		reg, _ := newRegistry(t, 0)
		require.NoError(t, reg.Ping(ctx))
	})
}
