package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/internal/bot/store"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/memory"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/storetest"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

func TestHousekeepingService_SweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock()
	registry := memory.NewStore(store.Options{TTL: time.Minute, Now: clock.Now})

	require.NoError(t, registry.Add(ctx, "U1"))
	require.NoError(t, registry.Add(ctx, "U2"))
	clock.Advance(2 * time.Minute)
	require.NoError(t, registry.Add(ctx, "U3"))

	hk := NewHousekeepingService(registry, slogx.Discard(), 10*time.Millisecond)
	hk.Start()
	require.Eventually(t, func() bool { return registry.Len() == 1 }, time.Second, 5*time.Millisecond)
	hk.Stop()
	hk.Stop()

	ok, err := registry.Contains(ctx, "U3")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewHousekeepingService_DefaultInterval(t *testing.T) {
	hk := NewHousekeepingService(memory.NewStore(store.Options{}), slogx.Discard(), 0)
	require.Equal(t, 5*time.Minute, hk.Interval)
}

func TestHousekeepingService_StopWithoutStart(t *testing.T) {
	hk := NewHousekeepingService(memory.NewStore(store.Options{}), slogx.Discard(), time.Minute)

	done := make(chan struct{})
	go func() {
		hk.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}
