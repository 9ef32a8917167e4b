package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	httpapi "github.com/aussiebroadwan/signinbot/internal/bot/http"
	"github.com/aussiebroadwan/signinbot/internal/bot/store"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/memory"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/redis"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/sqlite"
	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("BOT_CONNECTION_NAME", "graph")
	t.Setenv("LOG_LEVEL", "error")
	cfg, err := ParseConfig()
	require.NoError(t, err)
	return cfg
}

func TestOpenRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := testConfig(t)
		reg, err := openRegistry(ctx, cfg, slogx.Discard())
		require.NoError(t, err)
		require.IsType(t, &memory.Store{}, reg)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RegistryDriver = store.DriverSQLite
		cfg.DatabaseFile = filepath.Join(t.TempDir(), "bot.db")

		reg, err := openRegistry(ctx, cfg, slogx.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = reg.Close() })
		require.IsType(t, &sqlite.Store{}, reg)

		require.NoError(t, reg.Add(ctx, "k"))
		ok, err := reg.Contains(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.RegistryDriver = store.DriverRedis
		cfg.RedisAddr = mr.Addr()

		reg, err := openRegistry(ctx, cfg, slogx.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = reg.Close() })
		require.IsType(t, &redis.Store{}, reg)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig(t)
		cfg.RegistryDriver = store.DriverRedis
		cfg.RedisAddr = addr

		_, err := openRegistry(ctx, cfg, slogx.Discard())
		require.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RegistryDriver = "etcd"
		_, err := openRegistry(ctx, cfg, slogx.Discard())
		require.ErrorIs(t, err, store.ErrUnknownDriver)
	})
}

func TestNew_ServesHealth(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Shutdown()) })

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body httpapi.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, BuildVersion, body.Version)
	require.NotNil(t, body.Checks)
	require.Empty(t, body.Checks.Keys)
}

func TestNew_ChannelAuthFetchesKeys(t *testing.T) {
	keys := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	t.Cleanup(keys.Close)

	cfg := testConfig(t)
	cfg.AppID = "app-1"
	cfg.OpenIDKeysURL = keys.URL

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Shutdown()) })
	require.NotNil(t, app.keys)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	// An empty key set is not ready.
	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Activities without a channel token are refused.
	resp, err = http.Post(srv.URL+"/api/messages", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConversationsFactory_CachesPerServiceURL(t *testing.T) {
	factory := conversationsFactory(connector.Options{}, maxServiceURLs)

	a := factory("https://smba.example/emea/")
	b := factory("https://smba.example/emea/")
	c := factory("https://smba.example/amer/")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
}

func TestConversationsFactory_BoundedCache(t *testing.T) {
	factory := conversationsFactory(connector.Options{}, 2)

	a := factory("https://one.example/")
	b := factory("https://two.example/")
	require.Same(t, a, factory("https://one.example/"))
	require.Same(t, b, factory("https://two.example/"))

	// Full: new URLs still get a client, but it is not kept.
	c := factory("https://three.example/")
	require.NotNil(t, c)
	require.NotSame(t, c, factory("https://three.example/"))
}

func TestConversationsFactory_NoCache(t *testing.T) {
	factory := conversationsFactory(connector.Options{}, 0)

	require.NotSame(t, factory("https://smba.example/"), factory("https://smba.example/"))
}

func TestSetupTracing_NoEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "", ServiceName, BuildVersion)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
}
