package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/internal/bot/domain"
	"github.com/aussiebroadwan/signinbot/internal/bot/store"
)

func TestParseConfig_Defaults(t *testing.T) {
	t.Setenv("BOT_CONNECTION_NAME", "graph")

	cfg, err := ParseConfig()
	require.NoError(t, err)

	require.Equal(t, "graph", cfg.ConnectionName)
	require.Equal(t, store.DriverMemory, cfg.RegistryDriver)
	require.Equal(t, string(domain.ScopeUser), cfg.LoginScope)
	require.Equal(t, 15*time.Minute, cfg.LoginTTL)
	require.Equal(t, 30*time.Second, cfg.HandleTimeout)
	require.Equal(t, []string{"https://api.botframework.com"}, cfg.TokenIssuers)
	require.Equal(t, "https://token.botframework.com", cfg.TokenEndpoint)
	require.False(t, cfg.AuthEnabled())
}

func TestParseConfig_Overrides(t *testing.T) {
	t.Setenv("BOT_CONNECTION_NAME", "graph")
	t.Setenv("BOT_APP_ID", "app-1")
	t.Setenv("BOT_TOKEN_ISSUERS", "https://a.example,https://b.example")
	t.Setenv("BOT_LOGIN_SCOPE", "Conversation")
	t.Setenv("BOT_LOGIN_TTL", "90s")
	t.Setenv("BOT_REGISTRY_DRIVER", "redis")

	cfg, err := ParseConfig()
	require.NoError(t, err)

	require.True(t, cfg.AuthEnabled())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.TokenIssuers)
	require.Equal(t, 90*time.Second, cfg.LoginTTL)
	require.Equal(t, store.DriverRedis, cfg.RegistryDriver)
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Run("missing connection", func(t *testing.T) {
		t.Setenv("BOT_CONNECTION_NAME", "")
		_, err := ParseConfig()
		require.ErrorIs(t, err, ErrMissingConnection)
	})

	t.Run("unknown scope", func(t *testing.T) {
		t.Setenv("BOT_CONNECTION_NAME", "graph")
		t.Setenv("BOT_LOGIN_SCOPE", "tenant")
		_, err := ParseConfig()
		require.ErrorIs(t, err, domain.ErrUnknownScope)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("BOT_CONNECTION_NAME", "graph")
		t.Setenv("BOT_REGISTRY_DRIVER", "etcd")
		_, err := ParseConfig()
		require.ErrorIs(t, err, store.ErrUnknownDriver)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("BOT_CONNECTION_NAME", "graph")
		t.Setenv("BOT_LOGIN_TTL", "soon")
		_, err := ParseConfig()
		require.Error(t, err)
	})
}
