//go:build integration

package bot_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/signinbot/internal/bot/service"
)

// setupRedisContainer starts a throwaway redis and returns its address.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestSignIn_RedisRegistry(t *testing.T) {
	h := setupBot(t, setupOptions{env: map[string]string{
		"BOT_REGISTRY_DRIVER": "redis",
		"BOT_REDIS_ADDR":      setupRedisContainer(t),
	}})

	code := consent(t, signInLink(t, h.say(t, "u1", "login")))

	reply := h.say(t, "u1", code)
	require.Equal(t, service.TextSignedIn, reply.Activity.Text)
}
