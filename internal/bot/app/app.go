package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aussiebroadwan/signinbot/internal/bot/domain"
	httpapi "github.com/aussiebroadwan/signinbot/internal/bot/http"
	"github.com/aussiebroadwan/signinbot/internal/bot/service"
	"github.com/aussiebroadwan/signinbot/internal/bot/store"
	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/connector/credentials"
	"github.com/aussiebroadwan/signinbot/pkg/httpx"
	"github.com/aussiebroadwan/signinbot/pkg/jwtx"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	ServiceName = "signinbot"
)

// Application wires the sign-in bot together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	registry        store.LoginRegistry
	keys            *jwtx.RemoteKeySet // nil when channel auth is off
	signIn          *service.SignInService
	housekeeping    *service.HousekeepingService
	shutdownTracing func(context.Context) error

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialized. Nothing is
// listening until Run.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: ServiceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := context.Background()

	shutdownTracing, err := SetupTracing(ctx, cfg.OTELEndpoint, ServiceName, BuildVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	app.shutdownTracing = shutdownTracing

	registry, err := openRegistry(ctx, cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.registry = registry

	if err := app.initServices(); err != nil {
		_ = registry.Close()
		return nil, err
	}
	app.initHTTP(ctx)

	return app, nil
}

// Handler returns the bot's HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("sign-in bot starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"registry", app.cfg.RegistryDriver,
		"channel_auth", app.cfg.AuthEnabled(),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeeping.Stop()
			_ = app.registry.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the server, housekeeping and registry, then
// flushes pending spans.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sign-in bot...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	var errs []error
	if err := app.registry.Close(); err != nil {
		app.logger.Error("error closing login registry", "error", err)
		errs = append(errs, err)
	}
	if err := app.shutdownTracing(ctx); err != nil {
		app.logger.Error("error flushing traces", "error", err)
		errs = append(errs, err)
	}

	app.logger.Info("sign-in bot stopped")
	return errors.Join(errs...)
}

func (app *Application) initServices() error {
	scope, err := domain.ParseScope(app.cfg.LoginScope)
	if err != nil {
		return err
	}

	// A nil credential must stay a nil interface.
	var cred credentials.TokenCredential
	if app.cfg.AppID != "" {
		cred = credentials.NewClientSecretCredential(
			app.cfg.Tenant,
			app.cfg.AppID,
			app.cfg.AppPassword,
			credentials.WithAuthorityHost(app.cfg.AuthorityHost, app.cfg.Tenant),
		)
	} else {
		app.logger.Warn("BOT_APP_ID is empty, outbound calls are unauthenticated")
	}

	tokens := connector.NewUserTokenClient(app.cfg.TokenEndpoint, connector.Options{
		Credential: cred,
		Scope:      app.cfg.TokenScope,
	})

	// Without channel auth the service URL is whatever the caller sent.
	cacheLimit := 0
	if app.cfg.AuthEnabled() {
		cacheLimit = maxServiceURLs
	}

	app.signIn = &service.SignInService{
		Tokens: tokens,
		Messengers: conversationsFactory(connector.Options{
			Credential: cred,
			Scope:      app.cfg.ChannelScope,
		}, cacheLimit),
		Registry:       app.registry,
		Scope:          scope,
		AppID:          app.cfg.AppID,
		ConnectionName: app.cfg.ConnectionName,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.registry,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

func (app *Application) initHTTP(ctx context.Context) {
	router := httpapi.NewRouter(BuildVersion, app.logger)
	router.Handler = app.signIn
	router.Registry = app.registry
	router.HandleTimeout = app.cfg.HandleTimeout
	router.RateLimit = httpx.RateLimitConfig{
		RequestsPerWindow: app.cfg.RateLimitRequests,
		Window:            app.cfg.RateLimitWindow,
		Burst:             app.cfg.RateLimitRequests,
	}

	if app.cfg.AuthEnabled() {
		app.keys = jwtx.NewRemoteKeySet(app.cfg.OpenIDKeysURL, nil)

		refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := app.keys.Refresh(refreshCtx); err != nil {
			// Keys are fetched again on the first unknown kid.
			app.logger.Warn("initial channel key fetch failed", "url", app.cfg.OpenIDKeysURL, "error", err)
		}
		cancel()

		router.Auth = jwtx.NewChannelVerifier(app.keys, jwtx.VerifyOptions{
			Issuers: app.cfg.TokenIssuers,
			AppID:   app.cfg.AppID,
		})
		router.Keys = app.keys
	} else {
		app.logger.Warn("channel authentication disabled")
	}

	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// maxServiceURLs bounds the conversations client cache. Channels use a
// handful of regional service URLs, so hitting it means something odd.
const maxServiceURLs = 64

// conversationsFactory hands out one conversations client per service URL,
// caching at most limit of them. Past the limit, or with limit 0, each call
// builds a fresh client.
func conversationsFactory(opts connector.Options, limit int) service.MessengerFactory {
	var (
		mu      sync.Mutex
		clients = make(map[string]*connector.ConversationsClient)
	)

	return func(serviceURL string) service.Messenger {
		mu.Lock()
		defer mu.Unlock()

		if c, ok := clients[serviceURL]; ok {
			return c
		}
		c := connector.NewConversationsClient(serviceURL, opts)
		if len(clients) < limit {
			clients[serviceURL] = c
		}
		return c
	}
}
