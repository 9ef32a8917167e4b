package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/signinbot/internal/emulator"
	"github.com/aussiebroadwan/signinbot/pkg/jwtx"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

type emulatorFlags struct {
	addr        string
	baseURL     string
	botEndpoint string
	bearerToken string
	appID       string
	sign        bool
	tokenTTL    time.Duration
	logLevel    string
}

func newEmulatorCmd() *cobra.Command {
	var f emulatorFlags

	cmd := &cobra.Command{
		Use:   "emulator",
		Short: "Run a local token service and channel for development",
		Long: `emulator serves the token service and conversation endpoints the bot talks to,
keeping everything in memory. Point BOT_TOKEN_ENDPOINT at it and leave
BOT_APP_ID empty, then talk to the bot with:

  curl -d '{"userId":"u1","text":"login"}' http://localhost:3979/emulator/say

Replies show up in the log and on /emulator/activities.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runEmulator(ctx, f)
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", ":3979", "listen address")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "http://localhost:3979", "public address used in consent links and as the activity serviceUrl")
	cmd.Flags().StringVar(&f.botEndpoint, "bot-endpoint", "http://localhost:3978/api/messages", "bot messaging endpoint for /emulator/say")
	cmd.Flags().StringVar(&f.bearerToken, "bearer-token", "", "require this bearer token on API calls")
	cmd.Flags().StringVar(&f.appID, "app-id", "", "audience of signed channel tokens")
	cmd.Flags().BoolVar(&f.sign, "sign", false, "sign delivered activities and publish keys on /v1/.well-known/keys")
	cmd.Flags().DurationVar(&f.tokenTTL, "token-ttl", time.Hour, "lifetime of issued user tokens")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level")

	return cmd
}

func runEmulator(ctx context.Context, f emulatorFlags) error {
	logger := slogx.New(slogx.Config{
		Service: "signinbot-emulator",
		Env:     "dev",
		Level:   f.logLevel,
		Format:  "text",
	})

	opts := emulator.Options{
		BaseURL:     f.baseURL,
		BearerToken: f.bearerToken,
		AppID:       f.appID,
		BotEndpoint: f.botEndpoint,
		TokenTTL:    f.tokenTTL,
		Logger:      logger,
	}
	if f.sign {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return fmt.Errorf("failed to generate signing key: %w", err)
		}
		signer, err := jwtx.NewRS256Signer("emulator", key)
		if err != nil {
			return err
		}
		opts.Signer = signer
	}

	emu, err := emulator.New(opts)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              f.addr,
		Handler:           slogx.HTTPMiddleware(logger)(emu),
		ReadHeaderTimeout: 3 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()
	logger.Info("emulator listening", "addr", f.addr, "base_url", f.baseURL, "signing", f.sign)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
