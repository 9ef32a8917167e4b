package app

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/signinbot/internal/bot/store"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/memory"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/redis"
	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/sqlite"
)

// openRegistry builds the login registry for cfg.RegistryDriver.
func openRegistry(ctx context.Context, cfg Config, logger *slog.Logger) (store.LoginRegistry, error) {
	opts := store.Options{TTL: cfg.LoginTTL}

	switch cfg.RegistryDriver {
	case store.DriverMemory:
		return memory.NewStore(opts), nil

	case store.DriverSQLite:
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		logger.Info("database migrations applied successfully", "file", cfg.DatabaseFile)
		return db, nil

	case store.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		rs := redis.NewStore(client, redis.DefaultPrefix, opts)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return rs, nil
	}

	return nil, fmt.Errorf("%w: %q", store.ErrUnknownDriver, cfg.RegistryDriver)
}
