package app

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/signinbot/internal/bot/domain"
	"github.com/aussiebroadwan/signinbot/internal/bot/store"
)

var ErrMissingConnection = errors.New("app: BOT_CONNECTION_NAME is required")

type Config struct {
	// Bot identity. An empty AppID runs the bot without outbound credentials
	// and without inbound channel authentication, which is how it talks to
	// the local emulator.
	AppID         string `env:"BOT_APP_ID"`
	AppPassword   string `env:"BOT_APP_PASSWORD"`
	Tenant        string `env:"BOT_TENANT" envDefault:"botframework.com"`
	AuthorityHost string `env:"BOT_AUTHORITY_HOST" envDefault:"https://login.microsoftonline.com"`

	ConnectionName string `env:"BOT_CONNECTION_NAME"`
	TokenEndpoint  string `env:"BOT_TOKEN_ENDPOINT" envDefault:"https://token.botframework.com"`
	TokenScope     string `env:"BOT_TOKEN_SCOPE" envDefault:"https://api.botframework.com/.default"`
	ChannelScope   string `env:"BOT_CHANNEL_SCOPE" envDefault:"https://api.botframework.com/.default"`

	OpenIDKeysURL string   `env:"BOT_OPENID_KEYS_URL" envDefault:"https://login.botframework.com/v1/.well-known/keys"`
	TokenIssuers  []string `env:"BOT_TOKEN_ISSUERS" envSeparator:"," envDefault:"https://api.botframework.com"`

	LoginScope string        `env:"BOT_LOGIN_SCOPE" envDefault:"user"`
	LoginTTL   time.Duration `env:"BOT_LOGIN_TTL" envDefault:"15m"`

	RegistryDriver string `env:"BOT_REGISTRY_DRIVER" envDefault:"memory"`
	DatabaseFile   string `env:"BOT_DATABASE_FILE" envDefault:"signinbot.db"`
	RedisAddr      string `env:"BOT_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"BOT_REDIS_PASSWORD"`

	HandleTimeout        time.Duration `env:"BOT_HANDLE_TIMEOUT" envDefault:"30s"`
	HousekeepingInterval time.Duration `env:"BOT_HOUSEKEEPING_INTERVAL" envDefault:"5m"`

	RateLimitRequests int           `env:"BOT_RATE_LIMIT_REQUESTS" envDefault:"300"`
	RateLimitWindow   time.Duration `env:"BOT_RATE_LIMIT_WINDOW" envDefault:"1m"`

	Port                int           `env:"PORT" envDefault:"3978"`
	Env                 string        `env:"ENV" envDefault:"dev"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	OTELEndpoint        string        `env:"OTEL_ENDPOINT"`
}

// AuthEnabled reports whether inbound channel tokens are verified.
func (c Config) AuthEnabled() bool { return c.AppID != "" }

// LoadConfig reads .env (when present) and then the process environment.
// Variables already set in the environment win over .env.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return ParseConfig()
}

// ParseConfig reads the process environment only.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ConnectionName == "" {
		return ErrMissingConnection
	}
	if _, err := domain.ParseScope(c.LoginScope); err != nil {
		return err
	}
	switch c.RegistryDriver {
	case store.DriverMemory, store.DriverSQLite, store.DriverRedis:
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownDriver, c.RegistryDriver)
	}
	return nil
}
