package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/service"
	"github.com/aussiebroadwan/clientdesk/pkg/cryptox"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Local store drivers.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
	StoreNone   = "none"
)

type Config struct {
	APIURL     string `env:"CLIENTDESK_API_URL"      envDefault:"http://localhost:5000/api/v1"`
	AuthAPIURL string `env:"CLIENTDESK_AUTH_API_URL" envDefault:"http://localhost:5000/api/auth"`

	// AuthToken takes precedence over a token in the local store.
	AuthToken     string `env:"CLIENTDESK_AUTH_TOKEN"`
	AdminPassword string `env:"CLIENTDESK_ADMIN_PASSWORD"`

	HTTPTimeout time.Duration `env:"CLIENTDESK_HTTP_TIMEOUT" envDefault:"10s"`
	RateLimit   float64       `env:"CLIENTDESK_RATE_LIMIT"   envDefault:"0"` // requests per second, 0 is unlimited
	RateBurst   int           `env:"CLIENTDESK_RATE_BURST"   envDefault:"1"`

	LocalStore    string        `env:"CLIENTDESK_LOCAL_STORE"    envDefault:"sqlite"`
	SQLiteFile    string        `env:"CLIENTDESK_SQLITE_FILE"    envDefault:"clientdesk.db"`
	RedisAddr     string        `env:"CLIENTDESK_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"CLIENTDESK_REDIS_PASSWORD"`
	RedisDB       int           `env:"CLIENTDESK_REDIS_DB"       envDefault:"0"`
	LocalLatency  time.Duration `env:"CLIENTDESK_LOCAL_LATENCY"  envDefault:"300ms"`
	Routes        string        `env:"CLIENTDESK_ROUTES"`

	AMQPURL    string `env:"CLIENTDESK_AMQP_URL"`
	AuditQueue string `env:"CLIENTDESK_AUDIT_QUEUE" envDefault:"clientdesk.audit"`

	Env       string `env:"ENV"        envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.LocalStore = strings.ToLower(strings.TrimSpace(cfg.LocalStore))
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("CLIENTDESK_API_URL is required")
	}
	if strings.TrimSpace(c.AuthAPIURL) == "" {
		return errors.New("CLIENTDESK_AUTH_API_URL is required")
	}

	switch c.LocalStore {
	case StoreSQLite, StoreRedis, StoreMemory, StoreNone:
	default:
		return fmt.Errorf("CLIENTDESK_LOCAL_STORE: unknown driver %q", c.LocalStore)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("CLIENTDESK_RATE_LIMIT must not be negative, got %v", c.RateLimit)
	}

	if _, err := c.ParsedRoutes(); err != nil {
		return fmt.Errorf("CLIENTDESK_ROUTES: %w", err)
	}

	return nil
}

// ParsedRoutes applies CLIENTDESK_ROUTES on top of the default table.
func (c Config) ParsedRoutes() (service.Routes, error) {
	return service.ParseRoutes(c.Routes, service.DefaultRoutes())
}

// LogValue keeps credentials out of the startup log.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_url", c.APIURL),
		slog.String("auth_api_url", c.AuthAPIURL),
		slog.String("auth_token", cryptox.ShortFingerprint(c.AuthToken)),
		slog.String("admin_password", cryptox.Mask(c.AdminPassword)),
		slog.Duration("http_timeout", c.HTTPTimeout),
		slog.Float64("rate_limit", c.RateLimit),
		slog.String("local_store", c.LocalStore),
		slog.String("routes", c.Routes),
		slog.Bool("amqp", c.AMQPURL != ""),
		slog.String("env", c.Env),
	)
}
