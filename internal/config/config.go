// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrMissingToken  = errors.New("DISCORD_TOKEN is not set")
	ErrMissingPrefix = errors.New("COMMAND_PREFIX is not set")
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"json"`
	StoragePath   string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"5s"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	WorkerLimit    int           `env:"WORKER_LIMIT" envDefault:"16"`

	ReplyUnknown bool `env:"REPLY_UNKNOWN" envDefault:"true"`
	ReplyErrors  bool `env:"REPLY_ERRORS" envDefault:"true"`
	AllowDM      bool `env:"ALLOW_DM" envDefault:"false"`
	IgnoreBots   bool `env:"IGNORE_BOTS" envDefault:"true"`

	KarmaWindow    time.Duration `env:"KARMA_WINDOW" envDefault:"24h"`
	StatusActivity string        `env:"STATUS_ACTIVITY" envDefault:"the fire rise"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads .env (if present) and the process environment into a Config and
// validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
	return Parse()
}

// Parse reads the process environment without touching .env.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the bot cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return ErrMissingToken
	}
	if c.CommandPrefix == "" {
		return ErrMissingPrefix
	}
	return c.ValidateRuntime()
}

// ValidateRuntime checks everything except the gateway credentials. The local
// console uses it since it never connects.
func (c *Config) ValidateRuntime() error {
	switch c.StorageDriver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("STORAGE_DRIVER %q: want json or sqlite", c.StorageDriver)
	}
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("HANDLER_TIMEOUT must be positive, got %s", c.HandlerTimeout)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("SHUTDOWN_GRACE must be positive, got %s", c.ShutdownGrace)
	}
	if c.WorkerLimit < 1 {
		return fmt.Errorf("WORKER_LIMIT must be at least 1, got %d", c.WorkerLimit)
	}
	if c.KarmaWindow <= 0 {
		return fmt.Errorf("KARMA_WINDOW must be positive, got %s", c.KarmaWindow)
	}
	return nil
}

// String never includes the token.
func (c *Config) String() string {
	return fmt.Sprintf("prefix=%q storage=%s:%s timeout=%s workers=%d", c.CommandPrefix, c.StorageDriver, c.StoragePath, c.HandlerTimeout, c.WorkerLimit)
}
