// Package config loads runtime configuration from the environment.
//
// Values come from environment variables (optionally seeded from a .env file
// by main). Parsing is declarative: each field names its variable and
// default in struct tags, and caarlos0/env does the conversion, so adding an
// option is a one-line change.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs to start.
type Config struct {
	Port   int    `env:"PORT"    envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/compopedia.db"`

	// JWTSecret signs session tokens. When empty, a random secret is
	// generated at startup and sessions do not survive a restart.
	JWTSecret     string        `env:"JWT_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL"    envDefault:"24h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`

	// UploadDir holds legacy image files referenced by "/uploads/..." urls.
	UploadDir string `env:"UPLOAD_DIR" envDefault:"public/uploads"`

	// Unattached uploads older than OrphanImageTTL are deleted every
	// PruneInterval. A zero interval disables the background pruner.
	OrphanImageTTL time.Duration `env:"ORPHAN_IMAGE_TTL" envDefault:"24h"`
	PruneInterval  time.Duration `env:"PRUNE_INTERVAL"   envDefault:"1h"`

	// ImageWorkers caps concurrent upload processing. Zero means one per CPU.
	ImageWorkers int `env:"IMAGE_WORKERS" envDefault:"0"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `env:"GITHUB_CALLBACK_URL"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would only fail later at runtime.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("config: DB_PATH must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.OrphanImageTTL < 0 || c.PruneInterval < 0 {
		return fmt.Errorf("config: ORPHAN_IMAGE_TTL and PRUNE_INTERVAL must not be negative")
	}
	if c.ImageWorkers < 0 {
		return fmt.Errorf("config: IMAGE_WORKERS must not be negative, got %d", c.ImageWorkers)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be at least 16 characters")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// GitHubEnabled reports whether the GitHub login routes should be mounted.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SlogLevel converts LOG_LEVEL ("debug", "info", "warn", "error").
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
