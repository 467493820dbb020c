package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "JWT_SECRET", "SESSION_TTL", "UPLOAD_DIR", "CORS_ORIGINS", "LOG_LEVEL", "LOG_FORMAT", "GITHUB_CALLBACK_URL", "ORPHAN_IMAGE_TTL", "PRUNE_INTERVAL", "IMAGE_WORKERS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/compopedia.db", cfg.DBPath)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "public/uploads", cfg.UploadDir)
	assert.Equal(t, 24*time.Hour, cfg.OrphanImageTTL)
	assert.Equal(t, time.Hour, cfg.PruneInterval)
	assert.Equal(t, 0, cfg.ImageWorkers)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHubCallbackURL)
	assert.False(t, cfg.GitHubEnabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GITHUB_CLIENT_ID", "id")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.GitHubEnabled())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, DBPath: "x.db", SessionTTL: time.Hour, LogLevel: "info", LogFormat: "text"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"empty db path", func(c *Config) { c.DBPath = " " }},
		{"non-positive ttl", func(c *Config) { c.SessionTTL = 0 }},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }},
		{"negative prune interval", func(c *Config) { c.PruneInterval = -time.Minute }},
		{"negative image workers", func(c *Config) { c.ImageWorkers = -1 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
