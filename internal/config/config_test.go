package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MAX_WARNINGS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultMaxWarnings, cfg.MaxWarnings)
	assert.Equal(t, DefaultCommitMaxAttempts, cfg.CommitMaxAttempts)
	assert.Equal(t, DefaultReconcileInterval, cfg.ReconcileInterval)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_WARNINGS", "5")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example.com, ,https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.MaxWarnings)
	assert.Equal(t, []string{"https://ops.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoad_BadValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("MAX_WARNINGS", "three")
	t.Setenv("RECONCILE_INTERVAL", "often")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxWarnings, cfg.MaxWarnings)
	assert.Equal(t, DefaultReconcileInterval, cfg.ReconcileInterval)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Port: "8080", Env: "development", MaxWarnings: 3, CommitMaxAttempts: 5, ReconcileWorkers: 4}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"zero warnings", func(c *Config) { c.MaxWarnings = 0 }, "MAX_WARNINGS"},
		{"zero attempts", func(c *Config) { c.CommitMaxAttempts = 0 }, "COMMIT_MAX_ATTEMPTS"},
		{"zero workers", func(c *Config) { c.ReconcileWorkers = 0 }, "RECONCILE_WORKERS"},
		{"production without secret", func(c *Config) { c.Env = "production" }, "ADMIN_SECRET is required"},
		{"production short secret", func(c *Config) { c.Env = "production"; c.AdminSecret = "short" }, "at least 16"},
		{"production ok", func(c *Config) { c.Env = "production"; c.AdminSecret = "0123456789abcdef" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
