package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-deposit/pkg/simpledeposit/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.ArchiveType)
	assert.Equal(t, "deposit", cfg.DBSchema)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.ServerConfig)
		expectErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *config.ServerConfig) {},
		},
		{
			name:      "empty port",
			mutate:    func(c *config.ServerConfig) { c.Port = "" },
			expectErr: "port is required",
		},
		{
			name:      "unknown database type",
			mutate:    func(c *config.ServerConfig) { c.DatabaseType = "oracle" },
			expectErr: "database_type",
		},
		{
			name:      "postgres without url",
			mutate:    func(c *config.ServerConfig) { c.DatabaseType = "postgres" },
			expectErr: "database_url is required",
		},
		{
			name:      "unknown archive type",
			mutate:    func(c *config.ServerConfig) { c.ArchiveType = "tape" },
			expectErr: "archive_type",
		},
		{
			name:      "s3 without bucket",
			mutate:    func(c *config.ServerConfig) { c.ArchiveType = "s3" },
			expectErr: "archive bucket is required",
		},
		{
			name:      "non-positive poll interval",
			mutate:    func(c *config.ServerConfig) { c.PollInterval = 0 },
			expectErr: "poll_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.expectErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectErr)
			}
		})
	}
}

func TestWithEnvOverlay(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/deposit")
	t.Setenv("ARCHIVE_TYPE", "s3")
	t.Setenv("ARCHIVE_BUCKET", "deposits")
	t.Setenv("POLL_INTERVAL", "5s")

	cfg, err := config.Load(config.WithEnv())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, "postgres://localhost:5432/deposit", cfg.DatabaseURL)
	assert.Equal(t, "s3", cfg.ArchiveType)
	assert.Equal(t, "deposits", cfg.Archive.Bucket)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestBuildServiceMemory(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	svc, err := cfg.BuildService()
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
