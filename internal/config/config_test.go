package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/ksef-connector/internal/config"
	"github.com/rezonia/ksef-connector/internal/ksef"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ksef.Test.BaseURL, cfg.Env.BaseURL)
	assert.Equal(t, config.BackendFile, cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.PollInitialInterval)
	assert.Equal(t, 2*time.Minute, cfg.PollMaxInterval)
	assert.Equal(t, 30, cfg.Poller.MaxAttempts)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ksef.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
timeout: 5s
store:
  backend: memory
poller:
  initial_interval: 1s
  max_interval: 10s
  max_attempts: 3
`), 0o600))

	t.Setenv("KSEF_BASE_URL", "http://localhost:8085")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Env.IsProduction())
	assert.Equal(t, "http://localhost:8085", cfg.Env.BaseURL)
	assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.PollMaxInterval)
	assert.Equal(t, 3, cfg.Poller.MaxAttempts)
}

func TestRead_DefersValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ksef.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: redis\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)

	cfg, err := config.Read(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendRedis, cfg.Store.Backend)

	cfg.Store.RedisURL = "redis://localhost:6379/0"
	parsed, err := cfg.Parse()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", parsed.Store.RedisURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "store:\n  backend: sqlite\n"},
		{"redis without url", "store:\n  backend: redis\n"},
		{"redis notify without url", "notify:\n  backend: redis\n"},
		{"bad environment", "environment: staging\n"},
		{"bad duration", "timeout: soon\n"},
		{"malformed yaml", "store: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ksef.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
