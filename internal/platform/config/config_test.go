package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Executor.Workers)
	assert.Equal(t, 30*time.Second, cfg.Sources.Timeout)
	assert.Equal(t, "+1", cfg.Sources.DefaultCountryCode)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, "recon.search.lifecycle", cfg.Kafka.Topic)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RECON_SERVER_ADDR", ":9090")
	t.Setenv("RECON_EXECUTOR_WORKERS", "2")
	t.Setenv("RECON_SOURCES_TIMEOUT", "5s")
	t.Setenv("RECON_SOURCES_BREACH_API_KEY", "k-123")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Executor.Workers)
	assert.Equal(t, 5*time.Second, cfg.Sources.Timeout)
	assert.Equal(t, "k-123", cfg.Sources.Breach.APIKey)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.yaml")
	content := []byte("postgres:\n  dsn: postgres://u:p@localhost/recon\nkafka:\n  brokers: [\"localhost:9092\"]\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost/recon", cfg.Postgres.DSN)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, ":8080", cfg.Server.Addr, "unset keys keep defaults")
}

func TestValidate(t *testing.T) {
	t.Run("unknown phone parser", func(t *testing.T) {
		t.Setenv("RECON_SOURCES_PHONE_PARSER", "magic")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "phone_parser")
	})

	t.Run("non-positive workers", func(t *testing.T) {
		t.Setenv("RECON_EXECUTOR_WORKERS", "0")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executor.workers")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}
