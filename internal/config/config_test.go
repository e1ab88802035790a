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
	t.Setenv("HEALTHGUARD_AUTH_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Cache.Kind)
	assert.Equal(t, "30m", cfg.Auth.AccessTTL)
	assert.Equal(t, "168h", cfg.Auth.RenewalTTL)
	assert.Equal(t, "X-Tenant-ID", cfg.Tenancy.Header)
	assert.Equal(t, 1000, cfg.Monitoring.BufferSize)
	assert.Equal(t, DefaultGates(), cfg.Tenancy.Gates)
	assert.Equal(t, 60, cfg.Rate.MaxRequests)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("HEALTHGUARD_AUTH_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: staging
server:
  addr: ":9090"
auth:
  secret: from-file
cache:
  kind: redis
  redis:
    addr: "file-redis:6379"
`), 0o600))

	// Env wins over the file.
	t.Setenv("HEALTHGUARD_ADDR", ":7070")
	t.Setenv("HEALTHGUARD_REDIS_ADDR", "env-redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.App.Env)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "from-file", cfg.Auth.Secret)
	assert.Equal(t, "redis", cfg.Cache.Kind)
	assert.Equal(t, "env-redis:6379", cfg.Cache.Redis.Addr)
	// Untouched fields still get defaults.
	assert.Equal(t, "hg", cfg.Cache.Redis.Prefix)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, Duration("30s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("bogus", time.Minute))
}
