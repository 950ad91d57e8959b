package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvEndpoint, EnvAPIKey, EnvCallerID, EnvTenantID} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
endpoint: https://store.example.com/functions/v1
api_key: k1
caller_id: alice
tenant_id: 6
catalog_dir: tables
database: postgres://localhost/gridsync
listen: ":9090"
timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://store.example.com/functions/v1", cfg.Endpoint)
	assert.Equal(t, "k1", cfg.APIKey)
	assert.Equal(t, "alice", cfg.CallerID)
	require.NotNil(t, cfg.TenantID)
	assert.Equal(t, int64(6), *cfg.TenantID)
	assert.Equal(t, "tables", cfg.CatalogDir)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Timeout))
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "caller_id: bob\n"))
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.CallerID)
	assert.Equal(t, Default().Endpoint, cfg.Endpoint)
	assert.Nil(t, cfg.TenantID)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "endpoint: http://x\nenpoint: typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enpoint")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("env wins over file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvEndpoint, "http://env:1")
		t.Setenv(EnvAPIKey, "env-key")
		t.Setenv(EnvCallerID, "carol")
		t.Setenv(EnvTenantID, "42")

		cfg, err := Load(writeConfig(t, "endpoint: http://file\ncaller_id: alice\ntenant_id: 6\n"))
		require.NoError(t, err)

		assert.Equal(t, "http://env:1", cfg.Endpoint)
		assert.Equal(t, "env-key", cfg.APIKey)
		assert.Equal(t, "carol", cfg.CallerID)
		assert.Equal(t, int64(42), *cfg.TenantID)
	})

	t.Run("non-numeric tenant is an error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvTenantID, "six")

		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvTenantID)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Endpoint = " "
	cfg.Timeout = Duration(-time.Second)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")
	assert.Contains(t, err.Error(), "timeout must not be negative")
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	tenant := int64(3)
	cfg := Default()
	cfg.APIKey = "k"
	cfg.TenantID = &tenant

	path := filepath.Join(t.TempDir(), "nested", "gridsync.yaml")
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
