package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestLoad_EnvThenFlags(t *testing.T) {
	// GIVEN: environment settings
	t.Setenv("TAX_PORT", "9090")
	t.Setenv("TAX_DB_DRIVER", "memory")
	t.Setenv("TAX_CACHE_TTL", "30s")

	// WHEN: a flag overrides the port
	cfg, err := Load("", []string{"-port", "7070"})

	// THEN: flags win over env, env wins over defaults
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TAX_REFERENCE_FILE=ref.yaml\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TAX_REFERENCE_FILE") })

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "ref.yaml", cfg.ReferenceFile)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"), nil)
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.DBDriver = DriverPostgres
	assert.Error(t, cfg.Validate(), "postgres needs DATABASE_URL")

	cfg.DatabaseURL = "postgres://localhost/tax"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("TAX_CACHE_TTL", "forever")
	_, err := Load("", nil)
	assert.Error(t, err)
}
