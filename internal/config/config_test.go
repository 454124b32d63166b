package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "LOG_FORMAT", "DB_DRIVER", "DATABASE_URL",
		"VERIFICATION_DELAY", "RECONNECT_GRACE_PERIOD", "SHUTDOWN_TIMEOUT", "ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3500*time.Millisecond, cfg.VerificationDelay)
	assert.Equal(t, 5*time.Minute, cfg.GracePeriod)
	assert.Equal(t, ":3001", cfg.Addr())
	assert.Empty(t, cfg.DBDriver)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:loto.db")
	t.Setenv("VERIFICATION_DELAY", "250ms")
	t.Setenv("RECONNECT_GRACE_PERIOD", "30s")
	t.Setenv("ALLOWED_ORIGINS", "localhost:5173, loto.example.com ,")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "file:loto.db", cfg.DatabaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.VerificationDelay)
	assert.Equal(t, 30*time.Second, cfg.GracePeriod)
	assert.Equal(t, []string{"localhost:5173", "loto.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "-1")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("VERIFICATION_DELAY", "soon")
	t.Setenv("RECONNECT_GRACE_PERIOD", "-5s")

	cfg := Load()
	def := Default()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.LogFormat, cfg.LogFormat)
	assert.Equal(t, def.VerificationDelay, cfg.VerificationDelay)
	assert.Equal(t, def.GracePeriod, cfg.GracePeriod)
}

func TestLoad_DatabaseURLImpliesPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://loto@localhost/loto")
	assert.Equal(t, DriverPostgres, Load().DBDriver)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VERIFICATION_DELAY=1s\n"), 0o600))
	require.NoError(t, os.Unsetenv("VERIFICATION_DELAY"))
	t.Cleanup(func() { os.Unsetenv("VERIFICATION_DELAY") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, time.Second, Load().VerificationDelay)
}
