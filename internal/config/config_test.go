package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"STORE_BACKEND", "SQLITE_PATH", "GCP_PROJECT_ID", "PROPERTY_TZ", "PORT",
	"RETENTION_YEARS", "QB_RATE_PER_MIN", "QB_CLIENT_ID", "QB_CLIENT_SECRET",
	"SERVER_READ_TIMEOUT", "LOG_LEVEL", "HOSTAWAY_ACCOUNT_ID", "HOSTAWAY_API_KEY",
	"CORS_ORIGINS", "STATIC_DIR",
}

// clearEnv unsets every key for the test; t.Setenv restores them afterwards
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "strdash.db", cfg.Store.SQLitePath)
	assert.Equal(t, "America/Los_Angeles", cfg.PropertyTZ)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.RetentionYears)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.QuickBooksEnabled())
	assert.False(t, cfg.HostawayEnabled())
	assert.Empty(t, cfg.Server.CORSOrigins)
	assert.Equal(t, "./dist", cfg.Server.StaticDir)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "firestore")
	t.Setenv("GCP_PROJECT_ID", "desert-edit")
	t.Setenv("RETENTION_YEARS", "5")
	t.Setenv("SERVER_READ_TIMEOUT", "2s")
	t.Setenv("QB_CLIENT_ID", "id")
	t.Setenv("QB_CLIENT_SECRET", "secret")
	t.Setenv("CORS_ORIGINS", "https://cozycactus.com, ,https://admin.cozycactus.com")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cozycactus.com", "https://admin.cozycactus.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "desert-edit", cfg.Store.ProjectID)
	assert.Equal(t, 5, cfg.RetentionYears)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.QuickBooksEnabled())
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	tests := []struct{ key, value string }{
		{"RETENTION_YEARS", "three"},
		{"QB_RATE_PER_MIN", "fast"},
		{"SERVER_READ_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, "unknown STORE_BACKEND"},
		{"firestore without project", func(c *Config) { c.Store.Backend = BackendFirestore }, "GCP_PROJECT_ID"},
		{"sqlite without path", func(c *Config) { c.Store.SQLitePath = "" }, "SQLITE_PATH"},
		{"bad timezone", func(c *Config) { c.PropertyTZ = "Mars/Olympus" }, "PROPERTY_TZ"},
		{"zero retention", func(c *Config) { c.RetentionYears = 0 }, "RETENTION_YEARS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := FromEnv()
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9090\nLOG_LEVEL=debug\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
}
