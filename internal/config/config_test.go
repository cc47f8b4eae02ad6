package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigFromEnvironment(t *testing.T) {
	t.Cleanup(Reset)

	t.Setenv("HAYZEDD_ENV", Test)
	t.Setenv("HAYZEDD_SESSION_TIMEOUT_SECONDS", "600")
	t.Setenv("HAYZEDD_ADMIN_KEY", "local-key")
	t.Setenv("HAYZEDD_API_PREFIX", "/collect")
	t.Setenv("HAYZEDD_STORAGE_PATH", "/tmp/hz")
	Reset()

	cfg := GetConfig()
	assert.True(t, cfg.IsTest())
	assert.Equal(t, 600, cfg.GetSessionTimeout())
	assert.Equal(t, "local-key", cfg.AdminKey)
	assert.Equal(t, "/collect", cfg.APIPrefix)
	assert.Equal(t, filepath.Join("/tmp/hz", "hayzedd-test.db"), cfg.DatabaseName)
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
	assert.Same(t, cfg, GetConfig())
}

func TestDefaults(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	cfg := GetConfig()
	assert.Equal(t, 1800, cfg.GetSessionTimeout())
	assert.Equal(t, "/api/analytics", cfg.APIPrefix)
	assert.Equal(t, 0, cfg.RetentionDays)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:           Development,
			DatabaseType:          SQLiteDatabase,
			PrivateKey:            defaultPrivateKey,
			SessionTimeoutSeconds: 1800,
			APIPrefix:             "/api/analytics",
		}
	}

	require.NoError(t, valid().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"unknown database", func(c *Config) { c.DatabaseType = "postgres" }, "invalid database type"},
		{"missing private key", func(c *Config) { c.PrivateKey = "" }, "private key is required"},
		{"zero session window", func(c *Config) { c.SessionTimeoutSeconds = 0 }, "session timeout must be positive"},
		{"negative retention", func(c *Config) { c.RetentionDays = -1 }, "retention days cannot be negative"},
		{"relative prefix", func(c *Config) { c.APIPrefix = "api" }, "api prefix must start with '/'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConnectionPoolSizing(t *testing.T) {
	c := &Config{Environment: Production}
	assert.Equal(t, 10, c.GetMaxOpenConns())
	assert.Equal(t, 5, c.GetMaxIdleConns())

	c.DatabaseMaxOpenConns = 3
	c.DatabaseMaxIdleConns = 2
	assert.Equal(t, 3, c.GetMaxOpenConns())
	assert.Equal(t, 2, c.GetMaxIdleConns())
}

func TestOptionsAreUnique(t *testing.T) {
	keys := map[string]bool{}
	envs := map[string]bool{}
	for _, opt := range options {
		assert.False(t, keys[opt.key], "duplicate key %s", opt.key)
		assert.False(t, envs[opt.env], "duplicate env %s", opt.env)
		assert.True(t, strings.HasPrefix(opt.env, "HAYZEDD_"), opt.env)
		keys[opt.key] = true
		envs[opt.env] = true
	}
}
