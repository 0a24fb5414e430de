package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	v "github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) {
	t.Helper()
	v.Reset()
	bindEnvs()
	setDefaults()
}

func TestDefaults(t *testing.T) {
	reset(t)
	require.NoError(t, validate())

	c := Load()
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, int64(500<<20), c.DefaultQuota)
	assert.Equal(t, int64(25<<20), c.MaxUploadSize)
	assert.Equal(t, 3, c.FetchMaxRedirects)
	assert.Equal(t, 30*time.Second, c.FetchTimeout)
	assert.Equal(t, 7*24*time.Hour, c.TokenTTL)
	assert.Equal(t, filepath.Join("./data", ".secret"), c.SecretFile)
	assert.False(t, c.Production)
	assert.False(t, c.Mirror.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	reset(t)
	t.Setenv("HOST_PORT", "9090")
	t.Setenv("AUTH_ADMIN_USERS", "alice, bob")
	t.Setenv("APP_ENV", "production")
	t.Setenv("BANANA_SECRET", "s3cret")

	require.NoError(t, validate())

	c := Load()
	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, []string{"alice", "bob"}, c.AdminUsers)
	assert.True(t, c.Production)
	assert.Equal(t, "s3cret", c.Secret)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(){
		"log level":     func() { v.Set("app.log_level", "loud") },
		"env":           func() { v.Set("app.env", "staging") },
		"port":          func() { v.Set("host.port", 0) },
		"ssl cert":      func() { v.Set("host.ssl.enabled", true) },
		"quota":         func() { v.Set("quota.default_bytes", 0) },
		"redirects":     func() { v.Set("fetch.max_redirects", -1) },
		"mirror bucket": func() { v.Set("mirror.enabled", true) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			reset(t)
			mutate()
			assert.Error(t, validate())
		})
	}
}

func TestSetupReadsConfigFile(t *testing.T) {
	reset(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[quota]\ndefault_bytes = 1024\n"), 0o644))

	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	require.NoError(t, v.ReadInConfig())

	assert.Equal(t, int64(1024), Load().DefaultQuota)
}
