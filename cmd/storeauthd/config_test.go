package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	registerServeFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadServeConfigDefaults(t *testing.T) {
	cfg, err := loadServeConfig("", newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "log", cfg.Mail.Mailer)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.False(t, cfg.production())
}

func TestLoadServeConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storeauthd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
http:
  addr: ":9090"
store:
  backend: postgres
auth:
  access_ttl: 5m
  min_password_length: 8
mail:
  mailer: smtp
  smtp_host: smtp.example.com
`), 0o600))

	cfg, err := loadServeConfig(path, newFlags(t, "--http.addr=:7070"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr, "flag overrides file")
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 8, cfg.Auth.MinPasswordLength)
	assert.Equal(t, "smtp.example.com", cfg.Mail.SMTPHost)
	assert.Equal(t, 587, cfg.Mail.SMTPPort, "unset keys keep defaults")
	assert.True(t, cfg.production())
}

func TestLoadServeConfigRejectsUnknownBackend(t *testing.T) {
	_, err := loadServeConfig("", newFlags(t, "--store.backend=mongo"))
	require.Error(t, err)

	_, err = loadServeConfig("", newFlags(t, "--mail.mailer=carrier-pigeon"))
	require.Error(t, err)

	_, err = loadServeConfig(filepath.Join(t.TempDir(), "missing.yaml"), newFlags(t))
	require.Error(t, err)
}

func TestSecretsFromEnvironment(t *testing.T) {
	t.Setenv("STOREAUTH_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("STOREAUTH_REFRESH_SECRET", strings.Repeat("r", 32))
	t.Setenv("STOREAUTH_SMTP_PASSWORD", "hunter2")

	sec, err := loadSecrets()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", sec.SMTPPassword)

	cfg, err := loadServeConfig("", newFlags(t, "--env=production", "--auth.cookie_domain=shop.example"))
	require.NoError(t, err)

	engineCfg := cfg.engineConfig(sec)
	require.NoError(t, engineCfg.Validate())
	assert.True(t, engineCfg.Cookie.Secure)
	assert.Equal(t, "shop.example", engineCfg.Cookie.Domain)
}

func TestSecretsKeyRotation(t *testing.T) {
	t.Setenv("STOREAUTH_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("STOREAUTH_REFRESH_SECRET", strings.Repeat("r", 32))
	t.Setenv("STOREAUTH_ACCESS_KEY_ID", "2026-10")
	t.Setenv("STOREAUTH_ACCESS_PREVIOUS_SECRETS", "2026-09:"+strings.Repeat("o", 32))

	sec, err := loadSecrets()
	require.NoError(t, err)

	cfg, err := loadServeConfig("", newFlags(t))
	require.NoError(t, err)

	engineCfg := cfg.engineConfig(sec)
	require.NoError(t, engineCfg.Validate())
	assert.Equal(t, "2026-10", engineCfg.JWT.AccessKeyID)
	assert.Equal(t, []byte(strings.Repeat("a", 32)), engineCfg.JWT.AccessVerifyKeys["2026-10"])
	assert.Equal(t, []byte(strings.Repeat("o", 32)), engineCfg.JWT.AccessVerifyKeys["2026-09"])
	assert.Nil(t, engineCfg.JWT.RefreshVerifyKeys)
}

func TestSecretsRequired(t *testing.T) {
	t.Setenv("STOREAUTH_ACCESS_SECRET", "")
	t.Setenv("STOREAUTH_REFRESH_SECRET", "")
	os.Unsetenv("STOREAUTH_ACCESS_SECRET")
	os.Unsetenv("STOREAUTH_REFRESH_SECRET")

	_, err := loadSecrets()
	require.Error(t, err)
}

func TestLoadtestCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"loadtest", "--accounts=2", "--sessions=4", "--concurrency=2", "--ops=20"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "authorize: ops=20 failures=0")
	assert.Contains(t, out.String(), "refresh: ops=20 failures=0")
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Zero(t, percentile(nil, 50))
}
