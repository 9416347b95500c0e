package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "auction-tracker/internal/errors"
)

func TestLoad_CreatesTemplateAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, filepath.Join(dir, "auctions.db"), cfg.Store.Path)
	assert.Equal(t, time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, 50, cfg.Sweep.BatchSize)
	assert.Equal(t, 1, cfg.Sweep.DispatchAttempts)
	assert.Equal(t, time.Minute, cfg.Poller.Interval)
	assert.True(t, cfg.Notifications.Outbox.Enabled)
	assert.Equal(t, 587, cfg.Notifications.Email.SMTPPort)
	assert.Equal(t, 5, cfg.Notifications.Breaker.FailureThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Notifications.Breaker.Cooldown)
}

func TestLoad_ReadsFileValues(t *testing.T) {
	dir := t.TempDir()
	content := `
[sweep]
interval = "30s"
batch_size = 10

[notifications]
results_base_url = "https://auctions.example.com"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, 10, cfg.Sweep.BatchSize)
	assert.Equal(t, 10, cfg.Sweep.Concurrency)
	assert.Equal(t, "https://auctions.example.com", cfg.Notifications.ResultsBaseURL)
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[sweep]\nbatch_size = 0\n"), 0644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "sweep.batch_size")
}

func TestLoad_DotEnvAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUCTION_SMTP_PASSWORD=from-dotenv\n"), 0600))
	t.Setenv("AUCTION_SMTP_PASSWORD", "")
	os.Unsetenv("AUCTION_SMTP_PASSWORD")
	t.Setenv("AUCTION_DB_PATH", "/tmp/override.db")
	t.Setenv("AUCTION_SMTP_PORT", "465")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Store.Path)
	assert.Equal(t, 465, cfg.Notifications.Email.SMTPPort)
	assert.Equal(t, "from-dotenv", cfg.Notifications.Email.Password)
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return Default(t.TempDir()) }

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Sweep.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Sweep.DispatchAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Notifications.Email.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Notifications.Webhook.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Notifications.Breaker.Cooldown = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Notifications.Breaker = BreakerConfig{}
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}
