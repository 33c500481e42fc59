package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDITRACK_STORAGE_BACKEND", "")
	t.Setenv("MEDITRACK_SERVER_PORT", "")

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, "badger"), cfg.Storage.BadgerPath)
	assert.Equal(t, filepath.Join(dir, "meditrack.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Tracker.AdherenceWindowDays)
	assert.NotEmpty(t, cfg.Security.JWTSecret)
	assert.Equal(t, "127.0.0.1:8787", cfg.ListenAddr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
storage:
  backend: sqlite
tracker:
  adherence_window_days: 30
  timezone: UTC
`), 0o644))

	t.Setenv("MEDITRACK_SERVER_PORT", "9100")
	t.Setenv("MEDITRACK_STORAGE_BACKEND", "")

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 30, cfg.Tracker.AdherenceWindowDays)
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDITRACK_STORAGE_BACKEND", "postgres")

	_, err := Load("", dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfigInvalid))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8787},
			Storage: StorageConfig{Backend: "memory"},
			Tracker: TrackerConfig{AdherenceWindowDays: 7, HistoryDays: 7},
		}
	}

	require.NoError(t, validate(base()))

	cfg := base()
	cfg.Tracker.Timezone = "Mars/Olympus"
	assert.True(t, errors.Is(validate(cfg), apperrors.ErrConfigInvalid))

	cfg = base()
	cfg.Notifications.Telegram.Enabled = true
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.Notifications.Discord = DiscordConfig{Enabled: true, Token: "t"}
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.Server.Port = 0
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.Tracker.AdherenceWindowDays = 367
	assert.True(t, errors.Is(validate(cfg), apperrors.ErrConfigInvalid))

	cfg = base()
	cfg.Tracker.HistoryDays = 0
	assert.True(t, errors.Is(validate(cfg), apperrors.ErrConfigInvalid))

	cfg = base()
	cfg.Tracker.HistoryDays = 366
	assert.NoError(t, validate(cfg))
}

func TestApplyAliases(t *testing.T) {
	t.Setenv("MEDITRACK_NOTIFICATIONS_TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")

	cfg := &Config{}
	applyAliases(cfg)
	assert.Equal(t, "tg-token", cfg.Notifications.Telegram.BotToken)
}
