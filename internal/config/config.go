package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/health"
	"github.com/spf13/viper"
)

// Config holds all configuration for MediTrack
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Tracker       TrackerConfig       `mapstructure:"tracker"`
	Interactions  InteractionsConfig  `mapstructure:"interactions"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Security      SecurityConfig      `mapstructure:"security"`
	Log           LogConfig           `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	RateLimit    int    `mapstructure:"rate_limit"`
	RateBurst    int    `mapstructure:"rate_burst"`
}

// StorageConfig selects the snapshot backend
type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // badger, sqlite, memory
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// TrackerConfig holds adherence settings
type TrackerConfig struct {
	AdherenceWindowDays int    `mapstructure:"adherence_window_days"`
	HistoryDays         int    `mapstructure:"history_days"`
	Timezone            string `mapstructure:"timezone"`
}

// InteractionsConfig points at an optional external knowledge base
type InteractionsConfig struct {
	KnowledgeBasePath string `mapstructure:"knowledge_base_path"`
	RemoteURL         string `mapstructure:"remote_url"`
	Watch             bool   `mapstructure:"watch"`
	Timeout           int    `mapstructure:"timeout"`
}

// NotificationsConfig holds reminder delivery channels
type NotificationsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

// SecurityConfig holds API security settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
}

// Load loads configuration from defaults, an optional YAML file and
// MEDITRACK_* environment variables, in increasing precedence.
func Load(configPath, dataDir string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	dataDir = ResolveDataDir(dataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	// Secrets written by "meditrack init" live beside the config file.
	if err := loadEnvFile(filepath.Join(dataDir, ".env")); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "meditrack.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "meditrack.yaml")
	}
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// MEDITRACK_SERVER_PORT, MEDITRACK_STORAGE_BACKEND, ...
	v.SetEnvPrefix("MEDITRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyAliases(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("storage.backend", "badger")

	v.SetDefault("tracker.adherence_window_days", 7)
	v.SetDefault("tracker.history_days", 7)

	v.SetDefault("interactions.watch", true)
	v.SetDefault("interactions.timeout", 10)

	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dev", false)

	// Registered so AutomaticEnv can see them during Unmarshal.
	for _, key := range []string{
		"tracker.timezone",
		"interactions.knowledge_base_path",
		"interactions.remote_url",
		"notifications.telegram.bot_token",
		"notifications.discord.token",
		"notifications.discord.channel_id",
		"security.jwt_secret",
		"security.admin_password",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.telegram.chat_id", 0)
	v.SetDefault("notifications.discord.enabled", false)
}

// ResolveDataDir returns dataDir, else $MEDITRACK_STORAGE_DATA_DIR, else the
// per-user default.
func ResolveDataDir(dataDir string) string {
	if dataDir == "" {
		dataDir = os.Getenv("MEDITRACK_STORAGE_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	return dataDir
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "meditrack")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "meditrack")
}

// applyAliases fills secrets from the conventional unprefixed names when the
// prefixed ones are unset.
func applyAliases(cfg *Config) {
	if cfg.Notifications.Telegram.BotToken == "" {
		cfg.Notifications.Telegram.BotToken = ResolveEnvWithAliases("MEDITRACK_NOTIFICATIONS_TELEGRAM_BOT_TOKEN")
	}
	if cfg.Notifications.Discord.Token == "" {
		cfg.Notifications.Discord.Token = ResolveEnvWithAliases("MEDITRACK_NOTIFICATIONS_DISCORD_TOKEN")
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = ResolveEnvWithAliases("MEDITRACK_SECURITY_JWT_SECRET")
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "badger", "sqlite", "memory":
	default:
		return apperrors.New(apperrors.CodeConfigInvalid,
			fmt.Sprintf("storage.backend must be badger, sqlite or memory, got %q", cfg.Storage.Backend))
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return apperrors.New(apperrors.CodeConfigInvalid, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}

	if err := health.ValidateRange("tracker.adherence_window_days", cfg.Tracker.AdherenceWindowDays); err != nil {
		return apperrors.New(apperrors.CodeConfigInvalid, err.Error())
	}
	if err := health.ValidateRange("tracker.history_days", cfg.Tracker.HistoryDays); err != nil {
		return apperrors.New(apperrors.CodeConfigInvalid, err.Error())
	}
	if cfg.Tracker.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Tracker.Timezone); err != nil {
			return apperrors.New(apperrors.CodeConfigInvalid, "tracker.timezone is not a known location", err)
		}
	}

	if cfg.Notifications.Telegram.Enabled && cfg.Notifications.Telegram.BotToken == "" {
		return apperrors.New(apperrors.CodeConfigInvalid, "notifications.telegram.bot_token is required when telegram is enabled")
	}
	if cfg.Notifications.Discord.Enabled && (cfg.Notifications.Discord.Token == "" || cfg.Notifications.Discord.ChannelID == "") {
		return apperrors.New(apperrors.CodeConfigInvalid, "notifications.discord.token and channel_id are required when discord is enabled")
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateSecret(32)
	}

	return nil
}

func generateSecret(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(b)
}

// Location returns the configured tracker timezone, or the local zone.
func (c *Config) Location() *time.Location {
	if c.Tracker.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Tracker.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
