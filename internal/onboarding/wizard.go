// Package onboarding runs the interactive first-run setup.
package onboarding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file the wizard writes inside the data directory.
const ConfigFileName = "meditrack.yaml"

// Wizard handles the interactive setup process
type Wizard struct {
	reader  *bufio.Reader
	out     io.Writer
	logger  *zap.Logger
	dataDir string
	config  *WizardConfig
}

// WizardConfig holds the answers collected during setup
type WizardConfig struct {
	Backend        string
	Timezone       string
	Port           int
	AdminPassword  string
	EnableTelegram bool
	TelegramToken  string
	TelegramChatID int64
	EnableDiscord  bool
	DiscordToken   string
	DiscordChannel string
}

// fileConfig mirrors the keys config.Load reads.
type fileConfig struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Backend string `yaml:"backend"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`
	Tracker struct {
		AdherenceWindowDays int    `yaml:"adherence_window_days"`
		HistoryDays         int    `yaml:"history_days"`
		Timezone            string `yaml:"timezone,omitempty"`
	} `yaml:"tracker"`
	Notifications struct {
		Telegram struct {
			Enabled bool  `yaml:"enabled"`
			ChatID  int64 `yaml:"chat_id,omitempty"`
		} `yaml:"telegram"`
		Discord struct {
			Enabled   bool   `yaml:"enabled"`
			ChannelID string `yaml:"channel_id,omitempty"`
		} `yaml:"discord"`
	} `yaml:"notifications"`
}

// NewWizard creates a setup wizard that writes into dataDir.
func NewWizard(in io.Reader, out io.Writer, dataDir string, logger *zap.Logger) *Wizard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wizard{
		reader:  bufio.NewReader(in),
		out:     out,
		logger:  logger,
		dataDir: dataDir,
		config:  &WizardConfig{},
	}
}

// Config returns the answers collected so far.
func (w *Wizard) Config() WizardConfig {
	return *w.config
}

// Run runs the interactive setup wizard
func (w *Wizard) Run() error {
	fmt.Fprint(w.out, SetupWizardWelcome)

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := w.setupStorage(); err != nil {
		return fmt.Errorf("storage setup failed: %w", err)
	}
	if err := w.setupServer(); err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := w.setupIntegrations(); err != nil {
		return fmt.Errorf("integrations setup failed: %w", err)
	}

	configPath, envPath, err := w.createConfiguration()
	if err != nil {
		return fmt.Errorf("configuration creation failed: %w", err)
	}

	w.showCompletion(configPath, envPath)
	return nil
}

func (w *Wizard) setupStorage() error {
	w.step("Step 1: Storage")

	for {
		backend := w.ask("Storage backend (badger, sqlite, memory)", "badger")
		switch backend {
		case "badger", "sqlite", "memory":
			w.config.Backend = backend
		default:
			fmt.Fprintf(w.out, "Unknown backend %q.\n", backend)
			continue
		}
		break
	}

	for {
		tz := w.ask("Timezone (IANA name, empty for system local)", "")
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				fmt.Fprintf(w.out, "Unknown timezone %q.\n", tz)
				continue
			}
		}
		w.config.Timezone = tz
		break
	}
	return nil
}

func (w *Wizard) setupServer() error {
	w.step("Step 2: HTTP API")

	for {
		raw := w.ask("Port", "8787")
		port, err := parseInt(raw)
		if err != nil || port <= 0 || port > 65535 {
			fmt.Fprintf(w.out, "Invalid port %q.\n", raw)
			continue
		}
		w.config.Port = port
		break
	}

	w.config.AdminPassword = w.ask("Admin password (empty leaves the API open on localhost)", "")
	return nil
}

func (w *Wizard) setupIntegrations() error {
	w.step("Step 3: Reminder channels")

	if w.confirm("Enable Telegram reminders?") {
		w.config.EnableTelegram = true
		fmt.Fprintln(w.out, "Message @BotFather on Telegram, create a bot with /newbot and copy the token.")
		w.config.TelegramToken = w.ask("Telegram bot token", "")
		if id, err := parseInt64(w.ask("Telegram chat ID", "0")); err == nil {
			w.config.TelegramChatID = id
		}
		if w.config.TelegramToken == "" {
			fmt.Fprintln(w.out, "No token given, Telegram stays disabled.")
			w.config.EnableTelegram = false
		}
	}

	if w.confirm("Enable Discord reminders?") {
		w.config.EnableDiscord = true
		w.config.DiscordToken = w.ask("Discord bot token", "")
		w.config.DiscordChannel = w.ask("Discord channel ID", "")
		if w.config.DiscordToken == "" || w.config.DiscordChannel == "" {
			fmt.Fprintln(w.out, "Token and channel are both required, Discord stays disabled.")
			w.config.EnableDiscord = false
		}
	}

	fmt.Fprintln(w.out, "✓ Channels configured")
	return nil
}

// createConfiguration writes meditrack.yaml and, when there are secrets, a
// .env file beside it.
func (w *Wizard) createConfiguration() (string, string, error) {
	var fc fileConfig
	fc.Server.Address = "127.0.0.1"
	fc.Server.Port = w.config.Port
	fc.Storage.Backend = w.config.Backend
	fc.Storage.DataDir = w.dataDir
	fc.Tracker.AdherenceWindowDays = 7
	fc.Tracker.HistoryDays = 7
	fc.Tracker.Timezone = w.config.Timezone
	fc.Notifications.Telegram.Enabled = w.config.EnableTelegram
	fc.Notifications.Telegram.ChatID = w.config.TelegramChatID
	fc.Notifications.Discord.Enabled = w.config.EnableDiscord
	fc.Notifications.Discord.ChannelID = w.config.DiscordChannel

	body, err := yaml.Marshal(&fc)
	if err != nil {
		return "", "", err
	}
	header := fmt.Sprintf("# MediTrack Configuration\n# Generated on %s\n\n", time.Now().Format("2006-01-02"))

	configPath := filepath.Join(w.dataDir, ConfigFileName)
	if err := os.WriteFile(configPath, append([]byte(header), body...), 0600); err != nil {
		return "", "", fmt.Errorf("failed to write config: %w", err)
	}

	secrets := map[string]string{}
	if w.config.EnableTelegram {
		secrets["TELEGRAM_BOT_TOKEN"] = w.config.TelegramToken
	}
	if w.config.EnableDiscord {
		secrets["DISCORD_BOT_TOKEN"] = w.config.DiscordToken
	}
	if w.config.AdminPassword != "" {
		secrets["MEDITRACK_SECURITY_ADMIN_PASSWORD"] = w.config.AdminPassword
	}
	if len(secrets) == 0 {
		return configPath, "", nil
	}

	envPath := filepath.Join(w.dataDir, ".env")
	if err := godotenv.Write(secrets, envPath); err != nil {
		return "", "", fmt.Errorf("failed to write env file: %w", err)
	}
	if err := os.Chmod(envPath, 0600); err != nil {
		return "", "", err
	}

	w.logger.Debug("Wrote configuration", zap.String("config", configPath), zap.String("env", envPath))
	return configPath, envPath, nil
}

func (w *Wizard) showCompletion(configPath, envPath string) {
	envLine := ""
	if envPath != "" {
		envLine = fmt.Sprintf("\nSecrets file:\n  %s\n", envPath)
	}
	message := SetupCompleteMessage
	message = strings.ReplaceAll(message, "{{.ConfigPath}}", configPath)
	message = strings.ReplaceAll(message, "{{.EnvLine}}", envLine)
	fmt.Fprint(w.out, message)
}

func (w *Wizard) step(title string) {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, title)
	fmt.Fprintln(w.out, strings.Repeat("─", len(title)))
}

func (w *Wizard) ask(prompt, def string) string {
	if def != "" {
		fmt.Fprintf(w.out, "%s [default: %s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	line, _ := w.reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func (w *Wizard) confirm(prompt string) bool {
	answer := strings.ToLower(w.ask(prompt+" (y/n)", "n"))
	return answer == "y" || answer == "yes"
}

func parseInt(s string) (int, error) {
	var result int
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}

func parseInt64(s string) (int64, error) {
	var result int64
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}

// CheckFirstRun reports whether dataDir has no config file yet.
func CheckFirstRun(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, ConfigFileName))
	return os.IsNotExist(err)
}
