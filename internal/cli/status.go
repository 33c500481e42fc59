package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gmsas95/meditrack/internal/config"
	"github.com/gmsas95/meditrack/internal/interactions"
	"github.com/gmsas95/meditrack/internal/store"
	"go.uber.org/zap"
)

func HandleStatusCommand(cfg *config.Config, out io.Writer) {
	fmt.Fprintln(out, "MediTrack Status")
	fmt.Fprintln(out, "================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Version: %s\n", Version)
	fmt.Fprintf(out, "Data:    %s\n", cfg.Storage.DataDir)
	fmt.Fprintf(out, "Storage: %s\n", cfg.Storage.Backend)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Server Configuration:")
	fmt.Fprintf(out, "  Address: %s\n", cfg.ListenAddr())
	fmt.Fprintf(out, "  URL: http://localhost:%d\n", cfg.Server.Port)
	fmt.Fprintf(out, "  Auth: %s\n", channelStatus(cfg.Security.AdminPassword != ""))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tracker:")
	fmt.Fprintf(out, "  Adherence window: %d days\n", cfg.Tracker.AdherenceWindowDays)
	fmt.Fprintf(out, "  Timezone: %s\n", cfg.Location())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Reminder channels:")
	fmt.Fprintf(out, "  Telegram: %s\n", channelStatus(cfg.Notifications.Telegram.Enabled))
	if cfg.Notifications.Telegram.Enabled {
		fmt.Fprintf(out, "    Bot Token: %s\n", maskToken(cfg.Notifications.Telegram.BotToken))
		fmt.Fprintf(out, "    Chat ID: %d\n", cfg.Notifications.Telegram.ChatID)
	}
	fmt.Fprintf(out, "  Discord:  %s\n", channelStatus(cfg.Notifications.Discord.Enabled))
	if cfg.Notifications.Discord.Enabled {
		fmt.Fprintf(out, "    Token: %s\n", maskToken(cfg.Notifications.Discord.Token))
		fmt.Fprintf(out, "    Channel: %s\n", cfg.Notifications.Discord.ChannelID)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run 'meditrack doctor' for diagnostics")
}

// HandleDoctorCommand checks the data directory, the storage backend and
// the interaction knowledge base. It returns the number of issues found.
func HandleDoctorCommand(ctx context.Context, cfg *config.Config, out io.Writer) int {
	fmt.Fprintln(out, "MediTrack Diagnostics")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	issues := 0

	if _, err := os.Stat(cfg.Storage.DataDir); os.IsNotExist(err) {
		fmt.Fprintln(out, "⚠️  Data Directory: Does not exist yet (created on first save)")
	} else {
		fmt.Fprintln(out, "✅ Data Directory: Exists")
	}

	if cfg.Storage.Backend == "memory" {
		fmt.Fprintln(out, "⚠️  Storage: memory backend, nothing survives a restart")
	} else if p, err := store.Open(cfg.Storage); err != nil {
		fmt.Fprintf(out, "❌ Storage: %v\n", err)
		issues++
	} else {
		if _, err := p.Load(ctx); err != nil {
			fmt.Fprintf(out, "❌ Storage: %v\n", err)
			issues++
		} else {
			fmt.Fprintf(out, "✅ Storage: %s readable\n", cfg.Storage.Backend)
		}
		p.Close()
	}

	switch {
	case cfg.Interactions.RemoteURL != "":
		src := interactions.NewHTTPSource(cfg.Interactions.RemoteURL, time.Duration(cfg.Interactions.Timeout)*time.Second, zap.NewNop())
		issues += checkKnowledgeBase(ctx, out, src, cfg.Interactions.RemoteURL)
	case cfg.Interactions.KnowledgeBasePath != "":
		src := interactions.NewFileSource(cfg.Interactions.KnowledgeBasePath, zap.NewNop())
		issues += checkKnowledgeBase(ctx, out, src, cfg.Interactions.KnowledgeBasePath)
	default:
		fmt.Fprintf(out, "✅ Knowledge Base: built-in (%d medications)\n", interactions.Default().Len())
	}

	if cfg.Security.AdminPassword == "" && cfg.Server.Address != "127.0.0.1" && cfg.Server.Address != "localhost" {
		fmt.Fprintln(out, "⚠️  API: listening beyond localhost without an admin password")
		issues++
	}

	fmt.Fprintln(out)
	if issues == 0 {
		fmt.Fprintln(out, "✅ All checks passed!")
	} else {
		fmt.Fprintf(out, "⚠️  Found %d issue(s).\n", issues)
	}
	return issues
}

func checkKnowledgeBase(ctx context.Context, out io.Writer, src interactions.Source, where string) int {
	kb, err := src.Load(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ Knowledge Base: %s: %v\n", where, err)
		return 1
	}
	fmt.Fprintf(out, "✅ Knowledge Base: %s (%d medications)\n", where, kb.Len())
	return 0
}

func channelStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func PrintExtendedHelp(out io.Writer) {
	fmt.Fprintln(out, `MediTrack - medication schedules, reminders and adherence

USAGE:
    meditrack <command> [flags]

TRACKER COMMANDS:
    add           Add a medication
                  --name, --dosage, --times 08:00,20:00 [--start] [--end] [--notes] [--no-remind]
    list, ls      List medications
    delete, rm    Delete a medication by id or name
    take          Mark a dose taken: take <id|name> [HH:MM]
    today         Show today's pending doses
    adherence     Show the rolling adherence rate [--window N]
    streak        Show the current streak
    history       Show taken/scheduled per day [--days N]
    interactions  Check for known interactions [--all]
    report        Print a full markdown report
    notifications List notifications, or: notifications clear <id>

SERVER COMMANDS:
    init          Interactive setup, writes meditrack.yaml
    serve         Run the API server, reminder scheduler and bots
    status        Show configuration
    doctor        Run diagnostics
    version       Show version

GLOBAL FLAGS:
    --config <path>   Config file (default: <data dir>/meditrack.yaml)
    --data <dir>      Data directory
    --no-color        Disable colored output

ENVIRONMENT:
    MEDITRACK_*       Overrides any config key, e.g. MEDITRACK_SERVER_PORT=9000
    TELEGRAM_BOT_TOKEN, DISCORD_BOT_TOKEN`)
}
