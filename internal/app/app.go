package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmsas95/meditrack/internal/api"
	"github.com/gmsas95/meditrack/internal/channels/discord"
	"github.com/gmsas95/meditrack/internal/channels/telegram"
	"github.com/gmsas95/meditrack/internal/config"
	"github.com/gmsas95/meditrack/internal/cron"
	"github.com/gmsas95/meditrack/internal/interactions"
	"github.com/gmsas95/meditrack/internal/metrics"
	"github.com/gmsas95/meditrack/internal/notify"
	"github.com/gmsas95/meditrack/internal/store"
	"github.com/gmsas95/meditrack/internal/tracker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Persister   store.Persister
	Tracker     *tracker.Tracker
	Resolver    *interactions.Resolver
	TelegramBot *telegram.Bot
	DiscordBot  *discord.Bot
	CronRunner  *cron.Runner
	Version     string
}

// NewLogger builds the process logger. Production logs are JSON on stderr,
// which keeps stdout clean for the MCP stdio transport.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Dev {
		return zap.NewDevelopment()
	}

	zc := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// New opens storage, loads the knowledge base and restores the tracker.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, version string) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.Default(),
		Resolver: interactions.NewResolver(nil),
		Version:  version,
	}

	if err := app.LoadKnowledgeBase(ctx); err != nil {
		// The built-in table stays in place.
		logger.Warn("Failed to load knowledge base, using built-in table", zap.Error(err))
	}

	p, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	app.Persister = p

	tr, err := tracker.New(ctx, p, tracker.Options{
		Location:            cfg.Location(),
		Logger:              logger,
		Metrics:             app.Metrics,
		Resolver:            app.Resolver,
		AdherenceWindowDays: cfg.Tracker.AdherenceWindowDays,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	app.Tracker = tr

	logger.Info("Tracker ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("medications", len(tr.ListMedications())),
		zap.String("timezone", cfg.Location().String()),
	)
	return app, nil
}

// knowledgeSource returns the configured external knowledge base, or nil
// for the built-in one.
func (app *App) knowledgeSource() interactions.Source {
	ic := app.Config.Interactions
	switch {
	case ic.RemoteURL != "":
		return interactions.NewHTTPSource(ic.RemoteURL, time.Duration(ic.Timeout)*time.Second, app.Logger)
	case ic.KnowledgeBasePath != "":
		return interactions.NewFileSource(ic.KnowledgeBasePath, app.Logger)
	}
	return nil
}

// LoadKnowledgeBase swaps in the external knowledge base if one is set.
func (app *App) LoadKnowledgeBase(ctx context.Context) error {
	src := app.knowledgeSource()
	if src == nil {
		return nil
	}

	kb, err := src.Load(ctx)
	if err != nil {
		return err
	}
	app.Resolver.SetKnowledgeBase(kb)
	app.Metrics.RecordKnowledgeReload()
	app.Logger.Info("Knowledge base loaded", zap.Int("medications", kb.Len()))
	return nil
}

// Notifiers returns the reminder channels: the log always, plus any bots
// that started.
func (app *App) Notifiers() []notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(app.Logger)}
	if app.TelegramBot != nil {
		notifiers = append(notifiers, app.TelegramBot)
	}
	if app.DiscordBot != nil {
		notifiers = append(notifiers, app.DiscordBot)
	}
	return notifiers
}

func (app *App) startBots() {
	nc := app.Config.Notifications

	if nc.Telegram.Enabled {
		bot, err := telegram.NewBot(telegram.Config{
			Token:  nc.Telegram.BotToken,
			ChatID: nc.Telegram.ChatID,
		}, app.Tracker, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Telegram bot", zap.Error(err))
		} else if err := bot.Start(); err != nil {
			app.Logger.Error("Failed to start Telegram bot", zap.Error(err))
		} else {
			app.TelegramBot = bot
			app.Logger.Info("Telegram bot started")
		}
	}

	if nc.Discord.Enabled {
		bot, err := discord.NewBot(discord.Config{
			Token:     nc.Discord.Token,
			ChannelID: nc.Discord.ChannelID,
			AllowDM:   true,
		}, app.Tracker, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Discord bot", zap.Error(err))
		} else if err := bot.Start(); err != nil {
			app.Logger.Error("Failed to start Discord bot", zap.Error(err))
		} else {
			app.DiscordBot = bot
			app.Logger.Info("Discord bot started")
		}
	}
}

// watchKnowledgeBase reloads a file knowledge base when it changes.
func (app *App) watchKnowledgeBase(ctx context.Context) {
	ic := app.Config.Interactions
	if !ic.Watch || ic.RemoteURL != "" || ic.KnowledgeBasePath == "" {
		return
	}

	src := interactions.NewFileSource(ic.KnowledgeBasePath, app.Logger)
	go func() {
		err := src.Watch(ctx, func(kb *interactions.KnowledgeBase) {
			app.Resolver.SetKnowledgeBase(kb)
			app.Metrics.RecordKnowledgeReload()
			app.Logger.Info("Knowledge base reloaded", zap.Int("medications", kb.Len()))
		})
		if err != nil {
			app.Logger.Error("Knowledge base watcher stopped", zap.Error(err))
		}
	}()
}

// RunServer starts the bots, the reminder scheduler and the API server, and
// blocks until SIGINT or SIGTERM.
func (app *App) RunServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.startBots()
	app.watchKnowledgeBase(ctx)

	app.CronRunner = cron.NewRunner(cron.Config{Location: app.Config.Location()},
		app.Tracker, app.Notifiers(), app.Metrics, app.Logger)
	if err := app.CronRunner.Start(); err != nil {
		app.Logger.Error("Failed to start cron runner", zap.Error(err))
	}

	server := api.New(app.Config, app.Tracker, app.Metrics, app.Logger)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.ListenAddr()),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("version", app.Version),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")
	cancel()

	if app.TelegramBot != nil {
		app.TelegramBot.Stop()
	}

	if app.DiscordBot != nil {
		if err := app.DiscordBot.Stop(); err != nil {
			app.Logger.Warn("Discord shutdown error", zap.Error(err))
		}
	}

	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := app.Close(); err != nil {
		app.Logger.Error("Storage close error", zap.Error(err))
	}
}

func (app *App) Close() error {
	if app.Persister == nil {
		return nil
	}
	return app.Persister.Close()
}
