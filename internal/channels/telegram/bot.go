// Package telegram delivers reminders to a Telegram chat and answers simple
// status commands.
package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/gmsas95/meditrack/internal/notify"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot represents a Telegram bot integration
type Bot struct {
	api     *tgbotapi.BotAPI
	queries notify.Queries
	chatID  int64
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config holds Telegram bot configuration
type Config struct {
	Token  string
	ChatID int64 // Chat that receives reminders; only it may run commands
	// Endpoint overrides the Bot API URL format, e.g. for a local test server.
	Endpoint string
}

// NewBot creates a new Telegram bot
func NewBot(cfg Config, queries notify.Queries, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false

	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		api:     api,
		queries: queries,
		chatID:  cfg.ChatID,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (b *Bot) Name() string { return "telegram" }

// Notify sends a reminder to the configured chat.
func (b *Bot) Notify(ctx context.Context, msg notify.Message) error {
	if b.chatID == 0 {
		return fmt.Errorf("telegram chat id is not configured")
	}
	_, err := b.sendMessage(b.chatID, msg.Text())
	return err
}

// Start starts polling for commands
func (b *Bot) Start() error {
	b.wg.Add(1)
	go b.run()
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() {
	b.cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.handleUpdate(update); err != nil {
				b.logger.Error("Failed to handle update", zap.Error(err))
			}
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	msg := update.Message
	if b.chatID != 0 && msg.Chat.ID != b.chatID {
		_, err := b.sendMessage(msg.Chat.ID, "⛔ This bot only answers its owner's chat.")
		return err
	}

	reply, ok := notify.Answer(b.queries, msg.Command())
	if !ok {
		reply = "❓ Unknown command. Use /help for available commands."
	}
	_, err := b.sendMessage(msg.Chat.ID, reply)
	return err
}

func (b *Bot) sendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := b.api.Send(msg)
	if err != nil {
		// Try without markdown if it fails
		msg.ParseMode = ""
		sent, err = b.api.Send(msg)
		if err != nil {
			return 0, err
		}
	}

	return sent.MessageID, nil
}
