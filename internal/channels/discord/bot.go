// Package discord delivers reminders to a Discord channel
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gmsas95/meditrack/internal/notify"
	"go.uber.org/zap"
)

// Discord rejects messages longer than this.
const maxMessageLen = 2000

// Config holds Discord bot configuration
type Config struct {
	Token     string
	ChannelID string // Channel that receives reminders
	AllowDM   bool   // Answer commands in direct messages
}

type sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot represents a Discord bot instance
type Bot struct {
	session *discordgo.Session
	send    sender
	queries notify.Queries
	config  Config
	logger  *zap.Logger
}

// NewBot creates a new Discord bot
func NewBot(cfg Config, queries notify.Queries, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session: session,
		send:    session,
		queries: queries,
		config:  cfg,
		logger:  logger,
	}

	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.ready)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return bot, nil
}

func (b *Bot) Name() string { return "discord" }

// Notify posts a reminder to the configured channel.
func (b *Bot) Notify(ctx context.Context, msg notify.Message) error {
	for _, part := range splitMessage(msg.Text(), maxMessageLen) {
		if _, err := b.send.ChannelMessageSend(b.config.ChannelID, part); err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
	}
	return nil
}

// Start opens the gateway connection
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	b.logger.Info("Discord bot started",
		zap.String("username", b.session.State.User.Username),
	)

	return nil
}

// Stop stops the Discord bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) ready(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("Discord bot ready",
		zap.String("username", s.State.User.Username),
		zap.Int("guilds", len(event.Guilds)),
	)
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	reply, ok := b.reply(m.GuildID == "", m.ChannelID, m.Content)
	if !ok {
		return
	}
	if _, err := b.send.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.logger.Error("Failed to answer command", zap.Error(err))
	}
}

// reply answers "!today", "!streak" and friends in the reminder channel, and
// in DMs when allowed.
func (b *Bot) reply(isDM bool, channelID, content string) (string, bool) {
	if isDM && !b.config.AllowDM {
		return "", false
	}
	if !isDM && channelID != b.config.ChannelID {
		return "", false
	}

	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "!") {
		return "", false
	}
	return notify.Answer(b.queries, content)
}

// splitMessage splits a message into chunks under max length
func splitMessage(text string, maxLen int) []string {
	var parts []string
	lines := strings.Split(text, "\n")
	var current strings.Builder

	for _, line := range lines {
		if current.Len()+len(line)+1 > maxLen {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
