// Package connector implements domain.Connector for the supported chat
// platforms. Connectors are dumb pipes: they publish every message they see
// and leave eligibility decisions to the filter.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gembot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// Typing indicators expire server-side after roughly ten seconds.
const discordTypingInterval = 8 * time.Second

// Discord implements domain.Connector for Discord.
type Discord struct {
	token    string
	guildID  string
	presence string
	session  *discordgo.Session
	logger   *slog.Logger

	mu     sync.RWMutex
	selfID string
}

// DiscordConfig configures the Discord connector.
type DiscordConfig struct {
	Token    string
	GuildID  string
	Presence string
	Logger   *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:    cfg.Token,
		guildID:  cfg.GuildID,
		presence: cfg.Presence,
		logger:   cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Self() domain.Self {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return domain.Self{
		ID: d.selfID,
		MentionTokens: []string{
			"<@!" + d.selfID + ">",
			"<@" + d.selfID + ">",
		},
	}
}

// Start connects to Discord using a bot token and begins listening. It blocks
// until ctx is cancelled.
func (d *Discord) Start(ctx context.Context, bus domain.EventBus) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	d.session = session

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.mu.Lock()
		d.selfID = r.User.ID
		d.mu.Unlock()

		d.logger.Info("discord bot connected", "user", r.User.Username, "id", r.User.ID)
		if d.presence != "" {
			if err := s.UpdateGameStatus(0, d.presence); err != nil {
				d.logger.Warn("discord presence update failed", "err", err)
			}
		}
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// If guildID is set, filter guild messages. DMs always pass.
		if d.guildID != "" && m.GuildID != "" && m.GuildID != d.guildID {
			return
		}

		mentionsSelf := false
		for _, u := range m.Mentions {
			if u.ID == s.State.User.ID {
				mentionsSelf = true
				break
			}
		}

		d.logger.Debug("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
		)

		bus.Publish(domain.InboundEvent{
			Channel:      "discord",
			ChatID:       m.ChannelID,
			AuthorID:     m.Author.ID,
			Content:      m.Content,
			IsDirect:     m.GuildID == "",
			MentionsSelf: mentionsSelf,
			Timestamp:    time.Now(),
		})
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect (check the bot token and that the Message Content intent is enabled at https://discord.com/developers/applications): %w", err)
	}

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) Send(ctx context.Context, chatID, text string) error {
	_, err := d.session.ChannelMessageSend(chatID, text, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil &&
			restErr.Message.Code == discordgo.ErrCodeMissingPermissions {
			return fmt.Errorf("discord channel %s: %w", chatID, domain.ErrSendPermission)
		}
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Typing keeps the typing indicator alive until the returned stop func is
// called.
func (d *Discord) Typing(chatID string) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(discordTypingInterval)
		defer ticker.Stop()
		for {
			if err := d.session.ChannelTyping(chatID); err != nil {
				d.logger.Debug("discord typing failed", "channel", chatID, "err", err)
			}
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (d *Discord) Mention(userID string) string {
	return "<@" + userID + ">"
}

func (d *Discord) SetPresence(activity string) error {
	if d.session == nil {
		return fmt.Errorf("discord session not started")
	}
	return d.session.UpdateGameStatus(0, activity)
}
