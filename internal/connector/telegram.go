package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"gembot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram chat actions expire server-side after five seconds.
const telegramTypingInterval = 4 * time.Second

// Telegram implements domain.Connector for Telegram bots via long polling.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed user IDs (empty = allow all)

	bot    *tgbotapi.BotAPI
	logger *slog.Logger

	mu       sync.RWMutex
	username string
	selfID   int64
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Self() domain.Self {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return domain.Self{
		ID:            strconv.FormatInt(t.selfID, 10),
		MentionTokens: []string{"@" + t.username},
	}
}

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.EventBus) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot

	t.mu.Lock()
	t.username = bot.Self.UserName
	t.selfID = bot.Self.ID
	t.mu.Unlock()

	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram connector stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update, bus)
		}
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update, bus domain.EventBus) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		return
	}

	text := update.Message.Text
	if text == "" {
		return
	}

	t.logger.Debug("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	t.mu.RLock()
	mention := "@" + t.username
	t.mu.RUnlock()

	bus.Publish(domain.InboundEvent{
		Channel:      "telegram",
		ChatID:       strconv.FormatInt(chatID, 10),
		AuthorID:     strconv.FormatInt(userID, 10),
		Content:      text,
		IsDirect:     update.Message.Chat.IsPrivate(),
		MentionsSelf: strings.Contains(text, mention),
		Timestamp:    time.Unix(int64(update.Message.Date), 0),
	})
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
		// The bot was blocked or kicked from the chat.
		if strings.Contains(err.Error(), "Forbidden") {
			return fmt.Errorf("telegram chat %s: %w", chatID, domain.ErrSendPermission)
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Telegram) Typing(chatID string) func() {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(telegramTypingInterval)
		defer ticker.Stop()
		for {
			if _, err := t.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping)); err != nil {
				t.logger.Debug("telegram typing failed", "chat", chatID, "err", err)
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

// Mention returns a plain-text form of address. Telegram user mentions need
// entity markup, which the bot does not use.
func (t *Telegram) Mention(userID string) string {
	return "there"
}

// SetPresence is a no-op. Telegram bots have no presence concept.
func (t *Telegram) SetPresence(activity string) error {
	return nil
}
