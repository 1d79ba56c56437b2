package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const (
	updateTimeoutSeconds = 30

	// Telegram allows roughly 30 messages/second per bot overall; stay well
	// under it.
	sendRateLimit = 20
	sendRateBurst = 5

	// Per-turn processing budget. Covers embedding, vector search, two LLM
	// calls, and the memory write-back.
	turnTimeout = 2 * time.Minute
)

// Telegram drives a Bot over Telegram long polling. Each update is handled
// in its own goroutine; the bot's per-chat locks serialize turns within a
// chat.
type Telegram struct {
	api     *tgbotapi.BotAPI
	bot     *Bot
	limiter *rate.Limiter
}

// NewTelegram connects to the Telegram Bot API.
func NewTelegram(token string, bot *Bot) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return &Telegram{
		api:     api,
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendRateLimit), sendRateBurst),
	}, nil
}

// Start consumes updates until the context is cancelled. In-flight turns
// are drained before returning.
func (t *Telegram) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = updateTimeoutSeconds
	updates := t.api.GetUpdatesChan(updateConfig)

	slog.Info("telegram: polling started", "bot_username", t.api.Self.UserName)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			wg.Wait()
			slog.Info("telegram: polling stopped")
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			wg.Add(1)
			go func(message *tgbotapi.Message) {
				defer wg.Done()
				t.handleMessage(ctx, message)
			}(update.Message)
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := strconv.FormatInt(message.Chat.ID, 10)

	if message.IsCommand() {
		t.handleCommand(ctx, message)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	t.sendTyping(message.Chat.ID)

	reply, err := t.bot.HandleMessage(turnCtx, chatID, message.Text)
	if err != nil {
		slog.Error("telegram: turn failed",
			"chat_id", chatID,
			"error", err,
		)
		t.send(ctx, message.Chat.ID, "Sorry, I lost my train of thought there. What were you saying?")
		return
	}
	t.send(ctx, message.Chat.ID, reply)
}

func (t *Telegram) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		t.send(ctx, message.Chat.ID, t.bot.WelcomeMessage())
	default:
		slog.Debug("telegram: ignoring unknown command", "command", message.Command())
	}
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) {
	if err := t.limiter.Wait(ctx); err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		slog.Error("telegram: send failed", "chat_id", chatID, "error", err)
	}
}

func (t *Telegram) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := t.api.Request(action); err != nil {
		slog.Debug("telegram: typing action failed", "chat_id", chatID, "error", err)
	}
}
