package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"minuto/internal/models"
	"minuto/pkg/logger"
)

// Sender delivers a text message to a Telegram chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramNotifier sends streak and reminder messages. With no token it
// is disabled and drops every message.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	logger *logger.Logger
}

func NewTelegramNotifier(token string, l *logger.Logger) (*TelegramNotifier, error) {
	l = l.Named("telegram")
	if token == "" {
		l.Infow("Telegram notifier disabled: no token configured")
		return &TelegramNotifier{logger: l}, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	l.Infow("Authorized on Telegram", "username", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, logger: l}, nil
}

func (t *TelegramNotifier) Enabled() bool {
	return t.bot != nil
}

func (t *TelegramNotifier) Send(ctx context.Context, chatID int64, text string) error {
	if !t.Enabled() || chatID == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send telegram message to %d: %w", chatID, err)
	}
	return nil
}

// Listen answers /start and /help with the chat id the user must save in
// the app preferences to receive messages. It returns when ctx is done.
func (t *TelegramNotifier) Listen(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}

	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := t.bot.GetUpdatesChan(updateConfig)
	t.logger.Infow("Started receiving Telegram updates")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			t.handleCommand(ctx, update.Message)
		}
	}
}

func (t *TelegramNotifier) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	switch message.Command() {
	case "start", "help":
		text := "Olá! Para receber lembretes do seu devocional, informe este código nas configurações do app:\n\n" +
			strconv.FormatInt(chatID, 10)
		if err := t.Send(ctx, chatID, text); err != nil {
			t.logger.Errorw("Failed to answer command", "command", message.Command(), "error", err)
		}
	default:
		t.logger.Debugw("Ignoring command", "command", message.Command())
	}
}

// NewRecordMessage congratulates a user on a new longest streak.
func NewRecordMessage(streak int) string {
	return fmt.Sprintf("🔥 Novo recorde! Você completou %d dias seguidos com Deus. Continue firme!", streak)
}

// ReminderMessage invites a user to today's devotional.
const ReminderMessage = "🙏 Seu minuto com Deus te espera hoje. Reserve um tempo para respirar, ouvir e orar."

type ChatLookup interface {
	GetPreferences(ctx context.Context, userID string) (*models.DevotionalPreference, error)
}

// RecordAnnouncer tells a user on Telegram about a new longest streak.
type RecordAnnouncer struct {
	chats  ChatLookup
	sender Sender
}

func NewRecordAnnouncer(chats ChatLookup, sender Sender) *RecordAnnouncer {
	return &RecordAnnouncer{chats: chats, sender: sender}
}

func (a *RecordAnnouncer) AnnounceRecord(ctx context.Context, userID string, streak int) error {
	prefs, err := a.chats.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}
	if prefs.TelegramChatID == 0 {
		return nil
	}
	return a.sender.Send(ctx, prefs.TelegramChatID, NewRecordMessage(streak))
}
