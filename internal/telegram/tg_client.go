package telegram

import (
	"context"
	"errors"
	"fmt"

	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ProfileStore is the storage needed to reach a user through Telegram.
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (*models.PublicProfile, error)
	GetProfileByTelegramChatID(ctx context.Context, chatID int64) (*models.PublicProfile, error)
	SetTelegramChatID(ctx context.Context, uid string, chatID int64) error
	ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.VerificationRequest, error)
}

// Notifier delivers human-readable outcome strings to a user.
type Notifier interface {
	Notify(ctx context.Context, uid, text string) error
}

// Nop drops every notification. Used when no bot token is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// BotNotifier sends notifications to the Telegram chat linked to a profile.
type BotNotifier struct {
	Bot      Sender
	Profiles ProfileStore
	log      *logger.Logger
}

func NewBotNotifier(bot Sender, profiles ProfileStore, log *logger.Logger) *BotNotifier {
	return &BotNotifier{Bot: bot, Profiles: profiles, log: log}
}

// Notify sends text to uid's linked chat. Users without a profile or without
// a linked chat are skipped silently.
func (n *BotNotifier) Notify(ctx context.Context, uid, text string) error {
	profile, err := n.Profiles.GetProfile(ctx, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile %s: %w", uid, err)
	}
	if profile.TelegramChatID == nil {
		return nil
	}

	msg := tgbotapi.NewMessage(*profile.TelegramChatID, text)
	if _, err := n.Bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message to %s: %w", uid, err)
	}
	n.log.Debug("notification sent", zap.String("uid", uid))
	return nil
}
