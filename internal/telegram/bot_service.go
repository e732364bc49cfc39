// Package telegram is the notification channel of the service. It delivers
// meetup outcomes to users who linked a Telegram chat, and answers a few
// bot commands about their meetups.
package telegram

import (
	"context"

	"travelquest/backend/internal/localization"
	"travelquest/backend/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// BotService receives Telegram updates and answers commands.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	Storage   ProfileStore
	Links     LinkVerifier
	Localizer *localization.Localizer
	log       *logger.Logger
}

// NewBotService authorizes the bot with token.
func NewBotService(token string, s ProfileStore, links LinkVerifier, loc *localization.Localizer, log *logger.Logger) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Info("telegram bot authorized", zap.String("account", bot.Self.UserName))

	return &BotService{
		BotAPI:    bot,
		Storage:   s,
		Links:     links,
		Localizer: loc,
		log:       log,
	}, nil
}

// Run is the main loop for receiving Telegram updates. It returns when ctx
// is done.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			s.handleCommand(ctx, update.Message)
		}
	}
}

func (s *BotService) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	reply, err := Reply(ctx, msg, s.Storage, s.Links, s.Localizer)
	if err != nil {
		s.log.Error("telegram command failed",
			zap.String("command", msg.Command()), zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		reply = s.Localizer.GetString(languageOf(msg, s.Localizer), "Internal")
	}
	if reply == "" {
		return
	}
	if _, err := s.BotAPI.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		s.log.Warn("failed to send telegram reply", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

// Reply computes the answer to a bot command. Unknown commands get the
// usage text.
func Reply(ctx context.Context, msg *tgbotapi.Message, st ProfileStore, links LinkVerifier, loc *localization.Localizer) (string, error) {
	switch msg.Command() {
	case "link":
		return HandleLinkCommand(ctx, msg, st, links, loc)
	case "meetups", "pending":
		return HandleStatusCommand(ctx, msg, st, loc)
	default:
		return loc.GetString(languageOf(msg, loc), "link_usage"), nil
	}
}
