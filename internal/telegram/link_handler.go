package telegram

import (
	"context"
	"errors"
	"strings"

	"travelquest/backend/internal/localization"
	"travelquest/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// LinkVerifier resolves a link code issued by the app to the uid it was
// issued for.
type LinkVerifier interface {
	VerifyLinkCode(code string) (string, error)
}

// HandleLinkCommand processes /link <code>: it attaches the chat to the
// profile the code was issued for, so that the profile's notifications are
// delivered here. It returns the reply to send back.
func HandleLinkCommand(ctx context.Context, msg *tgbotapi.Message, s ProfileStore, links LinkVerifier, loc *localization.Localizer) (string, error) {
	lang := languageOf(msg, loc)
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		return loc.GetString(lang, "link_usage"), nil
	}
	uid, err := links.VerifyLinkCode(code)
	if err != nil {
		return loc.GetString(lang, "link_invalid"), nil
	}

	err = s.SetTelegramChatID(ctx, uid, msg.Chat.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return loc.GetString(lang, "link_failed"), nil
	}
	if err != nil {
		return "", err
	}
	return loc.Format(lang, "link_done", uid), nil
}

// HandleStatusCommand answers /meetups and /pending for the profile linked
// to the chat.
func HandleStatusCommand(ctx context.Context, msg *tgbotapi.Message, s ProfileStore, loc *localization.Localizer) (string, error) {
	lang := languageOf(msg, loc)
	profile, err := s.GetProfileByTelegramChatID(ctx, msg.Chat.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return loc.GetString(lang, "not_linked"), nil
	}
	if err != nil {
		return "", err
	}

	switch msg.Command() {
	case "pending":
		reqs, err := s.ListPendingForReceiver(ctx, profile.UID)
		if err != nil {
			return "", err
		}
		return loc.Format(lang, "pending_count", len(reqs)), nil
	default:
		return loc.Format(lang, "meetups_count", profile.MeetupCount), nil
	}
}

func languageOf(msg *tgbotapi.Message, loc *localization.Localizer) string {
	if msg.From == nil {
		return localization.DefaultLanguage
	}
	return loc.Pick(msg.From.LanguageCode)
}
