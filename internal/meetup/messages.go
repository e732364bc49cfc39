package meetup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"travelquest/backend/internal/chathub"
	"travelquest/backend/internal/config"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/storage"

	"go.uber.org/zap"
)

// AppendMessage stores a message from authorID in the conversation with a
// server timestamp.
func (s *Service) AppendMessage(ctx context.Context, conversationID, authorID, text string) (*models.Message, error) {
	if conversationID == "" || authorID == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message needs a conversation, an author and text", ErrInvalidArgument)
	}

	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(authorID) {
		return nil, fmt.Errorf("%w: %s is not a participant of conversation %s", ErrInvalidArgument, authorID, conversationID)
	}

	msg := &models.Message{
		ConversationID: conversationID,
		UserID:         authorID,
		Text:           text,
		Timestamp:      s.Now(),
	}
	if err := s.Store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	events := []models.Event{{Type: models.EventMessagesChanged, Topic: models.MessagesTopic(conversationID)}}
	for _, p := range conv.Participants {
		events = append(events, models.Event{Type: models.EventConversationsChanged, Topic: models.ConversationsTopic(p)})
	}
	s.publish(ctx, events...)
	return msg, nil
}

// SendDirect sends text from one user to another, creating their
// conversation if this is the first message between them.
func (s *Service) SendDirect(ctx context.Context, from, to, text string) (*models.Message, error) {
	conversationID, err := s.ResolveConversation(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return s.AppendMessage(ctx, conversationID, from, text)
}

// Messages returns the conversation's messages in ascending order.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: empty conversation id", ErrInvalidArgument)
	}
	msgs, err := s.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// StreamMessages is the live form of Messages.
func (s *Service) StreamMessages(ctx context.Context, conversationID string) <-chan chathub.Snapshot[models.Message] {
	return chathub.Watch(ctx, s.Hub, "messages", models.MessagesTopic(conversationID), func(ctx context.Context) ([]models.Message, error) {
		return s.Messages(ctx, conversationID)
	})
}

// AuthorNames maps every distinct author of msgs to a display name. Authors
// without a profile are shown as config.UnknownUserName.
func (s *Service) AuthorNames(ctx context.Context, msgs []models.Message) map[string]string {
	names := make(map[string]string)
	var uids []string
	for _, m := range msgs {
		if _, ok := names[m.UserID]; ok {
			continue
		}
		names[m.UserID] = config.UnknownUserName
		uids = append(uids, m.UserID)
	}
	if len(uids) == 0 {
		return names
	}

	profiles, err := s.Store.GetProfiles(ctx, uids)
	if err != nil {
		s.log.Warn("failed to load author names", zap.Error(err))
		return names
	}
	for _, p := range profiles {
		if p.Name != "" {
			names[p.UID] = p.Name
		}
	}
	return names
}

// ConversationFor loads a conversation on behalf of userID, who must be one
// of its participants.
func (s *Service) ConversationFor(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	if conversationID == "" || userID == "" {
		return nil, fmt.Errorf("%w: empty conversation or user id", ErrInvalidArgument)
	}
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: %s is not a participant of conversation %s", ErrInvalidArgument, userID, conversationID)
	}
	return conv, nil
}

func (s *Service) conversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.Store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Error("conversation not found", zap.String("conversation_id", id))
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}
