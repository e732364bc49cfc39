package meetup

import (
	"context"
	"fmt"

	"travelquest/backend/internal/metrics"
	"travelquest/backend/internal/models"

	"go.uber.org/zap"
)

// ResolveConversation returns the conversation of userA and userB, creating
// it on first use. The pair is unordered: (A, B) and (B, A) resolve to the
// same conversation, also under concurrent first calls.
func (s *Service) ResolveConversation(ctx context.Context, userA, userB string) (string, error) {
	if !validPair(userA, userB) {
		return "", fmt.Errorf("%w: a conversation needs two distinct users", ErrInvalidArgument)
	}

	now := s.Now()
	conv := models.NewConversation(userA, userB)
	conv.CreatedAt = now
	conv.LastMessageAt = now

	created, err := s.Store.CreateConversationIfAbsent(ctx, conv)
	if err != nil {
		return "", fmt.Errorf("resolve conversation: %w", err)
	}
	if !conv.HasParticipant(userA) || !conv.HasParticipant(userB) {
		s.log.Error("pair key resolved to a foreign conversation",
			zap.String("conversation_id", conv.ID),
			zap.Strings("participants", conv.Participants),
			zap.String("user_a", userA),
			zap.String("user_b", userB))
		return "", fmt.Errorf("resolve conversation %s: %w", conv.ID, ErrPairMismatch)
	}
	if created {
		metrics.ConversationsCreated.Inc()
		s.log.Info("conversation created",
			zap.String("conversation_id", conv.ID),
			zap.Strings("participants", conv.Participants))
		s.publish(ctx,
			models.Event{Type: models.EventConversationsChanged, Topic: models.ConversationsTopic(userA)},
			models.Event{Type: models.EventConversationsChanged, Topic: models.ConversationsTopic(userB)},
		)
	}
	return conv.ID, nil
}
