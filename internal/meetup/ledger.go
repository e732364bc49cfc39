package meetup

import (
	"context"
	"errors"
	"fmt"

	"travelquest/backend/internal/chathub"
	"travelquest/backend/internal/metrics"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/storage"

	"go.uber.org/zap"
)

// CreateRequest files a pending meetup verification request from sender
// to receiver in the given conversation.
//
// It fails with ErrAlreadyAccepted once any request between the two users
// was accepted, and with ErrAlreadyPending while the same sender already
// waits for the same receiver in this conversation. The request quota is
// only charged for requests that pass these rules.
func (s *Service) CreateRequest(ctx context.Context, conversationID, sender, receiver string) (string, error) {
	if conversationID == "" || !validPair(sender, receiver) {
		return "", fmt.Errorf("%w: request needs a conversation and two distinct users", ErrInvalidArgument)
	}
	fields := []zap.Field{zap.String("conversation_id", conversationID), zap.String("sender", sender)}

	err := s.Store.RunInTx(ctx, func(tx storage.Tx) error {
		_, err := checkRequest(tx, conversationID, sender, receiver)
		return err
	})
	if err != nil {
		return "", s.requestFailed(err, fields)
	}

	allowed, err := s.Quota.Allow(ctx, sender, receiver)
	if err != nil {
		return "", fmt.Errorf("check request quota: %w", err)
	}
	if !allowed {
		return "", s.refused(ErrRateLimited, zap.String("sender", sender), zap.String("receiver", receiver))
	}

	// The rules are checked again: a concurrent request may have been
	// written since the first check.
	var created *models.VerificationRequest
	err = s.Store.RunInTx(ctx, func(tx storage.Tx) error {
		conv, err := checkRequest(tx, conversationID, sender, receiver)
		if err != nil {
			return err
		}

		req := models.NewVerificationRequest(conversationID, sender, receiver, s.Now())
		if err := tx.CreateRequest(req); err != nil {
			return err
		}
		status := conv.MeetupStatus()
		status.LastRequestID = &req.ID
		if err := tx.SetMeetupStatus(conversationID, status); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return "", s.requestFailed(err, fields)
	}

	metrics.VerificationRequestsCreated.Inc()
	s.log.Info("verification request created",
		zap.String("request_id", created.ID),
		zap.String("conversation_id", conversationID),
		zap.String("sender", sender),
		zap.String("receiver", receiver))
	s.publish(ctx, models.Event{Type: models.EventPendingChanged, Topic: models.PendingTopic(receiver)})
	return created.ID, nil
}

// checkRequest reads the conversation and the pair's request history and
// reports why a new request from sender to receiver may not be filed.
func checkRequest(tx storage.Tx, conversationID, sender, receiver string) (*models.Conversation, error) {
	conv, err := tx.GetConversation(conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(sender) || !conv.HasParticipant(receiver) {
		return nil, fmt.Errorf("%w: users are not the participants of conversation %s", ErrInvalidArgument, conversationID)
	}

	existing, err := tx.FindRequestsBetween(sender, receiver)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.Status == models.StatusAccept {
			return nil, ErrAlreadyAccepted
		}
	}
	for _, r := range existing {
		if r.Status == models.StatusPending && r.ConversationID == conversationID &&
			r.SenderUID == sender && r.ReceiverUID == receiver {
			return nil, ErrAlreadyPending
		}
	}
	return conv, nil
}

func (s *Service) requestFailed(err error, fields []zap.Field) error {
	switch {
	case IsRefusal(err):
		return s.refused(err, fields...)
	case errors.Is(err, ErrConversationNotFound):
		s.log.Error("request for missing conversation", fields...)
		return err
	case errors.Is(err, ErrInvalidArgument):
		return err
	}
	return fmt.Errorf("create verification request: %w", err)
}

// PendingRequests returns the pending requests addressed to userID, oldest
// first.
func (s *Service) PendingRequests(ctx context.Context, userID string) ([]models.VerificationRequest, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	reqs, err := s.Store.ListPendingForReceiver(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return reqs, nil
}

// ListPending is the live form of PendingRequests. The first snapshot is the
// current set; a new full snapshot follows every change until ctx is done.
// Each call is an independent view.
func (s *Service) ListPending(ctx context.Context, userID string) <-chan chathub.Snapshot[models.VerificationRequest] {
	return chathub.Watch(ctx, s.Hub, "pending", models.PendingTopic(userID), func(ctx context.Context) ([]models.VerificationRequest, error) {
		return s.PendingRequests(ctx, userID)
	})
}
