package meetup

import (
	"context"
	"errors"
	"fmt"

	"travelquest/backend/internal/metrics"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/storage"

	"go.uber.org/zap"
)

// Resolve applies receiver's decision to a pending request from sender.
//
// An accept increments the meetup count of both users exactly once. The
// request status, both counters and the conversation's meetup status change
// together or not at all. Every read happens before the first write, and the
// counters are written conditionally against the values read, so a retried
// attempt can never count twice.
func (s *Service) Resolve(ctx context.Context, conversationID, requestID, sender, receiver string, decision models.RequestStatus) error {
	if conversationID == "" || requestID == "" || !validPair(sender, receiver) {
		return fmt.Errorf("%w: resolve needs a conversation, a request and two distinct users", ErrInvalidArgument)
	}
	if !decision.Terminal() {
		return fmt.Errorf("%w: decision must be accept or decline, got %q", ErrInvalidArgument, decision)
	}

	fields := []zap.Field{
		zap.String("conversation_id", conversationID),
		zap.String("request_id", requestID),
		zap.String("decision", string(decision)),
	}

	err := s.Store.RunInTx(ctx, func(tx storage.Tx) error {
		req, err := tx.GetRequest(conversationID, requestID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if req.SenderUID != sender || req.ReceiverUID != receiver {
			return fmt.Errorf("%w: request %s is not from %s to %s", ErrInvalidArgument, requestID, sender, receiver)
		}
		if req.Status.Terminal() {
			return ErrAlreadyResolved
		}

		between, err := tx.FindRequestsBetween(sender, receiver)
		if err != nil {
			return err
		}
		for _, r := range between {
			if r.ID != requestID && r.Status == models.StatusAccept {
				return ErrConflictingAcceptance
			}
		}

		senderProfile, err := getProfile(tx, sender)
		if err != nil {
			return err
		}
		receiverProfile, err := getProfile(tx, receiver)
		if err != nil {
			return err
		}
		conv, err := tx.GetConversation(conversationID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrConversationNotFound
		}
		if err != nil {
			return err
		}

		// Writes.
		if err := tx.SetRequestStatus(conversationID, requestID, models.StatusPending, decision); err != nil {
			return err
		}
		accepted := decision == models.StatusAccept
		if accepted {
			if err := tx.SetMeetupCount(sender, senderProfile.MeetupCount, senderProfile.MeetupCount+1); err != nil {
				return err
			}
			if err := tx.SetMeetupCount(receiver, receiverProfile.MeetupCount, receiverProfile.MeetupCount+1); err != nil {
				return err
			}
		}
		return tx.SetMeetupStatus(conversationID, models.MeetupStatus{
			Confirmed:     accepted || conv.MeetupConfirmed,
			LastRequestID: &requestID,
		})
	})
	if err != nil {
		if IsRefusal(err) {
			return s.refused(err, fields...)
		}
		if errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrRequestNotFound) {
			s.log.Error("resolve hit missing document", append(fields, zap.Error(err))...)
			return err
		}
		if errors.Is(err, ErrInvalidArgument) {
			return err
		}
		s.log.Error("resolve failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("resolve verification request: %w", err)
	}

	metrics.VerificationsResolved.WithLabelValues(string(decision)).Inc()
	s.log.Info("verification request resolved", fields...)
	s.publish(ctx, models.Event{Type: models.EventPendingChanged, Topic: models.PendingTopic(receiver)})
	return nil
}

func getProfile(tx storage.Tx, uid string) (*models.PublicProfile, error) {
	p, err := tx.GetProfile(uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, uid)
	}
	return p, err
}
