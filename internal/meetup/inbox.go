package meetup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"travelquest/backend/internal/config"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/storage"

	"go.uber.org/zap"
)

// InboxEntry is one conversation as seen by one of its participants.
type InboxEntry struct {
	ConversationID string              `json:"conversation_id"`
	OtherUID       string              `json:"other_uid"`
	OtherName      string              `json:"other_name"`
	LastMessageAt  time.Time           `json:"last_message_at"`
	Meetup         models.MeetupStatus `json:"meetup_status"`
}

// Inbox lists the conversations of uid, most recent activity first.
func (s *Service) Inbox(ctx context.Context, uid string) ([]InboxEntry, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	convs, err := s.Store.ListConversationsForUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	others := make([]string, 0, len(convs))
	for _, c := range convs {
		others = append(others, c.OtherParticipant(uid))
	}
	names := make(map[string]string, len(others))
	if len(others) > 0 {
		profiles, err := s.Store.GetProfiles(ctx, others)
		if err != nil {
			s.log.Warn("failed to load inbox names", zap.Error(err))
		}
		for _, p := range profiles {
			names[p.UID] = p.Name
		}
	}

	entries := make([]InboxEntry, 0, len(convs))
	for i, c := range convs {
		name := names[others[i]]
		if name == "" {
			name = config.UnknownUserName
		}
		entries = append(entries, InboxEntry{
			ConversationID: c.ID,
			OtherUID:       others[i],
			OtherName:      name,
			LastMessageAt:  c.LastMessageAt,
			Meetup:         c.MeetupStatus(),
		})
	}
	return entries, nil
}

// RegisterProfile creates the public profile of uid with a zero meetup
// count. An existing profile is returned untouched.
func (s *Service) RegisterProfile(ctx context.Context, uid, name string) (*models.PublicProfile, error) {
	name = strings.TrimSpace(name)
	if uid == "" || name == "" {
		return nil, fmt.Errorf("%w: profile needs a uid and a name", ErrInvalidArgument)
	}
	created, err := s.Store.EnsureProfile(ctx, &models.PublicProfile{UID: uid, Name: name})
	if err != nil {
		return nil, fmt.Errorf("register profile: %w", err)
	}
	if created {
		s.log.Info("profile registered", zap.String("uid", uid))
	}
	return s.Profile(ctx, uid)
}

func (s *Service) Profile(ctx context.Context, uid string) (*models.PublicProfile, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	p, err := s.Store.GetProfile(ctx, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}
