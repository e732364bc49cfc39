// Package meetup coordinates meetup verification between two users: it
// resolves the conversation of a pair, keeps the request ledger, applies
// accept and decline outcomes to both profiles atomically and stores the
// conversation's messages.
package meetup

import (
	"context"
	"time"

	"travelquest/backend/internal/chathub"
	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/metrics"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/ratelimit"
	"travelquest/backend/internal/storage"

	"go.uber.org/zap"
)

type Service struct {
	Store storage.Storage
	Quota ratelimit.Quota
	Hub   *chathub.ManagerService
	// Now is the server clock used for request and message timestamps.
	Now func() time.Time

	log *logger.Logger
}

func NewService(store storage.Storage, quota ratelimit.Quota, hub *chathub.ManagerService, log *logger.Logger) *Service {
	if quota == nil {
		quota = ratelimit.Unlimited{}
	}
	return &Service{
		Store: store,
		Quota: quota,
		Hub:   hub,
		Now:   func() time.Time { return time.Now().UTC() },
		log:   log,
	}
}

// publish announces committed changes. The change itself already happened,
// so a failing broker only delays live views until their next event.
func (s *Service) publish(ctx context.Context, events ...models.Event) {
	for _, ev := range events {
		if err := s.Hub.Publish(ctx, ev); err != nil {
			s.log.Warn("failed to publish change event",
				zap.String("topic", ev.Topic), zap.Error(err))
		}
	}
}

// refused records a business-rule refusal and passes err through.
func (s *Service) refused(err error, fields ...zap.Field) error {
	if IsRefusal(err) {
		metrics.Refusals.WithLabelValues(Code(err)).Inc()
		s.log.Debug("operation refused", append(fields, zap.String("code", Code(err)))...)
	}
	return err
}

func validPair(a, b string) bool {
	return a != "" && b != "" && a != b
}
