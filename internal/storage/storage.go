// Package storage is the document store used by the meetup engine.
// It offers single-document reads and writes, collection queries and
// multi-document transactions with optimistic conflict detection.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"travelquest/backend/internal/config"
	"travelquest/backend/internal/metrics"
	"travelquest/backend/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a transaction observed data that changed
	// before it could commit. RunInTx retries it.
	ErrConflict = errors.New("transaction conflict")
	// ErrAborted is returned when a transaction exhausted its retries.
	ErrAborted = errors.New("transaction aborted")
	// ErrReadAfterWrite is returned when a transaction reads after writing.
	ErrReadAfterWrite = errors.New("transaction reads must happen before writes")
)

type Storage interface {
	CreateConversationIfAbsent(ctx context.Context, conv *models.Conversation) (bool, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)

	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.VerificationRequest, error)
	ListRequestsBetween(ctx context.Context, a, b string) ([]models.VerificationRequest, error)

	GetProfile(ctx context.Context, uid string) (*models.PublicProfile, error)
	GetProfiles(ctx context.Context, uids []string) ([]models.PublicProfile, error)
	EnsureProfile(ctx context.Context, profile *models.PublicProfile) (bool, error)
	SetTelegramChatID(ctx context.Context, uid string, chatID int64) error
	GetProfileByTelegramChatID(ctx context.Context, chatID int64) (*models.PublicProfile, error)

	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is one optimistic transaction. All reads must happen before the first
// write; the store validates at commit that nothing read has changed.
type Tx interface {
	GetConversation(id string) (*models.Conversation, error)
	GetRequest(conversationID, requestID string) (*models.VerificationRequest, error)
	// FindRequestsBetween returns requests between a and b in either
	// direction, across all conversations.
	FindRequestsBetween(a, b string) ([]models.VerificationRequest, error)
	GetProfile(uid string) (*models.PublicProfile, error)

	CreateRequest(req *models.VerificationRequest) error
	// SetRequestStatus moves a request from one status to another; it
	// conflicts if the stored status is no longer from.
	SetRequestStatus(conversationID, requestID string, from, to models.RequestStatus) error
	// SetMeetupCount writes to only if the stored count still equals from.
	SetMeetupCount(uid string, from, to int) error
	SetMeetupStatus(conversationID string, status models.MeetupStatus) error
}

// retryPolicy bounds how often a conflicting transaction is re-run.
type retryPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

func newRetryPolicy(attempts int) retryPolicy {
	if attempts <= 0 {
		attempts = config.MaxTxAttempts
	}
	return retryPolicy{attempts: attempts, base: config.TxBackoffBase, max: config.TxBackoffMax}
}

// run calls attempt until it succeeds, fails with something other than
// ErrConflict, or the attempts are used up.
func (p retryPolicy) run(ctx context.Context, attempt func() error) error {
	var err error
	for i := 1; i <= p.attempts; i++ {
		err = attempt()
		if !errors.Is(err, ErrConflict) {
			metrics.RecordTx(i, false)
			return err
		}
		if i == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			metrics.RecordTx(i, true)
			return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		case <-time.After(p.backoff(i)):
		}
	}
	metrics.RecordTx(p.attempts, true)
	return fmt.Errorf("%w after %d attempts: %v", ErrAborted, p.attempts, err)
}

// backoff is exponential with full jitter.
func (p retryPolicy) backoff(attempt int) time.Duration {
	d := p.base << (attempt - 1)
	if d <= 0 || d > p.max {
		d = p.max
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}
