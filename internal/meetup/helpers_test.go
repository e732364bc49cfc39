package meetup_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"travelquest/backend/internal/chathub"
	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/meetup"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/ratelimit"
	"travelquest/backend/internal/storage"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockQuota struct {
	mock.Mock
}

func (m *MockQuota) Allow(ctx context.Context, sender, receiver string) (bool, error) {
	args := m.Called(ctx, sender, receiver)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	svc   *meetup.Service
	store *storage.Memory
	hub   *chathub.ManagerService
}

// newFixture wires a service to a memory store that allows txAttempts
// attempts per transaction.
func newFixture(t *testing.T, txAttempts int) *fixture {
	t.Helper()

	store := storage.NewMemory(txAttempts)
	hub := chathub.NewManagerService(chathub.NewLocalBroker(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	svc := meetup.NewService(store, ratelimit.Unlimited{}, hub, logger.NewNop())
	svc.Now = tickingClock()
	return &fixture{svc: svc, store: store, hub: hub}
}

// tickingClock returns a clock that advances one millisecond per call.
func tickingClock() func() time.Time {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func (f *fixture) profiles(t *testing.T, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		_, err := f.svc.RegisterProfile(context.Background(), uid, "name-"+uid)
		require.NoError(t, err)
	}
}

func (f *fixture) conversation(t *testing.T, a, b string) string {
	t.Helper()
	id, err := f.svc.ResolveConversation(context.Background(), a, b)
	require.NoError(t, err)
	return id
}

func (f *fixture) request(t *testing.T, convID, sender, receiver string) string {
	t.Helper()
	id, err := f.svc.CreateRequest(context.Background(), convID, sender, receiver)
	require.NoError(t, err)
	return id
}

func (f *fixture) meetupCount(t *testing.T, uid string) int {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), uid)
	require.NoError(t, err)
	return p.MeetupCount
}

func (f *fixture) requestStatus(t *testing.T, a, b, requestID string) models.RequestStatus {
	t.Helper()
	reqs, err := f.store.ListRequestsBetween(context.Background(), a, b)
	require.NoError(t, err)
	for _, r := range reqs {
		if r.ID == requestID {
			return r.Status
		}
	}
	t.Fatalf("request %s not found", requestID)
	return ""
}

// abortingStore runs every transaction to its end and then reports a
// conflict, so the store discards the writes and retries until it gives up.
type abortingStore struct {
	storage.Storage
}

func (s abortingStore) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Storage.RunInTx(ctx, func(tx storage.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return storage.ErrConflict
	})
}

// foreignStore answers every conversation lookup with a conversation of
// other users, as a colliding pair key would.
type foreignStore struct {
	storage.Storage
}

func (s foreignStore) CreateConversationIfAbsent(ctx context.Context, conv *models.Conversation) (bool, error) {
	*conv = *models.NewConversation("a_b", "c")
	conv.ID = "foreign"
	return false, nil
}
