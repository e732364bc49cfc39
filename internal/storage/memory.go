package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"travelquest/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// readKey identifies a document, or the whole request collection, in a
// transaction's read set.
type readKey struct {
	kind string
	id   string
}

const (
	kindConversation = "conversation"
	kindProfile      = "profile"
	kindRequest      = "request"
	// kindRequests is the whole request collection. A query over requests
	// conflicts with any request written after it ran.
	kindRequests = "requests"
)

type versioned[T any] struct {
	doc     T
	version uint64
}

// Memory is an in-process Storage with the same optimistic transaction
// semantics as the PostgreSQL store. Every document carries a version; a
// transaction remembers the versions it read and commits only if none of
// them moved.
type Memory struct {
	mu    sync.Mutex
	retry retryPolicy
	now   func() time.Time

	seq           uint64
	conversations map[string]*versioned[models.Conversation]
	pairIndex     map[string]string
	requests      map[string]*versioned[models.VerificationRequest]
	requestsSeq   uint64
	profiles      map[string]*versioned[models.PublicProfile]
	messages      map[string][]models.Message
	nextMessageID uint
}

// NewMemory creates an empty in-memory store.
func NewMemory(maxTxAttempts int) *Memory {
	return &Memory{
		retry:         newRetryPolicy(maxTxAttempts),
		now:           time.Now,
		conversations: make(map[string]*versioned[models.Conversation]),
		pairIndex:     make(map[string]string),
		requests:      make(map[string]*versioned[models.VerificationRequest]),
		profiles:      make(map[string]*versioned[models.PublicProfile]),
		messages:      make(map[string][]models.Message),
	}
}

func (m *Memory) bump() uint64 {
	m.seq++
	return m.seq
}

func (m *Memory) CreateConversationIfAbsent(ctx context.Context, conv *models.Conversation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.pairIndex[conv.PairKey]; ok {
		*conv = cloneConversation(m.conversations[id].doc)
		return false, nil
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = m.now()
	}
	m.conversations[conv.ID] = &versioned[models.Conversation]{doc: cloneConversation(*conv), version: m.bump()}
	m.pairIndex[conv.PairKey] = conv.ID
	return true, nil
}

func (m *Memory) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	conv := cloneConversation(v.doc)
	return &conv, nil
}

func (m *Memory) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Conversation
	for _, v := range m.conversations {
		if v.doc.HasParticipant(userID) {
			out = append(out, cloneConversation(v.doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) AppendMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}
	m.nextMessageID++
	msg.ID = m.nextMessageID
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	v.doc.LastMessageAt = msg.Timestamp
	v.version = m.bump()
	return nil
}

func (m *Memory) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]models.Message(nil), m.messages[conversationID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.VerificationRequest
	for _, v := range m.requests {
		if v.doc.ReceiverUID == receiverID && v.doc.Status == models.StatusPending {
			out = append(out, v.doc)
		}
	}
	sortRequests(out)
	return out, nil
}

func (m *Memory) ListRequestsBetween(ctx context.Context, a, b string) ([]models.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestsBetween(a, b), nil
}

func (m *Memory) requestsBetween(a, b string) []models.VerificationRequest {
	var out []models.VerificationRequest
	for _, v := range m.requests {
		if v.doc.Between(a, b) {
			out = append(out, v.doc)
		}
	}
	sortRequests(out)
	return out
}

func (m *Memory) GetProfile(ctx context.Context, uid string) (*models.PublicProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.profiles[uid]
	if !ok {
		return nil, ErrNotFound
	}
	profile := cloneProfile(v.doc)
	return &profile, nil
}

func (m *Memory) GetProfiles(ctx context.Context, uids []string) ([]models.PublicProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PublicProfile
	for _, uid := range uids {
		if v, ok := m.profiles[uid]; ok {
			out = append(out, cloneProfile(v.doc))
		}
	}
	return out, nil
}

func (m *Memory) EnsureProfile(ctx context.Context, profile *models.PublicProfile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[profile.UID]; ok {
		return false, nil
	}
	now := m.now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	m.profiles[profile.UID] = &versioned[models.PublicProfile]{doc: cloneProfile(*profile), version: m.bump()}
	return true, nil
}

func (m *Memory) SetTelegramChatID(ctx context.Context, uid string, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.profiles[uid]
	if !ok {
		return ErrNotFound
	}
	v.doc.TelegramChatID = &chatID
	v.version = m.bump()
	return nil
}

func (m *Memory) GetProfileByTelegramChatID(ctx context.Context, chatID int64) (*models.PublicProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.profiles {
		if v.doc.TelegramChatID != nil && *v.doc.TelegramChatID == chatID {
			profile := cloneProfile(v.doc)
			return &profile, nil
		}
	}
	return nil, ErrNotFound
}

// RunInTx runs fn against a snapshot and commits its buffered writes if none
// of the documents it read changed in the meantime.
func (m *Memory) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return m.retry.run(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{m: m, reads: make(map[readKey]uint64)}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

// memOp is one buffered write: check runs against committed state before
// any op is applied.
type memOp struct {
	check func() error
	apply func()
}

type memTx struct {
	m     *Memory
	reads map[readKey]uint64
	ops   []memOp
	guard txGuard
}

func (t *memTx) commit() error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, seen := range t.reads {
		if m.versionOf(key) != seen {
			return fmt.Errorf("%w: %s changed", ErrConflict, key)
		}
	}
	for _, op := range t.ops {
		if op.check == nil {
			continue
		}
		if err := op.check(); err != nil {
			return err
		}
	}
	for _, op := range t.ops {
		op.apply()
	}
	return nil
}

// versionOf returns the committed version behind a read-set key, 0 if the
// document does not exist. Callers hold m.mu.
func (m *Memory) versionOf(key readKey) uint64 {
	switch key.kind {
	case kindRequests:
		return m.requestsSeq
	case kindConversation:
		if v, ok := m.conversations[key.id]; ok {
			return v.version
		}
	case kindProfile:
		if v, ok := m.profiles[key.id]; ok {
			return v.version
		}
	case kindRequest:
		if v, ok := m.requests[key.id]; ok {
			return v.version
		}
	}
	return 0
}

func (t *memTx) GetConversation(id string) (*models.Conversation, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.conversations[id]
	if !ok {
		t.reads[readKey{kindConversation, id}] = 0
		return nil, ErrNotFound
	}
	t.reads[readKey{kindConversation, id}] = v.version
	conv := cloneConversation(v.doc)
	return &conv, nil
}

func (t *memTx) GetRequest(conversationID, requestID string) (*models.VerificationRequest, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	key := readKey{kindRequest, requestID}
	v, ok := m.requests[requestID]
	if !ok {
		t.reads[key] = 0
		return nil, ErrNotFound
	}
	t.reads[key] = v.version
	if v.doc.ConversationID != conversationID {
		return nil, ErrNotFound
	}
	req := v.doc
	return &req, nil
}

func (t *memTx) FindRequestsBetween(a, b string) ([]models.VerificationRequest, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	t.reads[readKey{kind: kindRequests}] = m.requestsSeq
	return m.requestsBetween(a, b), nil
}

func (t *memTx) GetProfile(uid string) (*models.PublicProfile, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.profiles[uid]
	if !ok {
		t.reads[readKey{kindProfile, uid}] = 0
		return nil, ErrNotFound
	}
	t.reads[readKey{kindProfile, uid}] = v.version
	profile := cloneProfile(v.doc)
	return &profile, nil
}

func (t *memTx) CreateRequest(req *models.VerificationRequest) error {
	t.guard.write()
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	doc := *req
	m := t.m
	t.ops = append(t.ops, memOp{
		check: func() error {
			if _, exists := m.requests[doc.ID]; exists {
				return fmt.Errorf("%w: request %s exists", ErrConflict, doc.ID)
			}
			if doc.Status != models.StatusPending {
				return nil
			}
			for _, v := range m.requests {
				if v.doc.Status == models.StatusPending && v.doc.ConversationID == doc.ConversationID &&
					v.doc.SenderUID == doc.SenderUID && v.doc.ReceiverUID == doc.ReceiverUID {
					return fmt.Errorf("%w: pending request exists for pair", ErrConflict)
				}
			}
			return nil
		},
		apply: func() {
			m.requests[doc.ID] = &versioned[models.VerificationRequest]{doc: doc, version: m.bump()}
			m.requestsSeq = m.seq
		},
	})
	return nil
}

func (t *memTx) SetRequestStatus(conversationID, requestID string, from, to models.RequestStatus) error {
	t.guard.write()
	m := t.m
	t.ops = append(t.ops, memOp{
		check: func() error {
			v, ok := m.requests[requestID]
			if !ok || v.doc.ConversationID != conversationID || v.doc.Status != from {
				return fmt.Errorf("%w: request %s is no longer %s", ErrConflict, requestID, from)
			}
			return nil
		},
		apply: func() {
			v := m.requests[requestID]
			v.doc.Status = to
			v.version = m.bump()
			m.requestsSeq = m.seq
		},
	})
	return nil
}

func (t *memTx) SetMeetupCount(uid string, from, to int) error {
	t.guard.write()
	m := t.m
	t.ops = append(t.ops, memOp{
		check: func() error {
			v, ok := m.profiles[uid]
			if !ok || v.doc.MeetupCount != from {
				return fmt.Errorf("%w: meetup count of %s moved", ErrConflict, uid)
			}
			if to < 0 {
				return fmt.Errorf("meetup count of %s cannot be negative", uid)
			}
			return nil
		},
		apply: func() {
			v := m.profiles[uid]
			v.doc.MeetupCount = to
			v.doc.UpdatedAt = m.now()
			v.version = m.bump()
		},
	})
	return nil
}

func (t *memTx) SetMeetupStatus(conversationID string, status models.MeetupStatus) error {
	t.guard.write()
	m := t.m
	var lastID *string
	if status.LastRequestID != nil {
		id := *status.LastRequestID
		lastID = &id
	}
	t.ops = append(t.ops, memOp{
		check: func() error {
			if _, ok := m.conversations[conversationID]; !ok {
				return ErrNotFound
			}
			return nil
		},
		apply: func() {
			v := m.conversations[conversationID]
			v.doc.MeetupConfirmed = status.Confirmed
			v.doc.LastRequestID = lastID
			v.version = m.bump()
		},
	})
	return nil
}

func sortRequests(reqs []models.VerificationRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].Timestamp.Equal(reqs[j].Timestamp) {
			return reqs[i].Timestamp.Before(reqs[j].Timestamp)
		}
		return reqs[i].ID < reqs[j].ID
	})
}

func cloneConversation(c models.Conversation) models.Conversation {
	c.Participants = append(pq.StringArray(nil), c.Participants...)
	if c.LastRequestID != nil {
		id := *c.LastRequestID
		c.LastRequestID = &id
	}
	return c
}

func cloneProfile(p models.PublicProfile) models.PublicProfile {
	if p.TelegramChatID != nil {
		id := *p.TelegramChatID
		p.TelegramChatID = &id
	}
	return p
}
