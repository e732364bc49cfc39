package models_test

import (
	"reflect"
	"testing"
	"time"

	"travelquest/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPairKey_OrderIndependent verifies that both orders of a pair map to one key.
func TestPairKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, models.PairKey("alice", "bob"), models.PairKey("bob", "alice"))
	assert.Equal(t, "5:alice|3:bob", models.PairKey("bob", "alice"))
	assert.NotEqual(t, models.PairKey("alice", "bob"), models.PairKey("alice", "carol"))
}

// TestPairKey_SeparatorInIDs verifies that ids containing the separator
// characters cannot make two different pairs share a key.
func TestPairKey_SeparatorInIDs(t *testing.T) {
	pairs := [][2]string{
		{"a_b", "c"},
		{"a", "b_c"},
		{"a|b", "c"},
		{"a", "b|c"},
		{"1:a", "b"},
		{"a", "1:b"},
		{"a|1:b", "c"},
	}
	seen := make(map[string][2]string)
	for _, p := range pairs {
		key := models.PairKey(p[0], p[1])
		if prev, dup := seen[key]; dup {
			t.Fatalf("pairs %v and %v share key %q", prev, p, key)
		}
		seen[key] = p
		assert.Equal(t, key, models.PairKey(p[1], p[0]))
	}
}

func TestNewConversation_SortsParticipants(t *testing.T) {
	conv := models.NewConversation("zed", "amy")

	assert.Equal(t, []string{"amy", "zed"}, []string(conv.Participants))
	assert.Equal(t, models.PairKey("amy", "zed"), conv.PairKey)
	assert.True(t, conv.HasParticipant("zed"))
	assert.False(t, conv.HasParticipant("bob"))
	assert.Equal(t, "amy", conv.OtherParticipant("zed"))
	assert.False(t, conv.MeetupStatus().Confirmed)
	assert.Nil(t, conv.MeetupStatus().LastRequestID)
}

// TestConversationBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestConversationBeforeCreate_GeneratesUUID(t *testing.T) {
	conv := models.NewConversation("a", "b")
	assert.Empty(t, conv.ID)

	err := conv.BeforeCreate(nil) // nil *gorm.DB is acceptable for this hook

	require.NoError(t, err)
	_, parseErr := uuid.Parse(conv.ID)
	assert.NoError(t, parseErr, "Conversation ID must be a valid UUID string")
}

// TestConversationBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestConversationBeforeCreate_PreservesExistingID(t *testing.T) {
	conv := &models.Conversation{ID: "fixed"}
	require.NoError(t, conv.BeforeCreate(nil))
	assert.Equal(t, "fixed", conv.ID)
}

func TestNewVerificationRequest(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	req := models.NewVerificationRequest("c1", "alice", "bob", now)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, models.RequestTypeMeetup, req.RequestType)
	assert.Equal(t, "Did you meet alice?", req.Text)
	assert.Equal(t, now, req.Timestamp)
	assert.True(t, req.Between("bob", "alice"))
	assert.False(t, req.Between("alice", "carol"))
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    models.RequestStatus
		wantErr bool
	}{
		{in: "accept", want: models.StatusAccept},
		{in: "decline", want: models.StatusDecline},
		{in: "pending", wantErr: true},
		{in: "", wantErr: true},
		{in: "accepted", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := models.ParseDecision(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	assert.False(t, models.StatusPending.Terminal())
	assert.True(t, models.StatusAccept.Terminal())
	assert.True(t, models.StatusDecline.Terminal())
}

// TestStructTags verifies that the constraints the store relies on are declared on the models.
func TestStructTags(t *testing.T) {
	convType := reflect.TypeOf(models.Conversation{})
	pairField, found := convType.FieldByName("PairKey")
	require.True(t, found)
	assert.Contains(t, pairField.Tag.Get("gorm"), "uniqueIndex", "PairKey must be unique")

	partField, found := convType.FieldByName("Participants")
	require.True(t, found)
	assert.Contains(t, partField.Tag.Get("gorm"), "type:text[]", "Participants should use PostgreSQL array type")

	reqType := reflect.TypeOf(models.VerificationRequest{})
	for _, name := range []string{"ConversationID", "SenderUID", "ReceiverUID"} {
		f, found := reqType.FieldByName(name)
		require.True(t, found, name)
		assert.Contains(t, f.Tag.Get("gorm"), "uniqueIndex:idx_pending_pair", name)
	}

	profType := reflect.TypeOf(models.PublicProfile{})
	countField, found := profType.FieldByName("MeetupCount")
	require.True(t, found)
	assert.Contains(t, countField.Tag.Get("gorm"), "check:meetup_count >= 0")
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "pending:u1", models.PendingTopic("u1"))
	assert.Equal(t, "messages:c1", models.MessagesTopic("c1"))
	assert.Equal(t, "conversations:u1", models.ConversationsTopic("u1"))
}

// BenchmarkPairKey measures canonical key derivation.
func BenchmarkPairKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = models.PairKey("user-b", "user-a")
	}
}
