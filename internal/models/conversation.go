package models

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Conversation is the channel between exactly two users.
// For any two users at most one Conversation exists; PairKey enforces it.
type Conversation struct {
	// ID is the opaque identifier (UUID) generated on creation.
	ID string `gorm:"primaryKey" json:"id"`
	// PairKey is the canonical key of the participant pair, see PairKey().
	PairKey string `gorm:"uniqueIndex;not null" json:"-"`
	// Participants holds the two user ids in sorted order.
	Participants pq.StringArray `gorm:"type:text[];not null" json:"participants"`

	// MeetupConfirmed and LastRequestID cache the latest approval outcome.
	MeetupConfirmed bool    `gorm:"not null;default:false" json:"-"`
	LastRequestID   *string `json:"-"`

	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
}

// MeetupStatus is the derived cache of the latest meetup verification outcome.
type MeetupStatus struct {
	Confirmed     bool    `json:"confirmed"`
	LastRequestID *string `json:"last_request_id"`
}

// NewConversation builds an unsaved conversation for the pair a, b.
func NewConversation(a, b string) *Conversation {
	pair := SortedPair(a, b)
	return &Conversation{
		PairKey:      PairKey(a, b),
		Participants: pq.StringArray{pair[0], pair[1]},
	}
}

// BeforeCreate generates the conversation ID when it is not set yet.
func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// MeetupStatus returns the cached meetup verification outcome.
func (c *Conversation) MeetupStatus() MeetupStatus {
	return MeetupStatus{Confirmed: c.MeetupConfirmed, LastRequestID: c.LastRequestID}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// SortedPair returns a and b in lexicographic order.
func SortedPair(a, b string) [2]string {
	pair := []string{a, b}
	sort.Strings(pair)
	return [2]string{pair[0], pair[1]}
}

// PairKey derives the canonical key of the unordered pair {a, b}.
// PairKey(a, b) == PairKey(b, a), and distinct pairs never share a key:
// each id is length-prefixed, so no choice of ids can shift the boundary.
func PairKey(a, b string) string {
	pair := SortedPair(a, b)
	var sb strings.Builder
	for i, id := range pair {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.Itoa(len(id)))
		sb.WriteByte(':')
		sb.WriteString(id)
	}
	return sb.String()
}
