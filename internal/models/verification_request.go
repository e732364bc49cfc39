package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus is the lifecycle state of a VerificationRequest.
type RequestStatus string

const (
	StatusPending RequestStatus = "pending"
	StatusAccept  RequestStatus = "accept"
	StatusDecline RequestStatus = "decline"
)

// RequestTypeMeetup tags requests created by the meetup ledger.
const RequestTypeMeetup = "meetup-verification"

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusAccept || s == StatusDecline
}

// ParseDecision validates a response to a pending request.
// Only "accept" and "decline" are decisions; "pending" is not.
func ParseDecision(s string) (RequestStatus, error) {
	switch RequestStatus(s) {
	case StatusAccept, StatusDecline:
		return RequestStatus(s), nil
	default:
		return "", fmt.Errorf("unknown decision %q", s)
	}
}

// VerificationRequest is a proposal from SenderUID to ReceiverUID to confirm
// that they met in person. It belongs to exactly one conversation and moves
// once from pending to accept or decline.
type VerificationRequest struct {
	ID             string `gorm:"primaryKey" json:"id"`
	ConversationID string `gorm:"not null;index;uniqueIndex:idx_pending_pair,priority:1,where:status = 'pending'" json:"conversation_id"`
	SenderUID      string `gorm:"not null;index:idx_request_pair,priority:1;uniqueIndex:idx_pending_pair,priority:2,where:status = 'pending'" json:"sender_uid"`
	ReceiverUID    string `gorm:"not null;index:idx_request_pair,priority:2;index:idx_receiver_status,priority:1;uniqueIndex:idx_pending_pair,priority:3,where:status = 'pending'" json:"receiver_uid"`

	RequestType string        `gorm:"type:text;not null" json:"request_type"`
	Text        string        `gorm:"type:text" json:"text"`
	Status      RequestStatus `gorm:"type:text;not null;index:idx_receiver_status,priority:2" json:"status"`
	Timestamp   time.Time     `gorm:"not null" json:"timestamp"`
}

// NewVerificationRequest builds a pending request from sender to receiver.
func NewVerificationRequest(conversationID, sender, receiver string, now time.Time) *VerificationRequest {
	return &VerificationRequest{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderUID:      sender,
		ReceiverUID:    receiver,
		RequestType:    RequestTypeMeetup,
		Text:           fmt.Sprintf("Did you meet %s?", sender),
		Status:         StatusPending,
		Timestamp:      now,
	}
}

// BeforeCreate generates the request ID when it is not set yet.
func (r *VerificationRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// Between reports whether the request connects a and b in either direction.
func (r *VerificationRequest) Between(a, b string) bool {
	return (r.SenderUID == a && r.ReceiverUID == b) || (r.SenderUID == b && r.ReceiverUID == a)
}
