package models

import "time"

// Message is one chat message inside a conversation.
// Messages are ordered by Timestamp, then ID, ascending.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"not null;index:idx_conversation_ts,priority:1" json:"conversation_id"`
	UserID         string    `gorm:"not null" json:"user_id"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	Timestamp      time.Time `gorm:"not null;index:idx_conversation_ts,priority:2" json:"timestamp"`
}
