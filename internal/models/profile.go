package models

import "time"

// PublicProfile is the publicly visible part of a user account.
// MeetupCount is a derived counter: it is only ever changed by the approval
// transaction in package meetup and can never drop below zero.
type PublicProfile struct {
	// UID is the identifier supplied by the authentication collaborator.
	UID string `gorm:"primaryKey" json:"uid"`
	// Name is the display name shown next to messages and in the inbox.
	Name string `gorm:"type:text" json:"name"`
	// MeetupCount is the number of confirmed in-person meetups.
	MeetupCount int `gorm:"not null;default:0;check:meetup_count >= 0" json:"meetup_count"`
	// TelegramChatID links the profile to a Telegram chat for notifications.
	TelegramChatID *int64 `gorm:"index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
