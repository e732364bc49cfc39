package models

// EventType names what changed in a topic.
type EventType string

const (
	EventPendingChanged       EventType = "pending_changed"
	EventMessagesChanged      EventType = "messages_changed"
	EventConversationsChanged EventType = "conversations_changed"
)

// Event is a change notification carried over pub/sub.
// Subscribers re-read the full state of the topic; events carry no diff.
type Event struct {
	Type  EventType `json:"type"`
	Topic string    `json:"topic"`
}

// PendingTopic is the topic of the pending requests addressed to userID.
func PendingTopic(userID string) string { return "pending:" + userID }

// MessagesTopic is the topic of the message sequence of a conversation.
func MessagesTopic(conversationID string) string { return "messages:" + conversationID }

// ConversationsTopic is the topic of a user's inbox.
func ConversationsTopic(userID string) string { return "conversations:" + userID }
