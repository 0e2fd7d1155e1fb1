package domain

import "time"

// MessageType classifies a relayed message.
type MessageType string

const (
	MessageTypeChat    MessageType = "message"
	MessageTypeSystem  MessageType = "system"
	MessageTypePrivate MessageType = "private"
)

// Message is one relayed entry. It is immutable once constructed: the
// relay builds it with a server-assigned timestamp and never mutates it
// afterwards, so it can be shared between room logs and outbound frames.
type Message struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Username  string      `json:"username"`
	SenderID  string      `json:"senderId"`
	Room      string      `json:"room,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PresenceEntry is one row of the user list, projected from the
// connection registry whenever membership changes.
type PresenceEntry struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	IsOnline    bool   `json:"isOnline"`
	CurrentRoom string `json:"currentRoom"`
}
