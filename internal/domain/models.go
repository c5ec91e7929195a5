package domain

import "time"

// Participant is the minimal view of a user as it appears inside a
// conversation: the other party, or the sender of a message.
type Participant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MessagePreview is the last-message summary shown in the conversation list.
type MessagePreview struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation represents a chat thread between the current user and one
// other participant, optionally linked to a booking. Conversations are
// created server-side and fetched wholesale; the client never constructs
// one from scratch.
type Conversation struct {
	ID          int64           `json:"id"`
	OtherUser   *Participant    `json:"other_user,omitempty"`
	LastMessage *MessagePreview `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
	BookingID   *int64          `json:"booking_id,omitempty"`

	// Messages is populated only on a detail fetch.
	Messages []*Message `json:"messages,omitempty"`
}

// Message is a single chat message. ID is the deduplication key: the active
// thread cache must never hold two messages with the same ID.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	Sender         *Participant `json:"sender,omitempty"`
	Body           string       `json:"body"`
	Type           string       `json:"type"`
	CreatedAt      time.Time    `json:"created_at"`
	ReadAt         *time.Time   `json:"read_at,omitempty"` // nil = unread
}

// ConnectionStatus reflects the realtime transport's global connection
// lifecycle. It is read-only to consumers of the session.
type ConnectionStatus string

const (
	StatusUnknown      ConnectionStatus = "unknown"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusUnavailable  ConnectionStatus = "unavailable"
	StatusError        ConnectionStatus = "error"
)

// Credential is the bearer token plus the user snapshot it belongs to.
// It is the one piece of state persisted outside process memory.
type Credential struct {
	Token    string
	UserID   int64
	UserName string
}
