package domain

import "context"

// ConversationGateway defines the remote REST operations the chat core
// consumes. The backend owns all persistent chat state; the client only
// caches what these calls return.
type ConversationGateway interface {
	// ListConversations returns every conversation for the current credential.
	ListConversations(ctx context.Context) ([]*Conversation, error)
	// GetConversation returns one conversation with its messages populated.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	// CreateConversation asks the server to get-or-create a conversation with
	// the given participant, optionally linked to a booking.
	CreateConversation(ctx context.Context, otherUserID int64, bookingID *int64) (*Conversation, error)
	// PostMessage sends a message and returns the server-confirmed object.
	PostMessage(ctx context.Context, conversationID int64, body, msgType string) (*Message, error)
	// MarkMessageRead notifies the server that a message was read.
	MarkMessageRead(ctx context.Context, messageID int64) error
}

// CredentialRepository defines persistence operations for the bearer
// credential: read at startup, written on login, cleared on logout.
type CredentialRepository interface {
	Save(ctx context.Context, cred *Credential) error
	Load(ctx context.Context) (*Credential, error)
	Clear(ctx context.Context) error
}
