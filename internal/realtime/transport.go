package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chineduokotu/chris-market-place/internal/domain"
)

// EventHandler receives the raw payload of a single channel event.
type EventHandler func(data json.RawMessage)

// UnbindFunc releases one handler registration. Safe to call more than once.
type UnbindFunc func()

// Transport is the publish/subscribe connection to the realtime broker.
// It is constructed once, injected into the session, and owns the global
// connection lifecycle; per-conversation channels are Subscriptions.
type Transport interface {
	// Connect establishes the connection and starts the read loop.
	// Reconnection after a drop is the transport's own responsibility.
	Connect(ctx context.Context) error
	// Close tears the connection down permanently.
	Close() error
	// Subscribe joins a channel and returns its subscription handle.
	// Subscribing twice to the same channel returns the same handle.
	Subscribe(channel string) (Subscription, error)
	// SetAuthToken replaces the bearer token used for private-channel
	// authorization. It applies to subscriptions made after the call.
	SetAuthToken(token string)
	// OnStatusChange registers a connection-status observer.
	OnStatusChange(fn func(domain.ConnectionStatus)) UnbindFunc
	// Status returns the current connection status.
	Status() domain.ConnectionStatus
}

// Subscription is one bound channel. Handlers registered through Bind are
// released individually via the returned UnbindFunc, or all at once when the
// channel is left.
type Subscription interface {
	Channel() string
	// Bind registers a handler for a named server event. For whispers the
	// event name is the bare name ("typing"), without the wire prefix.
	Bind(event string, fn EventHandler) UnbindFunc
	// Whisper emits an ephemeral client event to the channel's other
	// subscribers. Whispers are never persisted and never echo back.
	Whisper(event string, payload any) error
	// Leave unsubscribes from the channel and drops all handlers.
	Leave()
}

// ConversationChannel names the private channel for a conversation.
func ConversationChannel(conversationID int64) string {
	return fmt.Sprintf("private-conversation.%d", conversationID)
}
