package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/chineduokotu/chris-market-place/internal/domain"
)

// Event names as they appear on a conversation channel.
const (
	EventMessageSent = "message.sent"
	EventMessageRead = "message.read"
	WhisperTyping    = "typing"
)

// MessageReadEvent is pushed when the other participant reads a message.
type MessageReadEvent struct {
	MessageID int64     `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}

// TypingWhisper is the ephemeral client-to-client typing signal.
type TypingWhisper struct {
	UserID         int64     `json:"user_id"`
	ConversationID int64     `json:"conversation_id"`
	At             time.Time `json:"at"`
}

// Inbound payloads are validated here, at the transport boundary, so the
// session core never handles loosely-shaped data.

func DecodeMessageSent(data json.RawMessage) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == 0 {
		return nil, errors.New("message.sent event without message id")
	}
	return &msg, nil
}

func DecodeMessageRead(data json.RawMessage) (*MessageReadEvent, error) {
	var ev MessageReadEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.MessageID == 0 {
		return nil, errors.New("message.read event without message id")
	}
	return &ev, nil
}

func DecodeTypingWhisper(data json.RawMessage) (*TypingWhisper, error) {
	var ev TypingWhisper
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.UserID == 0 {
		return nil, errors.New("typing whisper without user id")
	}
	return &ev, nil
}
