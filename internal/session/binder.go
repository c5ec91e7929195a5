package session

import (
	"context"
	"encoding/json"
	"log"

	"github.com/chineduokotu/chris-market-place/internal/realtime"
)

// The channel binder keeps exactly one private per-conversation subscription
// bound to the active conversation, and none otherwise. Binding always
// unbinds first, so two channels are never live at once; the unbind handles
// from every Bind call are collected and released together on teardown.

// bindChannelLocked subscribes to the conversation's private channel and
// registers the three event handlers. Callers hold s.mu.
func (s *Session) bindChannelLocked(conversationID int64) {
	s.unbindChannelLocked()

	name := realtime.ConversationChannel(conversationID)
	sub, err := s.transport.Subscribe(name)
	if err != nil {
		log.Printf("chat: subscribe %s: %v", name, err)
		return
	}
	s.channel = sub
	s.unbinds = []realtime.UnbindFunc{
		sub.Bind(realtime.EventMessageSent, s.onMessageSent),
		sub.Bind(realtime.EventMessageRead, s.onMessageRead),
		sub.Bind(realtime.WhisperTyping, s.onTypingWhisper),
	}
}

// unbindChannelLocked releases the handlers, leaves the channel, and clears
// typing state. Callers hold s.mu. Safe to call when nothing is bound.
func (s *Session) unbindChannelLocked() {
	for _, unbind := range s.unbinds {
		unbind()
	}
	s.unbinds = nil
	if s.channel != nil {
		s.channel.Leave()
		s.channel = nil
	}
	s.typing.reset()
}

func (s *Session) onMessageSent(data json.RawMessage) {
	msg, err := realtime.DecodeMessageSent(data)
	if err != nil {
		log.Printf("chat: dropping message.sent event: %v", err)
		return
	}
	s.appendIfNew(msg)
	go s.RefreshDirectory(context.Background())
}

func (s *Session) onMessageRead(data json.RawMessage) {
	ev, err := realtime.DecodeMessageRead(data)
	if err != nil {
		log.Printf("chat: dropping message.read event: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == ev.MessageID {
			readAt := ev.ReadAt
			m.ReadAt = &readAt
			break
		}
	}
}

func (s *Session) onTypingWhisper(data json.RawMessage) {
	ev, err := realtime.DecodeTypingWhisper(data)
	if err != nil {
		log.Printf("chat: dropping typing whisper: %v", err)
		return
	}
	s.mu.Lock()
	self := s.cred != nil && s.cred.UserID == ev.UserID
	s.mu.Unlock()
	if self {
		return
	}
	s.typing.set(ev.UserID)
}
