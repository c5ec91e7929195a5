package session

import (
	"context"
	"fmt"
	"log"

	"github.com/chineduokotu/chris-market-place/internal/domain"
)

// OpenChat opens the chat surface, optionally jumping straight into a
// conversation.
func (s *Session) OpenChat(ctx context.Context, conversationID int64) {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	if conversationID != 0 {
		s.LoadConversation(ctx, conversationID)
	}
}

// LoadConversation fetches a conversation's detail and makes it the active
// thread: message list and id-membership set are replaced atomically, the
// realtime channel is re-bound, and typing flags are cleared. If the active
// conversation changed while the fetch was in flight, the result is
// discarded - an obsolete success, not a failure. Fetch errors are logged
// and the prior active thread, if any, stays authoritative.
func (s *Session) LoadConversation(ctx context.Context, id int64) {
	s.mu.Lock()
	gen := s.beginLoadLocked()
	s.mu.Unlock()
	s.finishLoad(ctx, id, gen)
}

// resyncActive reloads a conversation after a reconnect, but only if it is
// still the active one when the load starts. The check and the generation
// take happen under one lock hold, so a teardown in the window between the
// status change and this call cannot be outrun.
func (s *Session) resyncActive(ctx context.Context, id int64) {
	s.mu.Lock()
	if s.active == nil || s.active.ID != id {
		s.mu.Unlock()
		return
	}
	gen := s.beginLoadLocked()
	s.mu.Unlock()
	s.finishLoad(ctx, id, gen)
}

func (s *Session) beginLoadLocked() uint64 {
	s.loading = true
	s.loadGen++
	return s.loadGen
}

func (s *Session) finishLoad(ctx context.Context, id int64, gen uint64) {
	conv, err := s.gw.GetConversation(ctx, id)

	s.mu.Lock()
	if gen != s.loadGen {
		// superseded by a newer load or a teardown
		s.mu.Unlock()
		return
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		log.Printf("chat: load conversation %d: %v", id, err)
		return
	}

	msgs := conv.Messages
	conv.Messages = nil
	s.messages = make([]*domain.Message, 0, len(msgs))
	s.messageIDs = make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if m == nil || m.ID == 0 {
			continue
		}
		if _, ok := s.messageIDs[m.ID]; ok {
			continue
		}
		s.messageIDs[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
	s.active = conv
	s.bindChannelLocked(conv.ID)
	s.mu.Unlock()

	// viewing consumes unread counts server-side
	go s.RefreshDirectory(context.Background())
}

// appendIfNew is the single choke point for adding a message to the active
// thread. The optimistic send confirmation and the realtime echo of the same
// message both land here, keyed by message id, so duplicate delivery is
// harmless regardless of arrival order. Messages for a conversation other
// than the active one are ignored.
func (s *Session) appendIfNew(msg *domain.Message) {
	if msg == nil || msg.ID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || msg.ConversationID != s.active.ID {
		return
	}
	if _, ok := s.messageIDs[msg.ID]; ok {
		return
	}
	s.messageIDs[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
}

// SendMessage posts a message to the active conversation and ingests the
// server-confirmed object through appendIfNew. Nothing is inserted
// speculatively, so a failure needs no rollback; the error goes back to the
// caller for the retry affordance.
func (s *Session) SendMessage(ctx context.Context, body, msgType string) (*domain.Message, error) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil, domain.ErrNoActiveConversation
	}
	convID := s.active.ID
	s.mu.Unlock()

	msg, err := s.gw.PostMessage(ctx, convID, body, msgType)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	s.appendIfNew(msg)
	// the last-message preview changed
	go s.RefreshDirectory(context.Background())
	return msg, nil
}

// MarkMessageRead notifies the server that a message was read. Best-effort:
// failures are logged, never surfaced.
func (s *Session) MarkMessageRead(ctx context.Context, messageID int64) {
	if err := s.gw.MarkMessageRead(ctx, messageID); err != nil {
		log.Printf("chat: mark message %d read: %v", messageID, err)
	}
}

// BackToList leaves the active thread and returns to the conversation list.
func (s *Session) BackToList() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearThreadLocked()
}

// CloseChat closes the chat surface entirely. Idempotent.
func (s *Session) CloseChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.clearThreadLocked()
}

// clearThreadLocked is the sole teardown path for the active thread: it
// invalidates in-flight loads, clears the message cache, unbinds the
// realtime channel, and resets typing state. Callers hold s.mu.
func (s *Session) clearThreadLocked() {
	s.loadGen++
	s.loading = false
	s.active = nil
	s.messages = nil
	s.messageIDs = make(map[int64]struct{})
	s.unbindChannelLocked()
}
