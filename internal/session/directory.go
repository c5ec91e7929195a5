package session

import (
	"context"
	"fmt"
	"log"

	"github.com/chineduokotu/chris-market-place/internal/domain"
)

// RefreshDirectory fetches all conversations and replaces the directory
// wholesale, recomputing the unread total. Fetch failures are logged and
// swallowed: the prior directory stays authoritative, a stale list beats a
// broken one. Concurrent refreshes are last-write-wins, which is safe
// because each one is a full replacement.
func (s *Session) RefreshDirectory(ctx context.Context) {
	convs, err := s.gw.ListConversations(ctx)
	if err != nil {
		log.Printf("chat: refresh directory: %v", err)
		return
	}

	total := 0
	for _, c := range convs {
		total += c.UnreadCount
	}

	s.mu.Lock()
	s.conversations = convs
	s.unreadTotal = total
	s.mu.Unlock()
}

// StartConversation asks the server to get-or-create a conversation with the
// given user (optionally linked to a booking), then refreshes the directory
// and opens the conversation. The create error is returned to the caller:
// this is a user-initiated action and the UI owns the failure affordance.
func (s *Session) StartConversation(ctx context.Context, otherUserID int64, bookingID *int64) (*domain.Conversation, error) {
	conv, err := s.gw.CreateConversation(ctx, otherUserID, bookingID)
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	s.RefreshDirectory(ctx)
	s.LoadConversation(ctx, conv.ID)

	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return conv, nil
}
