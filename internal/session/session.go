package session

import (
	"context"
	"sync"

	"github.com/chineduokotu/chris-market-place/internal/domain"
	"github.com/chineduokotu/chris-market-place/internal/realtime"
)

// Session is the conversation session manager: it owns the conversation
// directory, the active thread cache, the realtime channel binding, and the
// typing flags. The UI layer reads its snapshot state and invokes its
// operations; nothing else mutates the cached data.
//
// Every public operation either swallows-and-logs (background refreshes,
// read receipts) or returns the error to the caller (user-initiated actions
// such as starting a conversation or sending a message) - never both.
type Session struct {
	gw        domain.ConversationGateway
	transport realtime.Transport
	clock     Clock
	typing    *typingTracker

	mu            sync.Mutex
	conversations []*domain.Conversation
	unreadTotal   int
	active        *domain.Conversation
	messages      []*domain.Message
	messageIDs    map[int64]struct{}
	open          bool
	loading       bool
	status        domain.ConnectionStatus
	cred          *domain.Credential

	// realtime binding: at most one channel is bound at any time
	channel realtime.Subscription
	unbinds []realtime.UnbindFunc

	// loadGen tags in-flight conversation loads; a completion whose tag no
	// longer matches is stale and must be discarded
	loadGen uint64

	statusUnbind realtime.UnbindFunc
}

type Option func(*Session)

// WithClock substitutes the wall clock, used by tests to drive expiry.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

func New(gw domain.ConversationGateway, transport realtime.Transport, opts ...Option) *Session {
	s := &Session{
		gw:         gw,
		transport:  transport,
		clock:      realClock{},
		status:     domain.StatusUnknown,
		messageIDs: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.typing = newTypingTracker(s.clock, typingWindow)
	s.status = transport.Status()
	s.statusUnbind = transport.OnStatusChange(s.handleStatus)
	return s
}

// SetCredential applies a credential change (login, logout, token refresh).
// The transport's auth header is updated, a bound conversation channel is
// re-bound so its subscription is authorized under the new credential, and
// a directory refresh is kicked off when a credential exists. A nil
// credential (logout) clears all cached chat state.
func (s *Session) SetCredential(cred *domain.Credential) {
	token := ""
	if cred != nil {
		token = cred.Token
	}
	s.transport.SetAuthToken(token)

	s.mu.Lock()
	s.cred = cred
	if cred == nil {
		s.clearThreadLocked()
		s.conversations = nil
		s.unreadTotal = 0
	} else if s.active != nil {
		s.bindChannelLocked(s.active.ID)
	}
	s.mu.Unlock()

	if cred != nil {
		go s.RefreshDirectory(context.Background())
	}
}

// Shutdown tears down everything the session holds. The transport is owned
// by the caller and closed separately.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.open = false
	s.clearThreadLocked()
	s.mu.Unlock()
	if s.statusUnbind != nil {
		s.statusUnbind()
	}
}

func (s *Session) handleStatus(st domain.ConnectionStatus) {
	s.mu.Lock()
	s.status = st
	var activeID int64
	if s.active != nil {
		activeID = s.active.ID
	}
	s.mu.Unlock()

	if st != domain.StatusConnected {
		return
	}
	// reconnect repair: reload wholesale instead of gap-filling missed events
	go func() {
		ctx := context.Background()
		s.RefreshDirectory(ctx)
		if activeID != 0 {
			s.resyncActive(ctx, activeID)
		}
	}()
}

// ── read-only snapshot state ────────────────────────────────────────────────

func (s *Session) Conversations() []*domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

func (s *Session) ActiveConversation() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns value copies: a snapshot never shares mutable message
// state with the session, so a later read receipt cannot touch it.
func (s *Session) Messages() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Message, len(s.messages))
	for i, m := range s.messages {
		cp := *m
		out[i] = &cp
	}
	return out
}

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadTotal
}

func (s *Session) ConnectionStatus() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
