package session

import (
	"log"
	"sync"
	"time"

	"github.com/chineduokotu/chris-market-place/internal/realtime"
)

// typingWindow is the quiet period after which a typing flag expires unless
// refreshed by another signal.
const typingWindow = 2500 * time.Millisecond

// typingTracker owns the transient per-user typing flags. A repeated signal
// from the same user replaces the pending expiry timer rather than stacking
// a second one, so the flag's lifetime extends instead of accumulating.
type typingTracker struct {
	clock  Clock
	window time.Duration

	mu      sync.Mutex
	flags   map[int64]bool
	timers  map[int64]Timer
	pending map[int64]uint64
	seq     uint64
}

func newTypingTracker(clock Clock, window time.Duration) *typingTracker {
	return &typingTracker{
		clock:   clock,
		window:  window,
		flags:   make(map[int64]bool),
		timers:  make(map[int64]Timer),
		pending: make(map[int64]uint64),
	}
}

func (t *typingTracker) set(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer := t.timers[userID]; timer != nil {
		timer.Stop()
	}
	// the sequence number keeps an already-fired timer from clearing a flag
	// that was refreshed or re-created after a reset
	t.seq++
	n := t.seq
	t.pending[userID] = n
	t.flags[userID] = true
	t.timers[userID] = t.clock.AfterFunc(t.window, func() { t.expire(userID, n) })
}

func (t *typingTracker) expire(userID int64, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[userID] != n {
		return
	}
	delete(t.flags, userID)
	delete(t.timers, userID)
	delete(t.pending, userID)
}

// reset cancels every pending timer and clears all flags. Called whenever
// the active conversation changes or the chat surface closes.
func (t *typingTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.flags = make(map[int64]bool)
	t.timers = make(map[int64]Timer)
	t.pending = make(map[int64]uint64)
}

func (t *typingTracker) snapshot() map[int64]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64]bool, len(t.flags))
	for id := range t.flags {
		out[id] = true
	}
	return out
}

// SignalTyping emits an ephemeral typing whisper on the active conversation's
// channel. It is fire-and-forget: no local state changes, failures are only
// logged. A no-op when the given conversation is not the active one.
func (s *Session) SignalTyping(conversationID int64) {
	s.mu.Lock()
	ch := s.channel
	var userID int64
	if s.cred != nil {
		userID = s.cred.UserID
	}
	var activeID int64
	if s.active != nil {
		activeID = s.active.ID
	}
	s.mu.Unlock()

	if ch == nil || activeID != conversationID {
		return
	}
	w := realtime.TypingWhisper{
		UserID:         userID,
		ConversationID: conversationID,
		At:             s.clock.Now(),
	}
	if err := ch.Whisper(realtime.WhisperTyping, w); err != nil {
		log.Printf("chat: typing whisper: %v", err)
	}
}

// TypingUsers returns the users currently flagged as typing.
func (s *Session) TypingUsers() map[int64]bool {
	return s.typing.snapshot()
}
