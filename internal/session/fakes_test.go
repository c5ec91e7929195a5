package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chineduokotu/chris-market-place/internal/domain"
	"github.com/chineduokotu/chris-market-place/internal/realtime"
	"github.com/chineduokotu/chris-market-place/internal/session"
)

// fakeClock drives deferred callbacks deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	fired   bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires every due timer, outside the
// clock lock so callbacks may re-arm timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.when.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// fakeGateway is an in-memory stand-in for the marketplace REST API.
type fakeGateway struct {
	mu            sync.Mutex
	conversations []*domain.Conversation
	details       map[int64]*domain.Conversation

	listErr   error
	getErr    error
	postErr   error
	createErr error

	nextMessageID int64
	created       *domain.Conversation

	listCalls int
	getCalls  []int64
	readCalls []int64

	// getGate, when set for an id, blocks GetConversation until released;
	// getEntered, when set, reports the id right before blocking
	getGate    map[int64]chan struct{}
	getEntered chan int64

	// listGate and listEntered do the same for ListConversations
	listGate    chan struct{}
	listEntered chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		details:       make(map[int64]*domain.Conversation),
		getGate:       make(map[int64]chan struct{}),
		nextMessageID: 500,
	}
}

func (g *fakeGateway) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	g.mu.Lock()
	gate := g.listGate
	entered := g.listEntered
	g.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]*domain.Conversation, len(g.conversations))
	copy(out, g.conversations)
	return out, nil
}

func (g *fakeGateway) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	g.mu.Lock()
	gate := g.getGate[id]
	entered := g.getEntered
	g.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- id
		}
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls = append(g.getCalls, id)
	if g.getErr != nil {
		return nil, g.getErr
	}
	conv, ok := g.details[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (g *fakeGateway) CreateConversation(ctx context.Context, otherUserID int64, bookingID *int64) (*domain.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.created != nil {
		return cloneConversation(g.created), nil
	}
	return nil, fmt.Errorf("no conversation configured")
}

func (g *fakeGateway) PostMessage(ctx context.Context, conversationID int64, body, msgType string) (*domain.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.postErr != nil {
		return nil, g.postErr
	}
	g.nextMessageID++
	return &domain.Message{
		ID:             g.nextMessageID,
		ConversationID: conversationID,
		Body:           body,
		Type:           msgType,
		CreatedAt:      time.Now(),
	}, nil
}

func (g *fakeGateway) MarkMessageRead(ctx context.Context, messageID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readCalls = append(g.readCalls, messageID)
	return nil
}

func (g *fakeGateway) listCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls
}

func (g *fakeGateway) getCallsFor(id int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.getCalls {
		if c == id {
			n++
		}
	}
	return n
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	if len(c.Messages) > 0 {
		out.Messages = make([]*domain.Message, len(c.Messages))
		for i, m := range c.Messages {
			cp := *m
			out.Messages[i] = &cp
		}
	}
	return &out
}

// fakeTransport records subscriptions and lets tests push events and flip the
// connection status.
type fakeTransport struct {
	mu        sync.Mutex
	status    domain.ConnectionStatus
	token     string
	subs      map[string]*fakeSub
	left      []string
	observers map[int]func(domain.ConnectionStatus)
	nextObs   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status:    domain.StatusUnknown,
		subs:      make(map[string]*fakeSub),
		observers: make(map[int]func(domain.ConnectionStatus)),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error { return nil }
func (t *fakeTransport) Close() error                      { return nil }

func (t *fakeTransport) Subscribe(channel string) (realtime.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subs[channel]; ok {
		return sub, nil
	}
	sub := &fakeSub{transport: t, channel: channel, handlers: make(map[string]map[int]realtime.EventHandler)}
	t.subs[channel] = sub
	return sub, nil
}

func (t *fakeTransport) SetAuthToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

func (t *fakeTransport) OnStatusChange(fn func(domain.ConnectionStatus)) realtime.UnbindFunc {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.observers, id)
	}
}

func (t *fakeTransport) Status() domain.ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// setStatus flips the connection status and notifies observers, as the real
// transport does from its read loop.
func (t *fakeTransport) setStatus(st domain.ConnectionStatus) {
	t.mu.Lock()
	t.status = st
	fns := make([]func(domain.ConnectionStatus), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// bound returns the channels currently subscribed (not yet left).
func (t *fakeTransport) bound() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subs))
	for name := range t.subs {
		out = append(out, name)
	}
	return out
}

func (t *fakeTransport) sub(channel string) *fakeSub {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[channel]
}

func (t *fakeTransport) leftChannels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.left))
	copy(out, t.left)
	return out
}

type fakeSub struct {
	transport *fakeTransport
	channel   string

	mu       sync.Mutex
	handlers map[string]map[int]realtime.EventHandler
	nextID   int
	whispers []whisperRecord
}

type whisperRecord struct {
	event   string
	payload any
}

func (s *fakeSub) Channel() string { return s.channel }

func (s *fakeSub) Bind(event string, fn realtime.EventHandler) realtime.UnbindFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]realtime.EventHandler)
	}
	id := s.nextID
	s.nextID++
	s.handlers[event][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[event], id)
	}
}

func (s *fakeSub) Whisper(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whispers = append(s.whispers, whisperRecord{event: event, payload: payload})
	return nil
}

func (s *fakeSub) Leave() {
	s.transport.mu.Lock()
	if s.transport.subs[s.channel] == s {
		delete(s.transport.subs, s.channel)
	}
	s.transport.left = append(s.transport.left, s.channel)
	s.transport.mu.Unlock()

	s.mu.Lock()
	s.handlers = make(map[string]map[int]realtime.EventHandler)
	s.mu.Unlock()
}

// emit pushes a server event to all bound handlers, as the transport read
// loop would.
func (s *fakeSub) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	var fns []realtime.EventHandler
	for _, fn := range s.handlers[event] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(data))
	}
}

func (s *fakeSub) whisperCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.whispers)
}
