package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chineduokotu/chris-market-place/internal/domain"
)

const (
	defaultPingInterval = 30 * time.Second
	maxReconnectBackoff = 30 * time.Second
	// after this many failed reconnect attempts the status degrades from
	// disconnected to unavailable; the transport keeps retrying regardless
	unavailableAfter = 3
)

var errNotConnected = errors.New("realtime: not connected")

// Options configures a PusherTransport.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:8080/app/servicehub-key.
	URL string
	// AuthEndpoint authorizes private-channel subscriptions.
	AuthEndpoint string
	HTTPClient   *http.Client
	PingInterval time.Duration
}

// frame is the wire envelope shared by all traffic in both directions.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PusherTransport speaks a pusher-style protocol over a gorilla websocket
// connection: subscribe/unsubscribe envelopes, "client-" prefixed whispers,
// private channels authorized through an HTTP endpoint with the bearer
// credential. It reconnects with backoff after a drop and re-subscribes all
// registered channels once the new connection is established.
type PusherTransport struct {
	opts  Options
	httpc *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	status    domain.ConnectionStatus
	authToken string
	socketID  string
	subs      map[string]*channelSub
	statusFns map[string]func(domain.ConnectionStatus)
	closed    bool
}

var _ Transport = (*PusherTransport)(nil)

func NewPusherTransport(opts Options) *PusherTransport {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &PusherTransport{
		opts:      opts,
		httpc:     httpc,
		status:    domain.StatusUnknown,
		subs:      make(map[string]*channelSub),
		statusFns: make(map[string]func(domain.ConnectionStatus)),
	}
}

func (t *PusherTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrTransportClosed
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.setStatus(domain.StatusConnecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.opts.URL, nil)
	if err != nil {
		t.setStatus(domain.StatusError)
		return fmt.Errorf("dial %s: %w", t.opts.URL, err)
	}
	t.adopt(conn)
	return nil
}

func (t *PusherTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	t.setStatus(domain.StatusDisconnected)
	return nil
}

func (t *PusherTransport) SetAuthToken(token string) {
	t.mu.Lock()
	t.authToken = token
	t.mu.Unlock()
}

func (t *PusherTransport) Status() domain.ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *PusherTransport) OnStatusChange(fn func(domain.ConnectionStatus)) UnbindFunc {
	id := uuid.NewString()
	t.mu.Lock()
	t.statusFns[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.statusFns, id)
		t.mu.Unlock()
	}
}

func (t *PusherTransport) Subscribe(channel string) (Subscription, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, domain.ErrTransportClosed
	}
	if sub, ok := t.subs[channel]; ok {
		t.mu.Unlock()
		return sub, nil
	}
	sub := &channelSub{
		t:        t,
		channel:  channel,
		handlers: make(map[string]map[string]EventHandler),
	}
	t.subs[channel] = sub
	connected := t.conn != nil && t.status == domain.StatusConnected
	t.mu.Unlock()

	if connected {
		// failure is non-fatal: the subscription is registered and will be
		// replayed on the next connection_established
		if err := t.sendSubscribe(channel); err != nil {
			log.Printf("realtime: subscribe %s: %v", channel, err)
		}
	}
	return sub, nil
}

func (t *PusherTransport) adopt(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	go t.readLoop(conn)
	go t.pingLoop(conn)
}

func (t *PusherTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		t.handleFrame(data)
	}
	conn.Close()

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	t.setStatus(domain.StatusDisconnected)
	go t.reconnectLoop()
}

func (t *PusherTransport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		current := t.conn == conn && !t.closed
		t.mu.Unlock()
		if !current {
			return
		}
		if err := t.writeFrame(frame{Event: "pusher:ping"}); err != nil {
			return
		}
	}
}

func (t *PusherTransport) reconnectLoop() {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}

		time.Sleep(backoff)
		conn, _, err := websocket.DefaultDialer.Dial(t.opts.URL, nil)
		if err == nil {
			t.adopt(conn)
			return
		}
		log.Printf("realtime: reconnect attempt %d failed: %v", attempt, err)
		if attempt >= unavailableAfter {
			t.setStatus(domain.StatusUnavailable)
		}
		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

func (t *PusherTransport) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("realtime: dropping malformed frame: %v", err)
		return
	}

	switch f.Event {
	case "pusher:connection_established":
		var d struct {
			SocketID string `json:"socket_id"`
		}
		_ = json.Unmarshal(f.Data, &d)
		t.mu.Lock()
		if d.SocketID != "" {
			t.socketID = d.SocketID
		} else if t.socketID == "" {
			t.socketID = uuid.NewString()
		}
		channels := make([]string, 0, len(t.subs))
		for ch := range t.subs {
			channels = append(channels, ch)
		}
		t.mu.Unlock()

		t.setStatus(domain.StatusConnected)
		for _, ch := range channels {
			if err := t.sendSubscribe(ch); err != nil {
				log.Printf("realtime: resubscribe %s: %v", ch, err)
			}
		}

	case "pusher:pong", "pusher_internal:subscription_succeeded":
		// nothing to do

	case "pusher:error":
		log.Printf("realtime: broker error: %s", string(f.Data))
		t.setStatus(domain.StatusError)

	default:
		if f.Channel == "" {
			return
		}
		t.mu.Lock()
		sub := t.subs[f.Channel]
		t.mu.Unlock()
		if sub == nil {
			return
		}
		sub.dispatch(strings.TrimPrefix(f.Event, "client-"), f.Data)
	}
}

func (t *PusherTransport) setStatus(st domain.ConnectionStatus) {
	t.mu.Lock()
	if t.status == st {
		t.mu.Unlock()
		return
	}
	t.status = st
	fns := make([]func(domain.ConnectionStatus), 0, len(t.statusFns))
	for _, fn := range t.statusFns {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (t *PusherTransport) writeFrame(f frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrTransportClosed
	}
	if t.conn == nil {
		return errNotConnected
	}
	return t.conn.WriteJSON(f)
}

func (t *PusherTransport) sendSubscribe(channel string) error {
	auth := ""
	if strings.HasPrefix(channel, "private-") {
		a, err := t.authorize(channel)
		if err != nil {
			return fmt.Errorf("authorize %s: %w", channel, err)
		}
		auth = a
	}
	data, err := json.Marshal(map[string]string{"channel": channel, "auth": auth})
	if err != nil {
		return err
	}
	return t.writeFrame(frame{Event: "pusher:subscribe", Data: data})
}

// authorize asks the backend to sign a private-channel subscription for this
// socket, presenting the current bearer credential.
func (t *PusherTransport) authorize(channel string) (string, error) {
	t.mu.Lock()
	token := t.authToken
	socketID := t.socketID
	endpoint := t.opts.AuthEndpoint
	t.mu.Unlock()

	if endpoint == "" {
		return "", errors.New("no auth endpoint configured")
	}

	body, err := json.Marshal(map[string]string{
		"socket_id":    socketID,
		"channel_name": channel,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("auth endpoint returned %d: %w", resp.StatusCode, domain.ErrForbidden)
	}
	var out struct {
		Auth string `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Auth, nil
}

func (t *PusherTransport) leave(channel string) {
	t.mu.Lock()
	delete(t.subs, channel)
	t.mu.Unlock()

	data, err := json.Marshal(map[string]string{"channel": channel})
	if err != nil {
		return
	}
	if err := t.writeFrame(frame{Event: "pusher:unsubscribe", Data: data}); err != nil && !errors.Is(err, errNotConnected) && !errors.Is(err, domain.ErrTransportClosed) {
		log.Printf("realtime: unsubscribe %s: %v", channel, err)
	}
}

// channelSub is one channel subscription. Handlers are keyed by a binding id
// so each Bind can be released independently.
type channelSub struct {
	t       *PusherTransport
	channel string

	mu       sync.Mutex
	handlers map[string]map[string]EventHandler
	left     bool
}

var _ Subscription = (*channelSub)(nil)

func (s *channelSub) Channel() string { return s.channel }

func (s *channelSub) Bind(event string, fn EventHandler) UnbindFunc {
	id := uuid.NewString()
	s.mu.Lock()
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[string]EventHandler)
	}
	s.handlers[event][id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if m := s.handlers[event]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(s.handlers, event)
			}
		}
		s.mu.Unlock()
	}
}

func (s *channelSub) Whisper(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode whisper: %w", err)
	}
	return s.t.writeFrame(frame{Event: "client-" + event, Channel: s.channel, Data: data})
}

func (s *channelSub) Leave() {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return
	}
	s.left = true
	s.handlers = make(map[string]map[string]EventHandler)
	s.mu.Unlock()
	s.t.leave(s.channel)
}

// dispatch copies the handler set before invoking so handlers may bind or
// unbind from inside a callback.
func (s *channelSub) dispatch(event string, data json.RawMessage) {
	s.mu.Lock()
	fns := make([]EventHandler, 0, len(s.handlers[event]))
	for _, fn := range s.handlers[event] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}
