package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chineduokotu/chris-market-place/internal/domain"
)

// Client is the typed REST client for the marketplace backend. The bearer
// token can be swapped at any time (login, logout, refresh); in-flight
// requests keep the token they started with.
type Client struct {
	base  string
	httpc *http.Client

	mu    sync.RWMutex
	token string
}

var _ domain.ConversationGateway = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken replaces the bearer token used for subsequent requests.
// An empty token clears authentication.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%s %s: %s: %w", method, path, msg, domain.ErrUnauthorized)
		case http.StatusForbidden:
			return fmt.Errorf("%s %s: %s: %w", method, path, msg, domain.ErrForbidden)
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %s: %w", method, path, msg, domain.ErrNotFound)
		default:
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *Client) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var conv domain.Conversation
	path := fmt.Sprintf("/api/conversations/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

type conversationCreateRequest struct {
	UserID    int64  `json:"user_id"`
	BookingID *int64 `json:"booking_id,omitempty"`
}

func (c *Client) CreateConversation(ctx context.Context, otherUserID int64, bookingID *int64) (*domain.Conversation, error) {
	var conv domain.Conversation
	req := conversationCreateRequest{UserID: otherUserID, BookingID: bookingID}
	if err := c.do(ctx, http.MethodPost, "/api/conversations", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

type messageCreateRequest struct {
	Body string `json:"body"`
	Type string `json:"type"`
}

func (c *Client) PostMessage(ctx context.Context, conversationID int64, body, msgType string) (*domain.Message, error) {
	if msgType == "" {
		msgType = "text"
	}
	var msg domain.Message
	path := fmt.Sprintf("/api/conversations/%d/messages", conversationID)
	req := messageCreateRequest{Body: body, Type: msgType}
	if err := c.do(ctx, http.MethodPost, path, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) MarkMessageRead(ctx context.Context, messageID int64) error {
	path := fmt.Sprintf("/api/messages/%d/read", messageID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse mirrors the backend's login payload: the user plus a bearer
// token for subsequent requests.
type LoginResponse struct {
	User  *domain.Participant `json:"user"`
	Token string              `json:"token"`
}

// Login authenticates and adopts the returned token for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Logout invalidates the session server-side and drops the local token.
// The server call is best-effort: the token is dropped regardless.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
	c.SetToken("")
	return err
}
