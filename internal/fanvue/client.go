// Package fanvue implements a thin HTTP client for the Fanvue platform API.
// Each client is scoped to one account's credentials; credentials are never
// shared across accounts.
package fanvue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Errors reported by the platform client.
var (
	// ErrNetwork indicates a transport failure or unexpected platform response.
	ErrNetwork = errors.New("fanvue network failure")
	// ErrAuth indicates an expired or invalid API key.
	ErrAuth = errors.New("fanvue authentication failure")
	// ErrRateLimited indicates the platform rejected the call with HTTP 429.
	ErrRateLimited = errors.New("fanvue rate limited")
)

const (
	headerAPIKey     = "X-Fanvue-API-Key"
	headerAPIVersion = "X-Fanvue-API-Version"
)

// Client issues authenticated calls against the Fanvue REST API for a
// single account. All calls are synchronous HTTP with a fixed timeout.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	apiVersion   string
	messageLimit int
	logger       *slog.Logger

	mu   sync.Mutex
	self string // cached own uuid, used for the sender-role check
}

// NewClient creates a platform client for one account's API key.
func NewClient(baseURL, apiVersion, apiKey string, messageLimit int, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		apiVersion:   apiVersion,
		messageLimit: messageLimit,
		logger:       logger.With("component", "fanvue_client"),
	}
}

// CurrentUser returns the account's own platform identity.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.get(ctx, "/users/me", &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ListSubscribers returns all of the account's subscribers, following the
// platform's pagination until exhausted.
func (c *Client) ListSubscribers(ctx context.Context) ([]User, error) {
	var subscribers []User
	for page := 1; ; page++ {
		var resp subscriberPage
		if err := c.get(ctx, fmt.Sprintf("/subscribers?page=%d", page), &resp); err != nil {
			return nil, err
		}
		subscribers = append(subscribers, resp.Data...)
		if !resp.Pagination.HasMore {
			break
		}
	}
	return subscribers, nil
}

// chatMessages returns the most recent messages of the conversation with
// one subscriber, including the account's own messages.
func (c *Client) chatMessages(ctx context.Context, subscriberUUID string) ([]wireMessage, error) {
	path := fmt.Sprintf("/chats/%s/messages?page=1&limit=%d", url.PathEscape(subscriberUUID), c.messageLimit)
	var resp messagePage
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FetchNewMessages fetches the recent messages of every subscriber
// conversation and returns the subscriber-authored ones in chronological
// order, each carrying its conversation's recent history. Media-only and
// blank messages are dropped; there is nothing to answer in them. Each call
// re-fetches from the platform; there is no cursor, so the caller is
// expected to filter already-answered ids itself.
func (c *Client) FetchNewMessages(ctx context.Context) ([]Message, error) {
	self, err := c.selfUUID(ctx)
	if err != nil {
		return nil, err
	}

	subscribers, err := c.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, sub := range subscribers {
		raw, err := c.chatMessages(ctx, sub.UUID)
		if err != nil {
			return nil, err
		}

		// The platform serves newest first; history reads oldest first.
		sort.SliceStable(raw, func(i, j int) bool {
			return raw[i].SentAt.Before(raw[j].SentAt)
		})

		history := make([]Turn, 0, len(raw))
		for _, m := range raw {
			text := strings.TrimSpace(m.Text)
			if text == "" {
				continue
			}
			history = append(history, Turn{FromSelf: m.Sender.UUID == self, Text: text})
		}

		for _, m := range raw {
			// Sender-role check, not a heuristic: own messages are
			// excluded by comparing sender uuid against /users/me.
			if m.Sender.UUID == self {
				continue
			}
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			messages = append(messages, Message{
				ID:             m.UUID,
				ConversationID: sub.UUID,
				SenderHandle:   sub.Handle,
				Text:           m.Text,
				SentAt:         m.SentAt,
				FromSelf:       false,
				History:        history,
			})
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})

	c.logger.DebugContext(ctx, "Fetched subscriber messages",
		"subscribers", len(subscribers), "messages", len(messages))
	return messages, nil
}

// SendReply delivers a message into the conversation with one subscriber.
func (c *Client) SendReply(ctx context.Context, conversationID, text string) error {
	path := fmt.Sprintf("/chats/%s/message", url.PathEscape(conversationID))
	return c.post(ctx, path, map[string]string{"text": text}, nil)
}

// selfUUID returns the account's own uuid, fetching it once and caching it
// for the lifetime of the client.
func (c *Client) selfUUID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.self != "" {
		return c.self, nil
	}
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if user.UUID == "" {
		return "", fmt.Errorf("%w: platform returned empty user uuid", ErrNetwork)
	}
	c.self = user.UUID
	return c.self, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do issues one authenticated request and decodes the JSON response into
// out (when non-nil). Platform status codes are mapped onto the client's
// error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode request body: %v", ErrNetwork, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrNetwork, err)
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerAPIVersion, c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := statusError(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s %s returned %d", err, method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s response: %v", ErrNetwork, method, path, err)
	}
	return nil
}

// statusError maps a platform HTTP status onto the client error taxonomy.
// Success statuses map to nil.
func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrNetwork
	}
}
