// Package upstream talks to the video-generation service: a websocket push
// channel streaming per-shot events, and a point-in-time status endpoint used
// as the polling fallback.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vidtrack/internal/domain"
)

// Options controls how the generation-service client is configured.
type Options struct {
	BaseURL          string
	APIKey           string
	HTTPClient       *http.Client
	HandshakeTimeout time.Duration
}

// Client is a thin facade over the generation service's tracking API. It does
// not submit tasks; submission happens outside this engine.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	token      string
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("upstream: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	return &Client{
		httpClient: httpClient,
		dialer:     &websocket.Dialer{HandshakeTimeout: handshake},
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
	}, nil
}

// Channel is one open push stream for a task. Events arrive on Events until
// the stream ends; the channel is closed on server disconnect, decode
// failure, or Close.
type Channel struct {
	events    chan domain.StreamEvent
	conn      *websocket.Conn
	closeOnce sync.Once
}

// Events returns the stream of typed events. The channel closes when the
// push stream ends for any reason.
func (c *Channel) Events() <-chan domain.StreamEvent {
	return c.events
}

// Close tears the socket down. Safe to call more than once and concurrently
// with the read loop.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// OpenEvents dials the push channel for a task. The returned channel's read
// loop runs until the socket closes or ctx is cancelled.
func (c *Client) OpenEvents(ctx context.Context, taskID string) (*Channel, error) {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = fmt.Sprintf("%s/v1/tasks/%s/events", wsURL, taskID)

	var header http.Header
	if c.token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("upstream: dial events for %s: %w", taskID, err)
	}

	ch := &Channel{
		events: make(chan domain.StreamEvent),
		conn:   conn,
	}

	// Close the socket when the caller goes away so the read loop unblocks.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ch.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(done)
		defer close(ch.events)
		defer ch.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			event, err := domain.ParseStreamEvent(data)
			if err != nil {
				// A malformed frame means the channel can no longer be
				// trusted; the consumer falls back to polling.
				return
			}
			select {
			case ch.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Status is the point-in-time answer of the status endpoint. Its terminal
// variants mirror the push channel's complete and error events.
type Status struct {
	Status   string                   `json:"status"`
	Progress int                      `json:"progress,omitempty"`
	Result   *domain.GenerationResult `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// Terminal reports whether the poll answer is final.
func (s Status) Terminal() bool {
	return s.Status == "completed" || s.Status == "error"
}

// TaskStatus polls the task once. A 404 or a pending answer yields
// domain.ErrStatusNotReady, which callers treat as a normal non-terminal
// tick rather than an error.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (Status, error) {
	endpoint := fmt.Sprintf("%s/v1/tasks/%s/status", c.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Status{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("upstream: poll %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Status{}, domain.ErrStatusNotReady
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Status{}, fmt.Errorf("upstream: poll %s: http %d", taskID, resp.StatusCode)
	}

	var out Status
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Status{}, fmt.Errorf("upstream: decode status for %s: %w", taskID, err)
	}
	if out.Status == "" || out.Status == "pending" {
		return Status{}, domain.ErrStatusNotReady
	}
	return out, nil
}
