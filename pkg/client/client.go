package ragstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType tags events delivered by Ask.
type EventType string

const (
	// EventStart opens a turn.
	EventStart EventType = "start"
	// EventToken carries one answer token.
	EventToken EventType = "token"
	// EventSources lists the documents the answer was grounded on.
	EventSources EventType = "sources"
	// EventEnd closes a successful turn.
	EventEnd EventType = "end"
	// EventError closes a failed turn or reports a protocol error.
	EventError EventType = "error"
)

// Event is one step of a streamed answer. Fields are populated per Type.
type Event struct {
	Type EventType

	// EventToken
	Token string
	Index int

	// EventSources
	Sources []map[string]any

	// EventEnd
	TotalTokens      int
	ProcessingTimeMS int64

	// EventError
	Code      string
	Message   string
	Solutions []string
}

// Err converts an error event into an error value.
func (e Event) Err() error {
	if e.Type != EventError {
		return nil
	}
	return fmt.Errorf("ragstream: %s: %s", e.Code, e.Message)
}

// Client is a WebSocket connection bound to one chat session.
// It is not safe for concurrent Ask calls; turns are sequential by protocol.
type Client struct {
	conn      *websocket.Conn
	sessionID string
}

type clientConfig struct {
	apiKey           string
	handshakeTimeout time.Duration
	header           http.Header
}

// Option configures a Client.
type Option func(*clientConfig)

// WithAPIKey authenticates the connection with a bearer key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.handshakeTimeout = d }
}

// WithHeader sets extra handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *clientConfig) { c.header = h }
}

// New dials the chat endpoint and binds the session.
// baseURL is the server root, e.g. "ws://localhost:8080".
func New(ctx context.Context, baseURL, sessionID string, opts ...Option) (*Client, error) {
	if sessionID == "" {
		return nil, errors.New("ragstream: session id required")
	}

	cfg := &clientConfig{handshakeTimeout: 10 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/chat-ws")
	if err != nil {
		return nil, fmt.Errorf("ragstream: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	q.Set("session_id", sessionID)
	if cfg.apiKey != "" {
		q.Set("token", cfg.apiKey)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), cfg.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ragstream: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("ragstream: dial failed: %w", err)
	}

	return &Client{conn: conn, sessionID: sessionID}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ask sends one question and streams the answer. The returned channel is
// closed after the terminal event (end or error). Ask must not be called
// again until the previous turn's channel is drained.
func (c *Client) Ask(ctx context.Context, content string) (<-chan Event, error) {
	msg := map[string]string{
		"type":       "message",
		"message_id": uuid.NewString(),
		"content":    content,
		"session_id": c.sessionID,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("ragstream: send message: %w", err)
	}

	events := make(chan Event, 16)
	go c.readTurn(ctx, events)
	return events, nil
}

// wire frame shapes, kept in sync with the server protocol
type frame struct {
	Type             string           `json:"type"`
	Token            string           `json:"token"`
	Index            int              `json:"index"`
	Sources          []map[string]any `json:"sources"`
	TotalTokens      int              `json:"total_tokens"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
	ErrorCode        string           `json:"error_code"`
	Message          string           `json:"message"`
	Solutions        []string         `json:"solutions"`
}

func (c *Client) readTurn(ctx context.Context, events chan<- Event) {
	defer close(events)

	for {
		if deadline, ok := ctx.Deadline(); ok {
			_ = c.conn.SetReadDeadline(deadline)
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			events <- Event{Type: EventError, Code: "CLIENT-READ", Message: err.Error()}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			events <- Event{Type: EventError, Code: "CLIENT-DECODE", Message: err.Error()}
			return
		}

		switch f.Type {
		case "stream_start":
			events <- Event{Type: EventStart}
		case "stream_token":
			events <- Event{Type: EventToken, Token: f.Token, Index: f.Index}
		case "stream_sources":
			events <- Event{Type: EventSources, Sources: f.Sources}
		case "stream_end":
			events <- Event{Type: EventEnd, TotalTokens: f.TotalTokens, ProcessingTimeMS: f.ProcessingTimeMS}
			return
		case "stream_error":
			events <- Event{
				Type: EventError, Code: f.ErrorCode,
				Message: f.Message, Solutions: f.Solutions,
			}
			return
		default:
			// Unknown frame types are skipped.
		}
	}
}
