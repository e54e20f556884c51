// Package ws implements the streaming chat WebSocket protocol: one
// connection per session, JSON events, strictly sequential turns.
package ws

import (
	"fmt"
	"unicode/utf8"
)

// Message size bounds, counted in characters.
const (
	minContentChars = 1
	maxContentChars = 10000
)

// Error codes sent in stream_error events. Pipeline codes pass through
// verbatim.
const (
	CodeInvalidJSON           = "WS-001-INVALID_JSON"
	CodeValidationError       = "WS-002-VALIDATION_ERROR"
	CodeServiceNotInitialized = "WS-003-SERVICE_NOT_INITIALIZED"
	CodeInternalError         = "WS-999-INTERNAL_ERROR"
)

// Event type tags on server frames.
const (
	TypeStreamStart   = "stream_start"
	TypeStreamToken   = "stream_token"
	TypeStreamSources = "stream_sources"
	TypeStreamEnd     = "stream_end"
	TypeStreamError   = "stream_error"
)

// ClientMessage is an inbound chat request.
type ClientMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

// Validate checks the message against the protocol contract.
func (m *ClientMessage) Validate() error {
	if m.Type != "message" {
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	n := utf8.RuneCountInString(m.Content)
	if n < minContentChars {
		return fmt.Errorf("content must not be empty")
	}
	if n > maxContentChars {
		return fmt.Errorf("content exceeds %d characters", maxContentChars)
	}
	return nil
}

// StreamStart opens a turn.
type StreamStart struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

// StreamToken carries one answer token. Index is 0-based and dense.
type StreamToken struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Token     string `json:"token"`
	Index     int    `json:"index"`
}

// StreamSources lists the documents the answer was grounded on.
type StreamSources struct {
	Type      string           `json:"type"`
	MessageID string           `json:"message_id"`
	Sources   []map[string]any `json:"sources"`
}

// StreamEnd closes a successful turn.
type StreamEnd struct {
	Type             string `json:"type"`
	MessageID        string `json:"message_id"`
	TotalTokens      int    `json:"total_tokens"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

// StreamError closes a failed turn. Solutions always has at least one entry.
type StreamError struct {
	Type      string   `json:"type"`
	MessageID string   `json:"message_id"`
	ErrorCode string   `json:"error_code"`
	Message   string   `json:"message"`
	Solutions []string `json:"solutions"`
}

func newStreamError(messageID, code, message string, solutions ...string) StreamError {
	if len(solutions) == 0 {
		solutions = []string{"Retry the request; contact support if the problem persists"}
	}
	return StreamError{
		Type:      TypeStreamError,
		MessageID: messageID,
		ErrorCode: code,
		Message:   message,
		Solutions: solutions,
	}
}
