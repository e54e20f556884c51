package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// conn is the slice of *websocket.Conn the registry needs.
type conn interface {
	WriteJSON(v any) error
	Close() error
}

var _ conn = (*websocket.Conn)(nil)

// Registry tracks live connections by session id. One connection per
// session: a reconnect replaces the previous handle, which is abandoned
// rather than closed.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]conn
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{conns: make(map[string]conn), logger: logger}
}

// Connect registers a session's connection. Any previous handle for the
// session is overwritten but left open: its read loop ends on its own when
// the peer goes away, and sends through it are refused by SendJSON.
func (r *Registry) Connect(sessionID string, c conn) {
	r.mu.Lock()
	_, replaced := r.conns[sessionID]
	r.conns[sessionID] = c
	r.mu.Unlock()

	if replaced {
		r.logger.Info("replaced existing connection", zap.String("session_id", sessionID))
	}
}

// Disconnect removes a session's connection. Safe to call repeatedly; it
// only removes the handle that was passed, so a replaced connection's
// deferred disconnect cannot evict its successor.
func (r *Registry) Disconnect(sessionID string, c conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[sessionID]; ok && cur == c {
		delete(r.conns, sessionID)
	}
}

// SendJSON writes an event to a session through a specific handle. It
// reports false without writing when the registry no longer maps the
// session to that handle, so a turn still draining after a reconnect
// cannot leak frames into the replacement connection. The write happens
// under the lock, which also keeps concurrent writers off one socket. A
// write failure deregisters the handle and reports false.
func (r *Registry) SendJSON(sessionID string, c conn, v any) bool {
	r.mu.Lock()
	cur, ok := r.conns[sessionID]
	if !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	err := c.WriteJSON(v)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("write failed, dropping connection",
			zap.String("session_id", sessionID), zap.Error(err))
		r.Disconnect(sessionID, c)
		c.Close()
		return false
	}
	return true
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
