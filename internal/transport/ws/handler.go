package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/metrics"
	"github.com/kailas-cloud/ragstream/internal/usecase/chat"
)

// ChatService runs one conversational turn and streams its events.
type ChatService interface {
	StreamTurn(ctx context.Context, content, sessionID string) <-chan chat.Event
}

// Handler upgrades chat WebSocket connections and drives turns. A nil
// service keeps the endpoint up but answers every message with
// SERVICE_NOT_INITIALIZED.
type Handler struct {
	service  ChatService
	registry *Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates the WebSocket chat handler.
func NewHandler(service ChatService, registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /chat-ws?session_id=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id query parameter is required", http.StatusBadRequest)
		return
	}

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	log := h.logger.With(zap.String("session_id", sessionID))
	h.registry.Connect(sessionID, c)
	metrics.WSConnectionsActive.Inc()
	defer func() {
		h.registry.Disconnect(sessionID, c)
		c.Close()
		metrics.WSConnectionsActive.Dec()
		log.Info("connection closed")
	}()
	log.Info("connection established")

	snd := &registrySender{registry: h.registry, sessionID: sessionID, conn: c}
	h.readLoop(r.Context(), c, snd, sessionID, log)
}

// readLoop processes inbound messages sequentially. Protocol-level errors
// answer with a stream_error and keep the connection open; only transport
// errors end the loop.
func (h *Handler) readLoop(ctx context.Context, c *websocket.Conn, snd sender, sessionID string, log *zap.Logger) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("read failed", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			snd.send(newStreamError("", CodeInvalidJSON, "message is not valid JSON",
				"Send a JSON object like {\"type\":\"message\",\"content\":\"...\"}"))
			continue
		}
		msg.SessionID = sessionID

		if err := msg.Validate(); err != nil {
			snd.send(newStreamError(msg.MessageID, CodeValidationError, err.Error(),
				"Content must be 1 to 10000 characters"))
			continue
		}

		if h.service == nil {
			snd.send(newStreamError(msg.MessageID, CodeServiceNotInitialized,
				"chat service is not available",
				"Check the server logs for startup errors"))
			continue
		}

		runTurn(ctx, h.service, snd, msg, log)
	}
}

// sender abstracts event delivery so the turn state machine is testable
// without sockets. send reports false when the connection is gone.
type sender interface {
	send(v any) bool
}

// registrySender delivers frames through the handle it was created for.
// Once the registry maps the session to a different connection every send
// reports false, which makes the turn drain instead of stream.
type registrySender struct {
	registry  *Registry
	sessionID string
	conn      conn
}

func (s *registrySender) send(v any) bool {
	return s.registry.SendJSON(s.sessionID, s.conn, v)
}

// runTurn drives one validated message through the chat pipeline,
// translating events to protocol frames. A panic anywhere in the turn is
// answered with an internal error instead of dropping the connection.
func runTurn(ctx context.Context, svc ChatService, snd sender, msg ClientMessage, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during turn", zap.Any("panic", r))
			snd.send(newStreamError(msg.MessageID, CodeInternalError, "internal server error"))
			metrics.WSTurnsTotal.WithLabelValues("error").Inc()
		}
	}()

	started := time.Now()
	alive := snd.send(StreamStart{
		Type:      TypeStreamStart,
		MessageID: msg.MessageID,
		SessionID: msg.SessionID,
		Timestamp: started.UTC().Format(time.RFC3339),
	})

	tokens := 0
	status := "success"
	for ev := range svc.StreamTurn(ctx, msg.Content, msg.SessionID) {
		if !alive {
			// connection gone: drain the turn without sending
			continue
		}
		switch ev.Type {
		case chat.EventMetadata:
			log.Debug("turn metadata", zap.Any("metadata", ev.Metadata))

		case chat.EventChunk:
			alive = snd.send(StreamToken{
				Type:      TypeStreamToken,
				MessageID: msg.MessageID,
				Token:     ev.Chunk,
				Index:     tokens,
			})
			tokens++
			if alive {
				metrics.WSTokensStreamedTotal.Inc()
			}

		case chat.EventDone:
			alive = snd.send(StreamSources{
				Type:      TypeStreamSources,
				MessageID: msg.MessageID,
				Sources:   ev.Sources,
			})
			if alive {
				snd.send(StreamEnd{
					Type:             TypeStreamEnd,
					MessageID:        msg.MessageID,
					TotalTokens:      tokens,
					ProcessingTimeMS: time.Since(started).Milliseconds(),
				})
			}

		case chat.EventError:
			status = "error"
			snd.send(newStreamError(msg.MessageID, ev.Code, ev.Message, ev.Solutions...))
		}
	}
	metrics.WSTurnsTotal.WithLabelValues(status).Inc()
}
