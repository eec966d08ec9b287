package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DialogueSink receives validated dialogue lines injected over the
// websocket. The chat orchestrator implements it.
type DialogueSink interface {
	IngestExternalDialogue(ctx context.Context, line *DialogueLine) error
}

const writeWait = 10 * time.Second

// wsConn wraps a gorilla connection with a write lock so broadcasts and
// control frames never interleave.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// WSHandler upgrades dialogue websocket requests, registers listeners,
// and reads injected dialogue lines until the peer goes away.
type WSHandler struct {
	registry *Registry
	sink     DialogueSink
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates a WSHandler. Origin checking is left open; the
// listener endpoint carries no credentials.
func NewWSHandler(registry *Registry, sink DialogueSink, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		sink:     sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP handles one websocket session.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.New().String()
	c := &wsConn{ws: ws}
	h.registry.AddConn(id, c)

	// Greet the new listener so clients can confirm the stream is live.
	status := NewEnvelope(KindDialogueWSStatus, map[string]any{
		"status":  "connected",
		"conn_id": id,
	})
	if data, err := status.Marshal(); err == nil {
		if err := c.WriteText(data); err != nil {
			h.registry.RemoveConn(id)
			c.Close()
			return
		}
	}

	h.readLoop(r.Context(), id, c)
}

// readLoop consumes injected dialogue lines. A malformed line is logged
// and dropped; the connection stays open. Read errors end the session.
func (h *WSHandler) readLoop(ctx context.Context, id string, c *wsConn) {
	defer func() {
		h.registry.RemoveConn(id)
		c.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("dialogue websocket read error",
					zap.String("conn", id), zap.Error(err))
			}
			return
		}

		var line DialogueLine
		if err := json.Unmarshal(data, &line); err != nil {
			h.logger.Warn("dropping undecodable dialogue line",
				zap.String("conn", id), zap.Error(err))
			continue
		}
		if err := line.Validate(); err != nil {
			h.logger.Warn("dropping invalid dialogue line",
				zap.String("conn", id), zap.Error(err))
			continue
		}
		if line.Timestamp.IsZero() {
			line.Timestamp = time.Now()
		}

		if h.sink != nil {
			if err := h.sink.IngestExternalDialogue(ctx, &line); err != nil {
				h.logger.Warn("dialogue injection rejected",
					zap.String("conn", id),
					zap.String("npc", line.NPCName),
					zap.Error(err))
			}
		}
	}
}
