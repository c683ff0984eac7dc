package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizrelay/internal/config"
	"quizrelay/pkg/interfaces"
)

// Sink receives inbound frames and lifecycle events. Implemented by the hub;
// an interface here keeps the transport layer free of routing logic.
type Sink interface {
	Submit(conn interfaces.Conn, data []byte)
	Disconnect(conn interfaces.Conn)
}

var upgrader = websocket.Upgrader{
	// The relay serves browser userscripts from arbitrary quiz pages, so any
	// origin is accepted. Identity is claim-based either way.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests and runs the per-socket read pump. Sockets
// connect unidentified; the router assigns (role, id) from the first
// *_connect frame.
type Handler struct {
	cfg  *config.WebSocketConfig
	sink Sink
	log  *zap.Logger
}

// NewHandler creates a WebSocket handler feeding the given sink.
func NewHandler(cfg *config.WebSocketConfig, sink Sink, log *zap.Logger) *Handler {
	return &Handler{
		cfg:  cfg,
		sink: sink,
		log:  log,
	}
}

// HandleWebSocket upgrades the request and serves the socket until it closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(raw, h.cfg.BufferSize, h.cfg.WriteTimeout)
	h.log.Debug("socket connected", zap.String("remote", raw.RemoteAddr().String()))

	go h.readPump(conn)
}

func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.sink.Disconnect(conn)
		_ = conn.Close()
		h.log.Debug("socket closed",
			zap.String("role", conn.Role()),
			zap.String("id", conn.ClientID()))
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		conn.markAlive()
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("socket read error", zap.Error(err))
			}
			return
		}

		// Any inbound traffic counts as liveness, not just pong frames.
		conn.markAlive()
		if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
			return
		}

		if messageType == websocket.TextMessage {
			h.sink.Submit(conn, data)
		}
	}
}
