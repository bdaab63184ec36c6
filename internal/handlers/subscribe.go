package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/events"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/security"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// SubscribeHandler streams cluster events over a WebSocket.
type SubscribeHandler struct {
	broadcaster *events.Broadcaster
	upgrader    websocket.Upgrader
	pingPeriod  time.Duration
	log         *logger.Logger
}

// NewSubscribeHandler creates a SubscribeHandler. The upgrader applies
// checker as a second line behind the origin middleware.
func NewSubscribeHandler(b *events.Broadcaster, checker *security.OriginChecker, log *logger.Logger) *SubscribeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SubscribeHandler{
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checker.CheckOrigin,
			Error:           upgradeError,
		},
		pingPeriod: pingPeriod,
		log:        log,
	}
}

// upgradeError answers a failed handshake with the API error envelope.
func upgradeError(w http.ResponseWriter, _ *http.Request, status int, reason error) {
	apierror.Write(w, status, apierror.CodeFor(status), reason.Error())
}

// Subscribe handles GET /v3/subscribe.
// The subscription is registered before the handshake completes so a client
// sees every event published after its dial returns.
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	sub := h.broadcaster.Subscribe()
	defer sub.Unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.log.Debug("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	metrics.WebSocketSubscribers.Inc()
	defer metrics.WebSocketSubscribers.Dec()

	h.log.Debug("subscriber connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go h.readPump(conn, done)

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump discards client messages and keeps the read deadline fresh on
// every pong. It closes done when the peer goes away.
func (h *SubscribeHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("subscriber read error", "error", err.Error())
			}
			return
		}
	}
}
