package wshandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"alert-service/internal/domain"
	"alert-service/pkg/hub"
)

const (
	readLimit    = 4096
	readDeadline = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens at the CORS layer; the floor clients
		// connect from kiosk browsers with varying origins.
		return true
	},
}

// clientMessage is the frame clients send; only subscribe is defined.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type WSHandler struct {
	hub    *hub.Hub
	logger *zap.Logger
}

func NewWSHandler(h *hub.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: h, logger: logger}
}

// HandleAlerts upgrades the request and runs the read loop. The
// connection starts unsubscribed: it receives broadcasts immediately and
// scoped records only after it declares a subscription context.
func (h *WSHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	c := h.hub.Add(ws)
	defer h.hub.Remove(c)

	ws.SetReadLimit(readLimit)
	ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		c.Touch()
		ws.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("ws read failed", zap.Error(err))
			}
			return
		}
		c.Touch()
		ws.SetReadDeadline(time.Now().Add(readDeadline))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("ws bad frame", zap.Error(err))
			continue
		}
		switch msg.Type {
		case "subscribe":
			var sub domain.SubscribeContext
			if err := json.Unmarshal(msg.Data, &sub); err != nil {
				h.logger.Warn("ws bad subscribe", zap.Error(err))
				continue
			}
			h.hub.Subscribe(c, sub)
		default:
			h.logger.Debug("ws ignoring frame", zap.String("type", msg.Type))
		}
	}
}
