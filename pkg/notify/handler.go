package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/pkg/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxCommandSize = 1024
	sendBuffer     = 64
)

// command is a client-to-server control message.
type command struct {
	Action string   `json:"action"`
	Token  string   `json:"token,omitempty"`
	Tokens []string `json:"tokens,omitempty"` // optional price filter by token address
}

const (
	actionSubscribeTransactions = "subscribe_transactions"
	actionSubscribePrices       = "subscribe_prices"
)

// Handler upgrades HTTP connections and runs the per-connection pumps.
// Transaction subscriptions require a session token inside the subscribe
// command; price subscriptions are public.
type Handler struct {
	hub    *Hub
	issuer *auth.Issuer
	logger *zap.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to the hub.
func NewHandler(hub *Hub, issuer *auth.Issuer, logger *zap.Logger) *Handler {
	return &Handler{
		hub:    hub,
		issuer: issuer,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser client connects from a different origin than the API.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection and serves it until either side closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	h.hub.register <- c

	go h.writePump(c)
	h.readPump(c)
}

// readPump consumes subscribe commands until the connection drops.
func (h *Handler) readPump(c *client) {
	defer func() {
		h.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.sendError(c, "invalid command")
			continue
		}

		switch cmd.Action {
		case actionSubscribeTransactions:
			userID, err := h.issuer.ValidateToken(cmd.Token)
			if err != nil {
				h.sendError(c, "invalid or expired token")
				continue
			}
			h.hub.subscribe <- subscription{c: c, userID: userID}

		case actionSubscribePrices:
			h.hub.subscribe <- subscription{c: c, prices: true, tokens: cmd.Tokens}

		default:
			h.sendError(c, "unknown action")
		}
	}
}

func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendError(c *client, msg string) {
	select {
	case c.send <- Message{Type: MessageError, Error: msg}:
	default:
	}
}
