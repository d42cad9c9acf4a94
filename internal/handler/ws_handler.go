package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ehr051/MAIRA-sub004/internal/auth"
	"github.com/Ehr051/MAIRA-sub004/internal/game"
	"github.com/Ehr051/MAIRA-sub004/internal/service"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// WSHandler handles WebSocket connections. Besides the session event
// feed, it accepts game actions from subscribed clients and dispatches
// them to the live match.
type WSHandler struct {
	hub     *Hub
	jwtMgr  *auth.JWTManager
	matches *service.MatchService
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, matches *service.MatchService) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, matches: matches}
}

// ServeWS handles GET /api/v1/ws, upgrading to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	// Send a welcome message so the client can confirm the connection is live.
	welcome, _ := json.Marshal(map[string]any{
		"type":       "connected",
		"session_id": "",
		"data":       map[string]any{},
	})
	client.send <- welcome

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			if msg.SessionID != "" {
				h.hub.Subscribe(c, msg.SessionID)
			}
		case "unsubscribe":
			if msg.SessionID != "" {
				h.hub.Unsubscribe(c, msg.SessionID)
			}
		case "action":
			h.dispatchAction(c, msg)
		}
	}
}

// dispatchAction applies a game action from the client to its live
// match. The acting player is always the authenticated user; rejections
// go back to the sender only, the resulting events reach everyone
// through the session feed.
func (h *WSHandler) dispatchAction(c *WSConn, msg ClientMessage) {
	if msg.SessionID == "" || len(msg.Payload) == 0 {
		return
	}
	var action game.Action
	if err := json.Unmarshal(msg.Payload, &action); err != nil {
		h.sendError(c, msg.SessionID, "malformed action payload")
		return
	}
	action.PlayerID = c.userID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.matches.Dispatch(ctx, msg.SessionID, action); err != nil {
		log.Debug().Err(err).Str("userId", c.userID).Str("sessionId", msg.SessionID).
			Str("actionType", string(action.Type)).Msg("WebSocket action rejected")
		h.sendError(c, msg.SessionID, err.Error())
	}
}

func (h *WSHandler) sendError(c *WSConn, sessionID, text string) {
	data, err := json.Marshal(WSEvent{
		Type:      EventActionError,
		SessionID: sessionID,
		Data:      map[string]string{"error": text},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
