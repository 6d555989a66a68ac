package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/chatboard/internal/metrics"
	"github.com/eldtechnologies/chatboard/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Live streams a room's new messages and replies over a websocket. Each
// frame is a JSON event: {"type":"message","message":{...}} or
// {"type":"reply","reply":{...}}. Only events after the connection is
// established are sent; clients backfill with GetRoomMessages.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	category, name, ok := h.roomParams(w, r)
	if !ok {
		return
	}
	room := models.RoomKey(category, name)

	// Subscribe before upgrading so nothing posted during the handshake is lost
	sub, err := h.redis.Subscribe(r.Context(), room)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "live feed unavailable")
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("room", room).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.LiveConnections.Inc()
	defer metrics.LiveConnections.Dec()

	// Read pump: the feed is one-way, reads only detect close and pongs
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug().Err(err).Str("room", room).Msg("websocket read error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := sub.Channel()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(ev.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
