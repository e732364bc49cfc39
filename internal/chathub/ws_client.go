package chathub

import (
	"context"
	"time"

	"travelquest/backend/internal/config"
	"travelquest/backend/internal/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame is one message written to a live-view socket.
type Frame[T any] struct {
	Items []T    `json:"items"`
	Error string `json:"error,omitempty"`
}

// WebSocketClient streams snapshots of one live view to a websocket.
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn
	log    *logger.Logger
}

func NewWebSocketClient(userID string, conn *websocket.Conn, log *logger.Logger) *WebSocketClient {
	return &WebSocketClient{UserID: userID, Conn: conn, log: log.ForCaller(userID)}
}

// Stream writes each snapshot as a JSON frame until the client goes away or
// updates closes. cancel is called as soon as the read side fails so the
// producing live view is released.
func Stream[T any](c *WebSocketClient, cancel context.CancelFunc, updates <-chan Snapshot[T], errText func(error) string) {
	go c.readPump(cancel)
	writePump(c, updates, errText)
}

// readPump discards client input. It only exists to notice the close and to
// answer pongs.
func (c *WebSocketClient) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

func writePump[T any](c *WebSocketClient, updates <-chan Snapshot[T], errText func(error) string) {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case snap, ok := <-updates:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame := Frame[T]{Items: snap.Items}
			if frame.Items == nil {
				frame.Items = []T{}
			}
			if snap.Err != nil {
				frame.Error = errText(snap.Err)
			}
			if err := c.Conn.WriteJSON(frame); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
