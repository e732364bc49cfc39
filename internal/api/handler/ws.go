package handler

import (
	"context"
	"net/http"

	"travelquest/backend/internal/chathub"
	"travelquest/backend/internal/meetup"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API sits behind the app's own origin; tokens, not origins, gate access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamPending streams the caller's pending requests: the full set on
// connect and again after every change.
func (h *Handler) StreamPending(c *gin.Context) {
	uid := caller(c)
	conn, ok := h.upgrade(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	client := chathub.NewWebSocketClient(uid, conn, h.log)
	chathub.Stream(client, cancel, h.Svc.ListPending(ctx, uid), h.errText(c))
}

// StreamMessages streams a conversation's messages to one of its participants.
func (h *Handler) StreamMessages(c *gin.Context) {
	uid := caller(c)
	conversationID := c.Param("id")
	if _, err := h.Svc.ConversationFor(c.Request.Context(), conversationID, uid); err != nil {
		h.fail(c, err)
		return
	}
	conn, ok := h.upgrade(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	client := chathub.NewWebSocketClient(uid, conn, h.log)
	chathub.Stream(client, cancel, h.Svc.StreamMessages(ctx, conversationID), h.errText(c))
}

func (h *Handler) upgrade(c *gin.Context) (*websocket.Conn, bool) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil, false
	}
	return conn, true
}

func (h *Handler) errText(c *gin.Context) func(error) string {
	lang := h.lang(c)
	return func(err error) string {
		return h.Localizer.GetString(lang, meetup.Code(err))
	}
}
