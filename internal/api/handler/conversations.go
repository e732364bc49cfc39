package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type resolveRequest struct {
	OtherUID string `json:"other_uid" binding:"required"`
}

type messageRequest struct {
	Text string `json:"text" binding:"required"`
}

// ResolveConversation returns the caller's conversation with other_uid,
// creating it on first use.
func (h *Handler) ResolveConversation(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "other_uid is required"})
		return
	}

	id, err := h.Svc.ResolveConversation(c.Request.Context(), caller(c), req.OtherUID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

func (h *Handler) Inbox(c *gin.Context) {
	entries, err := h.Svc.Inbox(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": entries})
}

// ListMessages returns the conversation's messages in ascending order, with
// the display name of every author.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")
	if _, err := h.Svc.ConversationFor(ctx, conversationID, caller(c)); err != nil {
		h.fail(c, err)
		return
	}

	msgs, err := h.Svc.Messages(ctx, conversationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"names":    h.Svc.AuthorNames(ctx, msgs),
	})
}

func (h *Handler) AppendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	msg, err := h.Svc.AppendMessage(c.Request.Context(), c.Param("id"), caller(c), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SendDirect sends a message to another user, creating the conversation
// with the first message.
func (h *Handler) SendDirect(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	msg, err := h.Svc.SendDirect(c.Request.Context(), caller(c), c.Param("uid"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
