package handler

import (
	"fmt"
	"net/http"

	"travelquest/backend/internal/localization"
	"travelquest/backend/internal/meetup"
	"travelquest/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type createRequestBody struct {
	ReceiverUID string `json:"receiver_uid" binding:"required"`
}

type responseBody struct {
	SenderUID string `json:"sender_uid" binding:"required"`
	Decision  string `json:"decision" binding:"required"`
}

// CreateRequest files a meetup verification request from the caller.
func (h *Handler) CreateRequest(c *gin.Context) {
	var req createRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver_uid is required"})
		return
	}

	ctx := c.Request.Context()
	sender := caller(c)
	id, err := h.Svc.CreateRequest(ctx, c.Param("id"), sender, req.ReceiverUID)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notify(ctx, req.ReceiverUID,
		h.Localizer.Format(localization.DefaultLanguage, "request_received", h.displayName(ctx, sender)))
	c.JSON(http.StatusCreated, gin.H{
		"request_id": id,
		"status":     models.StatusPending,
		"message":    h.message(c, "request_sent"),
	})
}

func (h *Handler) PendingRequests(c *gin.Context) {
	reqs, err := h.Svc.PendingRequests(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// Resolve applies the caller's decision to a request addressed to them.
func (h *Handler) Resolve(c *gin.Context) {
	var req responseBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_uid and decision are required"})
		return
	}
	decision, err := models.ParseDecision(req.Decision)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", meetup.ErrInvalidArgument, err))
		return
	}

	ctx := c.Request.Context()
	if err := h.Svc.Resolve(ctx, c.Param("id"), c.Param("rid"), req.SenderUID, caller(c), decision); err != nil {
		h.fail(c, err)
		return
	}

	key := "request_declined"
	if decision == models.StatusAccept {
		key = "request_accepted"
	}
	h.notify(ctx, req.SenderUID, h.Localizer.GetString(localization.DefaultLanguage, key))
	c.JSON(http.StatusOK, gin.H{
		"status":  decision,
		"message": h.message(c, key),
	})
}
