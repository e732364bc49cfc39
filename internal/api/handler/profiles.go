package handler

import (
	"net/http"

	"travelquest/backend/internal/config"

	"github.com/gin-gonic/gin"
)

type profileRequest struct {
	Name string `json:"name" binding:"required"`
}

// RegisterProfile creates the caller's public profile. Calling it again
// returns the existing profile unchanged.
func (h *Handler) RegisterProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	profile, err := h.Svc.RegisterProfile(c.Request.Context(), caller(c), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.Svc.Profile(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// TelegramLinkCode issues a one-off code for the caller. Sending
// "/link <code>" to the bot attaches that chat to the caller's profile.
func (h *Handler) TelegramLinkCode(c *gin.Context) {
	code, err := h.Auth.IssueLinkCode(caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":       code,
		"command":    "/link " + code,
		"expires_in": int(config.LinkCodeTTL.Seconds()),
	})
}
