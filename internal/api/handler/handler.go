// Package handler exposes the meetup engine over HTTP and WebSocket.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"travelquest/backend/internal/localization"
	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/meetup"
	"travelquest/backend/internal/metrics"
	"travelquest/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler holds the collaborators of the HTTP surface.
type Handler struct {
	Svc       *meetup.Service
	Auth      *Authenticator
	Notifier  telegram.Notifier
	Localizer *localization.Localizer
	log       *logger.Logger
}

func NewHandler(svc *meetup.Service, auth *Authenticator, notifier telegram.Notifier, loc *localization.Localizer, log *logger.Logger) *Handler {
	if notifier == nil {
		notifier = telegram.Nop{}
	}
	return &Handler{Svc: svc, Auth: auth, Notifier: notifier, Localizer: loc, log: log}
}

// Register mounts all routes on r. The token endpoint is only mounted when
// devTokens is set.
func (h *Handler) Register(r *gin.Engine, devTokens bool) {
	r.Use(h.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if devTokens {
		r.POST("/auth/token", h.IssueToken)
	}

	api := r.Group("/", h.RequireAuth())
	api.POST("/profiles/me", h.RegisterProfile)
	api.GET("/profiles/:uid", h.GetProfile)
	api.POST("/profiles/me/telegram-link", h.TelegramLinkCode)

	api.POST("/conversations", h.ResolveConversation)
	api.GET("/conversations", h.Inbox)
	api.GET("/conversations/:id/messages", h.ListMessages)
	api.POST("/conversations/:id/messages", h.AppendMessage)
	api.POST("/users/:uid/messages", h.SendDirect)

	api.POST("/conversations/:id/requests", h.CreateRequest)
	api.GET("/requests/pending", h.PendingRequests)
	api.POST("/conversations/:id/requests/:rid/response", h.Resolve)

	api.GET("/ws/requests", h.StreamPending)
	api.GET("/ws/conversations/:id/messages", h.StreamMessages)
}

// RequestLogger logs every request and records its metrics.
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordRequest(c.Request.Method, path, strconv.Itoa(status), elapsed.Seconds())
		h.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("caller_id", caller(c)))
	}
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// statusOf maps an engine error code to its HTTP status.
func statusOf(code string) int {
	switch code {
	case meetup.CodeInvalidArgument:
		return http.StatusBadRequest
	case meetup.CodeAlreadyPending, meetup.CodeAlreadyAccepted,
		meetup.CodeAlreadyResolved, meetup.CodeConflictingAcceptance:
		return http.StatusConflict
	case meetup.CodeRateLimited:
		return http.StatusTooManyRequests
	case meetup.CodeProfileNotFound, meetup.CodeConversationNotFound, meetup.CodeRequestNotFound:
		return http.StatusNotFound
	case meetup.CodeConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a localized error body. Refusals and caller mistakes
// are expected and only logged at debug level.
func (h *Handler) fail(c *gin.Context, err error) {
	code := meetup.Code(err)
	fields := []zap.Field{
		zap.String("path", c.FullPath()),
		zap.String("caller_id", caller(c)),
		zap.String("code", code),
		zap.Error(err),
	}
	switch {
	case meetup.IsRefusal(err), code == meetup.CodeInvalidArgument:
		h.log.Debug("request refused", fields...)
	case code == meetup.CodeConflict:
		h.log.Warn("request aborted after retries", fields...)
	case errors.Is(err, context.Canceled):
		h.log.Debug("request cancelled", fields...)
	default:
		h.log.Error("request failed", fields...)
	}

	c.AbortWithStatusJSON(statusOf(code), errorBody{Error: errorDetail{
		Code:    code,
		Message: h.Localizer.GetString(h.lang(c), code),
	}})
}

func (h *Handler) lang(c *gin.Context) string {
	return h.Localizer.Pick(c.GetHeader("Accept-Language"))
}

// message returns the localized outcome text for key.
func (h *Handler) message(c *gin.Context, key string) string {
	return h.Localizer.GetString(h.lang(c), key)
}

// notify hands an outcome to the notification channel. Delivery problems
// never fail the request that caused them.
func (h *Handler) notify(ctx context.Context, uid, text string) {
	if err := h.Notifier.Notify(ctx, uid, text); err != nil {
		h.log.Warn("notification failed", zap.String("uid", uid), zap.Error(err))
	}
}

// displayName returns uid's profile name, or uid when it has none.
func (h *Handler) displayName(ctx context.Context, uid string) string {
	if p, err := h.Svc.Profile(ctx, uid); err == nil && p.Name != "" {
		return p.Name
	}
	return uid
}
