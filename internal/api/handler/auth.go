package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"travelquest/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

// callerKey is the gin context key holding the authenticated user id.
const callerKey = "caller_id"

// purposeTelegramLink marks a token that may only link a Telegram chat.
const purposeTelegramLink = "telegram_link"

// Authenticator issues and verifies the HS256 tokens that carry the caller id.
type Authenticator struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{Secret: []byte(secret), TTL: config.TokenTTL, Now: time.Now}
}

// Issue signs a token for uid.
func (a *Authenticator) Issue(uid string) (string, error) {
	return a.sign(jwt.MapClaims{
		"uid": uid,
		"exp": a.Now().Add(a.TTL).Unix(),
		"iss": config.TokenIssuer,
	})
}

// Verify checks the signature and expiry of tokenString and returns its uid.
// Link codes are not accepted as access tokens.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}
	if _, ok := claims["purpose"]; ok {
		return "", errors.New("not an access token")
	}
	return uidOf(claims)
}

// IssueLinkCode signs a short-lived code that proves ownership of uid to the
// Telegram bot.
func (a *Authenticator) IssueLinkCode(uid string) (string, error) {
	return a.sign(jwt.MapClaims{
		"uid":     uid,
		"exp":     a.Now().Add(config.LinkCodeTTL).Unix(),
		"iss":     config.TokenIssuer,
		"purpose": purposeTelegramLink,
	})
}

// VerifyLinkCode returns the uid a link code was issued for.
func (a *Authenticator) VerifyLinkCode(code string) (string, error) {
	claims, err := a.parse(code)
	if err != nil {
		return "", err
	}
	if purpose, _ := claims["purpose"].(string); purpose != purposeTelegramLink {
		return "", errors.New("not a link code")
	}
	return uidOf(claims)
}

func (a *Authenticator) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

func (a *Authenticator) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(config.TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.Now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims")
	}
	return claims, nil
}

func uidOf(claims jwt.MapClaims) (string, error) {
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return "", errors.New("token has no uid")
	}
	return uid, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller id for the handlers. Browsers cannot set headers on websocket
// upgrades, so a ?token= query parameter is accepted as well.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		}
		if tokenString == "" {
			h.unauthorized(c)
			return
		}

		uid, err := h.Auth.Verify(tokenString)
		if err != nil {
			h.unauthorized(c)
			return
		}
		c.Set(callerKey, uid)
		c.Next()
	}
}

func (h *Handler) unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: errorDetail{
		Code:    "Unauthorized",
		Message: h.Localizer.GetString(h.lang(c), "Unauthorized"),
	}})
}

func caller(c *gin.Context) string {
	return c.GetString(callerKey)
}

type tokenRequest struct {
	UID string `json:"uid"`
}

// IssueToken hands out a token for the given uid, or for a fresh anonymous
// id. Only mounted when development tokens are enabled.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	if req.UID == "" {
		req.UID = uuid.New().String()
	}

	token, err := h.Auth.Issue(req.UID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "uid": req.UID})
}
