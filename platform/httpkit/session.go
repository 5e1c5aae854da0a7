package httpkit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"windowleads_backend/platform/config"
	"windowleads_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ContextSessionIDKey is the gin context key for the funnel session ID.
	ContextSessionIDKey = "sessionID"

	// SessionCookieName holds the signed session token.
	SessionCookieName = "wl_session"
	// HeaderSessionToken is the fallback for clients without cookies.
	HeaderSessionToken = "X-Funnel-Session"

	sessionTokenType = "funnel_session"
)

var errInvalidSession = errors.New("invalid session token")

// IssueSessionToken signs an HS256 token naming sessionID.
func IssueSessionToken(secret, sessionID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  sessionID,
		"type": sessionTokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseSessionToken verifies a token and returns its session ID.
func ParseSessionToken(secret, raw string) (string, error) {
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", errInvalidSession
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidSession
	}
	if tokenType, _ := claims["type"].(string); tokenType != sessionTokenType {
		return "", errInvalidSession
	}

	sessionID, _ := claims["sub"].(string)
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", errInvalidSession
	}
	return sessionID, nil
}

// FunnelSession resolves the visitor's session from the cookie or header,
// starting a new one when absent or invalid. The session ID is stored on
// the gin context and on the request context for logging.
func FunnelSession(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""
		if raw := sessionTokenFrom(c); raw != "" {
			if id, err := ParseSessionToken(cfg.GetSessionSecret(), raw); err == nil {
				sessionID = id
			}
		}

		if sessionID == "" {
			sessionID = uuid.NewString()
			token, err := IssueSessionToken(cfg.GetSessionSecret(), sessionID, cfg.GetSessionTTL(), time.Now())
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: genericErrorMessage})
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookieName, token, int(cfg.GetSessionTTL().Seconds()), "/", "", c.Request.TLS != nil, true)
			c.Header(HeaderSessionToken, token)
		}

		c.Set(ContextSessionIDKey, sessionID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.SessionIDKey, sessionID))
		c.Next()
	}
}

// SessionID returns the session resolved by FunnelSession.
func SessionID(c *gin.Context) string {
	return c.GetString(ContextSessionIDKey)
}

func sessionTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	return strings.TrimSpace(c.GetHeader(HeaderSessionToken))
}
