package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/careerhub/internal/auth"
	"github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxUserIDKey   = "userID"
	CtxUserNameKey = "userName"
)

// TokenValidator resolves a bearer token into claims.
type TokenValidator interface {
	ValidateAccessToken(token string) (*iauth.Claims, error)
}

// Auth requires a valid bearer token and stores the caller's identity on the
// context under CtxUserIDKey and CtxUserNameKey.
func Auth(jwt TokenValidator) gin.HandlerFunc {
	return authenticate(jwt, false)
}

// StreamAuth behaves like Auth but also accepts the token in the "token" query
// parameter, since browsers cannot set headers on WebSocket upgrades.
func StreamAuth(jwt TokenValidator) gin.HandlerFunc {
	return authenticate(jwt, true)
}

func authenticate(jwt TokenValidator, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			logger.WithModule("auth").Debug("token rejected",
				zap.String("route", c.FullPath()),
				zap.Error(err),
			)
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.Name != "" {
			c.Set(CtxUserNameKey, claims.Name)
		}

		c.Next()
	}
}

func bearerToken(header string) string {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
