package middleware

import (
	"net/http"
	"strings"

	"chunkdrive/internal/pkg/jwt"
	"chunkdrive/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated owner id.
const UserIDKey = "user_id"

// JWTAuth requires a valid bearer token and stores its owner id under UserIDKey.
func JWTAuth(svc *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header must be 'Bearer <token>'")
			return
		}

		claims, err := svc.ValidateToken(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// SingleTenant lets every caller through with an empty owner id. A bearer
// token, if present, is still honoured so clients need no special casing.
func SingleTenant(svc *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok && svc != nil {
			if claims, err := svc.ValidateToken(token); err == nil {
				c.Set(UserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

// UserID returns the owner id set by JWTAuth, or "" when unauthenticated.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
