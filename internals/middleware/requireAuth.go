package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"passkey-auth/internals/session"
)

type RequireAuthMiddleware struct {
	JWTSecret string
}

func NewRequireAuthMiddleware(jwtSecret string) *RequireAuthMiddleware {
	return &RequireAuthMiddleware{JWTSecret: jwtSecret}
}

// RequireAuth authorizes a request from its access token alone. Validation
// is signature and expiry only, no store round trip, so every protected
// request stays off the session storage path.
func (m *RequireAuthMiddleware) RequireAuth(c *gin.Context) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		var err error
		tokenString, err = c.Cookie("Authorization")
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	claims, err := session.ParseAccessToken(tokenString, m.JWTSecret)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired access token"})
		return
	}

	c.Set("userID", claims.UserID)
	c.Set("sessionID", claims.SessionID)
	c.Next() // continue to the next handler
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
