package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"passkey-auth/internals/config"
	"passkey-auth/internals/session"
)

type TokenController struct {
	Sessions   *session.Manager
	Cookie     config.CookieConfig
	RefreshTTL int
}

func NewTokenController(sessions *session.Manager, cookie config.CookieConfig, refreshTTL int) *TokenController {
	return &TokenController{Sessions: sessions, Cookie: cookie, RefreshTTL: refreshTTL}
}

// RefreshToken rotates the refresh token and hands back a new pair. The
// token comes from the RefreshToken cookie for browser clients or the JSON
// body for API clients. Any rotation failure clears both cookies; a reused
// token has already revoked the whole family by the time the 401 goes out.
func (t *TokenController) RefreshToken(c *gin.Context) {
	raw, err := c.Cookie("RefreshToken")
	if err != nil || raw == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.RefreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token is required"})
			return
		}
		raw = body.RefreshToken
	}

	ctx, cancel := opCtx(c)
	defer cancel()

	pair, err := t.Sessions.RotateTokens(ctx, raw, c.ClientIP())
	if err != nil {
		clearTokenCookies(c, t.Cookie)
		respondError(c, err)
		return
	}

	setTokenCookies(c, t.Cookie, pair, t.RefreshTTL)
	c.JSON(http.StatusOK, gin.H{
		"message":       "Tokens refreshed",
		"session_id":    pair.SessionID,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
	})
}

// ListSessions shows the caller's active sessions with the current one flagged.
func (t *TokenController) ListSessions(c *gin.Context) {
	ctx, cancel := opCtx(c)
	defer cancel()

	sessions, err := t.Sessions.ListSessions(ctx, c.GetString("userID"), c.GetString("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
