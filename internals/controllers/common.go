package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"passkey-auth/internals/config"
	"passkey-auth/internals/errs"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/session"
)

// Store and collaborator calls get a bounded deadline so no request hangs on
// a wedged dependency.
const opTimeout = 5 * time.Second

func opCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), opTimeout)
}

func clientMeta(c *gin.Context) ports.ClientMetadata {
	return ports.ClientMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// respondError maps a taxonomy error onto its HTTP status. Anything outside
// the taxonomy is a 500 with a generic body.
func respondError(c *gin.Context, err error) {
	status := errs.Status(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Something went wrong"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errs.Kind(err)})
}

// setTokenCookies mirrors the token pair into secure cookies so browser
// clients work without holding tokens in script-visible storage.
func setTokenCookies(c *gin.Context, cookie config.CookieConfig, pair *session.TokenPair, refreshTTL int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("Authorization", pair.AccessToken, pair.ExpiresIn, "/", cookie.Domain, cookie.IsSecure, cookie.HttpOnly)
	c.SetCookie("RefreshToken", pair.RefreshToken, refreshTTL, "/auth/refresh", cookie.Domain, cookie.IsSecure, cookie.HttpOnly)
}

// clearTokenCookies removes both cookies on logout or failed rotation.
func clearTokenCookies(c *gin.Context, cookie config.CookieConfig) {
	c.SetCookie("Authorization", "", -1, "/", cookie.Domain, cookie.IsSecure, cookie.HttpOnly)
	c.SetCookie("RefreshToken", "", -1, "/auth/refresh", cookie.Domain, cookie.IsSecure, cookie.HttpOnly)
}
