package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"passkey-auth/internals/config"
	"passkey-auth/internals/errs"
	"passkey-auth/internals/login"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/session"
	"passkey-auth/internals/store"
)

type AuthController struct {
	Store        store.Store
	Orchestrator *login.Orchestrator
	Sessions     *session.Manager
	Audit        ports.AuditSink
	Cookie       config.CookieConfig
	RefreshTTL   int
}

func NewAuthController(st store.Store, orch *login.Orchestrator, sessions *session.Manager, audit ports.AuditSink, cookie config.CookieConfig, refreshTTL int) *AuthController {
	return &AuthController{
		Store:        st,
		Orchestrator: orch,
		Sessions:     sessions,
		Audit:        audit,
		Cookie:       cookie,
		RefreshTTL:   refreshTTL,
	}
}

func (a *AuthController) Register(c *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required,email"`
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	ctx, cancel := opCtx(c)
	defer cancel()

	if _, err := a.Store.UserByEmail(ctx, body.Email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "This email is already registered. Please log in."})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), 12)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to hash password"})
		return
	}

	user := &models.User{
		ID:           ulid.Make().String(),
		Email:        body.Email,
		Username:     body.Username,
		PasswordHash: string(hash),
	}
	if err := a.Store.CreateUser(ctx, user); err != nil {
		// Two concurrent signups can pass the lookup above; the unique
		// index settles it.
		if errors.Is(err, errs.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "This email is already registered. Please log in."})
			return
		}
		respondError(c, err)
		return
	}

	a.Audit.Record(models.AuditLog{
		UserID:    user.ID,
		EventType: "user_registered",
		Action:    models.ActionSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusCreated, gin.H{"message": "Account created. Register a passkey to log in.", "user_id": user.ID})
}

func (a *AuthController) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	ctx, cancel := opCtx(c)
	defer cancel()

	result, err := a.Orchestrator.FirstFactorPassword(ctx, body.Email, body.Password, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	a.respondLoginResult(c, result)
}

func (a *AuthController) respondLoginResult(c *gin.Context, result *login.Result) {
	if result.State == login.StateAwaitingSecondFactor {
		// No session or cookies are created yet
		c.JSON(http.StatusOK, gin.H{
			"mfa_required": true,
			"mfa_token":    result.MFAToken,
			"message":      "Please enter your 2FA code to continue",
		})
		return
	}

	setTokenCookies(c, a.Cookie, result.Tokens, a.RefreshTTL)
	c.JSON(http.StatusOK, gin.H{
		"message":       "Logged in successfully",
		"session_id":    result.Tokens.SessionID,
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
		"expires_in":    result.Tokens.ExpiresIn,
	})
}

func (a *AuthController) Logout(c *gin.Context) {
	sessionID := c.GetString("sessionID")
	userID := c.GetString("userID")

	ctx, cancel := opCtx(c)
	defer cancel()

	if err := a.Sessions.RevokeSession(ctx, sessionID, session.ReasonLogout); err != nil {
		respondError(c, err)
		return
	}

	a.Audit.Record(models.AuditLog{
		UserID:    userID,
		EventType: "logout",
		Action:    models.ActionSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	clearTokenCookies(c, a.Cookie)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (a *AuthController) LogoutAll(c *gin.Context) {
	userID := c.GetString("userID")

	ctx, cancel := opCtx(c)
	defer cancel()

	if err := a.Sessions.RevokeAllSessions(ctx, userID, session.ReasonLogoutAll); err != nil {
		respondError(c, err)
		return
	}

	a.Audit.Record(models.AuditLog{
		UserID:    userID,
		EventType: "logout_all",
		Action:    models.ActionSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	clearTokenCookies(c, a.Cookie)
	c.JSON(http.StatusOK, gin.H{"message": "All sessions revoked"})
}

// LogoutOthers keeps the caller's session and revokes the rest.
func (a *AuthController) LogoutOthers(c *gin.Context) {
	userID := c.GetString("userID")
	sessionID := c.GetString("sessionID")

	ctx, cancel := opCtx(c)
	defer cancel()

	if err := a.Sessions.RevokeOtherSessions(ctx, userID, sessionID); err != nil {
		respondError(c, err)
		return
	}

	a.Audit.Record(models.AuditLog{
		UserID:    userID,
		EventType: "logout_others",
		Action:    models.ActionSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Other sessions revoked"})
}

func (a *AuthController) Validate(c *gin.Context) {
	ctx, cancel := opCtx(c)
	defer cancel()

	user, err := a.Store.UserByID(ctx, c.GetString("userID"))
	if err != nil {
		respondError(c, errs.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "You are logged in!",
		"user": gin.H{
			"id":           user.ID,
			"email":        user.Email,
			"username":     user.Username,
			"totp_enabled": user.TOTPEnabled,
		},
	})
}
