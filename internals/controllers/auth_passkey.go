package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"passkey-auth/internals/challenge"
	"passkey-auth/internals/errs"
	"passkey-auth/internals/login"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/store"
)

type PasskeyController struct {
	Store        store.Store
	Challenges   *challenge.Engine
	Orchestrator *login.Orchestrator
	Audit        ports.AuditSink
	Auth         *AuthController
}

func NewPasskeyController(st store.Store, challenges *challenge.Engine, orch *login.Orchestrator, audit ports.AuditSink, auth *AuthController) *PasskeyController {
	return &PasskeyController{
		Store:        st,
		Challenges:   challenges,
		Orchestrator: orch,
		Audit:        audit,
		Auth:         auth,
	}
}

// RegisterOptions begins a passkey enrollment ceremony for the logged-in
// user.
func (p *PasskeyController) RegisterOptions(c *gin.Context) {
	ctx, cancel := opCtx(c)
	defer cancel()

	user, err := p.Store.UserByID(ctx, c.GetString("userID"))
	if err != nil {
		respondError(c, errs.ErrUnauthorized)
		return
	}

	options, err := p.Challenges.BeginRegistration(ctx, user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

// RegisterVerify completes enrollment: attestation verification against the
// pending challenge, then persistence of the new credential.
func (p *PasskeyController) RegisterVerify(c *gin.Context) {
	ctx, cancel := opCtx(c)
	defer cancel()

	user, err := p.Store.UserByID(ctx, c.GetString("userID"))
	if err != nil {
		respondError(c, errs.ErrUnauthorized)
		return
	}

	label := c.Query("label")
	if label == "" {
		label = "Passkey"
	}

	cred, err := p.Challenges.CompleteRegistration(ctx, user, label, c.Request.Body)
	if err != nil {
		p.Audit.Record(models.AuditLog{
			UserID:    user.ID,
			EventType: "passkey_registration",
			Action:    models.ActionFailure,
			Detail:    errs.Kind(err),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		respondError(c, err)
		return
	}

	p.Audit.Record(models.AuditLog{
		UserID:    user.ID,
		EventType: "passkey_registration",
		Action:    models.ActionSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Passkey registered", "label": cred.Label})
}

// ListPasskeys shows the caller's registered passkeys.
func (p *PasskeyController) ListPasskeys(c *gin.Context) {
	ctx, cancel := opCtx(c)
	defer cancel()

	creds, err := p.Store.CredentialsByUser(ctx, c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}

	passkeys := make([]gin.H, 0, len(creds))
	for i := range creds {
		passkeys = append(passkeys, gin.H{
			"id":           creds[i].ID,
			"label":        creds[i].Label,
			"created_at":   creds[i].CreatedAt,
			"last_used_at": creds[i].LastUsedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"passkeys": passkeys})
}

// RevokePasskey deletes one of the caller's passkeys. The delete is scoped
// to the owner, so someone else's credential id is simply not found.
func (p *PasskeyController) RevokePasskey(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid passkey id"})
		return
	}
	userID := c.GetString("userID")

	ctx, cancel := opCtx(c)
	defer cancel()

	if err := p.Store.DeleteCredential(ctx, userID, uint(id)); err != nil {
		respondError(c, err)
		return
	}

	p.Audit.Record(models.AuditLog{
		UserID:    userID,
		EventType: "passkey_revoked",
		Action:    models.ActionSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Passkey revoked"})
}

// LoginOptions begins an authentication ceremony. With an email it scopes the
// allowed credentials to that account; without one the client gets a
// discoverable-credential prompt. Unknown emails still receive discoverable
// options so the endpoint cannot be used to enumerate accounts.
func (p *PasskeyController) LoginOptions(c *gin.Context) {
	var body struct {
		Email string `json:"email"`
	}
	c.ShouldBindJSON(&body)

	ctx, cancel := opCtx(c)
	defer cancel()

	var user *models.User
	if body.Email != "" {
		u, err := p.Store.UserByEmail(ctx, body.Email)
		if err == nil {
			user = u
		} else if !errors.Is(err, errs.ErrNotFound) {
			respondError(c, err)
			return
		}
	}

	options, err := p.Challenges.BeginAuthentication(ctx, user)
	if errors.Is(err, errs.ErrNotFound) {
		// Account exists but holds no passkeys; same fallback as unknown email
		options, err = p.Challenges.BeginAuthentication(ctx, nil)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

// LoginVerify is the passkey first factor: assertion verification, then
// either a session or a pending-MFA handoff.
func (p *PasskeyController) LoginVerify(c *gin.Context) {
	ctx, cancel := opCtx(c)
	defer cancel()

	result, err := p.Orchestrator.FirstFactorPasskey(ctx, c.Request.Body, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	p.Auth.respondLoginResult(c, result)
}
