package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"passkey-auth/internals/errs"
	"passkey-auth/internals/login"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/store"
	"passkey-auth/internals/totp"
	"passkey-auth/internals/utils"
)

type MFAController struct {
	Store        store.Store
	TOTP         *totp.Engine
	Orchestrator *login.Orchestrator
	Audit        ports.AuditSink
	Auth         *AuthController

	EncryptionKey string
}

func NewMFAController(st store.Store, engine *totp.Engine, orch *login.Orchestrator, audit ports.AuditSink, auth *AuthController, encryptionKey string) *MFAController {
	return &MFAController{
		Store:         st,
		TOTP:          engine,
		Orchestrator:  orch,
		Audit:         audit,
		Auth:          auth,
		EncryptionKey: encryptionKey,
	}
}

// Setup2FA generates a fresh secret and backup codes. The codes appear in
// this response exactly once; only encrypted staging material is stored
// until activation.
func (m *MFAController) Setup2FA(c *gin.Context) {
	ctx, cancel := opCtx(c)
	defer cancel()

	user, err := m.Store.UserByID(ctx, c.GetString("userID"))
	if err != nil {
		respondError(c, errs.ErrUnauthorized)
		return
	}
	if user.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "2FA is already enabled"})
		return
	}

	setup, err := m.TOTP.Setup(user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate 2FA key"})
		return
	}

	encSecret, err := utils.Encrypt(setup.Secret, m.EncryptionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encrypt 2FA secret"})
		return
	}
	codesJSON, _ := json.Marshal(setup.BackupCodes)
	encCodes, err := utils.Encrypt(string(codesJSON), m.EncryptionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encrypt backup codes"})
		return
	}

	if err := m.Store.SaveTOTPSetup(ctx, user.ID, encSecret, encCodes); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
		"qr_code_url":      setup.QRCodeDataURL,
		"backup_codes":     setup.BackupCodes,
	})
}

// Activate2FA verifies the first code from the authenticator app and turns
// 2FA on, storing the hashed backup codes and wiping the staging columns.
func (m *MFAController) Activate2FA(c *gin.Context) {
	var body struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code is required"})
		return
	}

	ctx, cancel := opCtx(c)
	defer cancel()

	user, err := m.Store.UserByID(ctx, c.GetString("userID"))
	if err != nil {
		respondError(c, errs.ErrUnauthorized)
		return
	}
	if user.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "2FA is already enabled"})
		return
	}
	if user.PendingTOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No pending 2FA setup. Call setup first."})
		return
	}

	secret, err := utils.Decrypt(user.PendingTOTPSecret, m.EncryptionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process security key"})
		return
	}
	clearJSON, err := utils.Decrypt(user.PendingBackupCodes, m.EncryptionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process backup codes"})
		return
	}
	var clearCodes []string
	if err := json.Unmarshal([]byte(clearJSON), &clearCodes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process backup codes"})
		return
	}

	hashed, err := m.TOTP.VerifyAndEnable(secret, body.Code, clearCodes)
	if err != nil {
		m.Audit.Record(models.AuditLog{
			UserID:    user.ID,
			EventType: "totp_activation",
			Action:    models.ActionFailure,
			Detail:    errs.Kind(err),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		respondError(c, err)
		return
	}

	if err := m.Store.EnableTOTP(ctx, user.ID, user.PendingTOTPSecret, models.EncodeBackupCodes(hashed)); err != nil {
		respondError(c, err)
		return
	}

	m.Audit.Record(models.AuditLog{
		UserID:    user.ID,
		EventType: "totp_enabled",
		Action:    models.ActionSuccess,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "2FA activated successfully"})
}

// LoginVerify2FA is the second-factor step of a pending login. Identity
// comes from the server-issued mfa_token, never from the request body.
func (m *MFAController) LoginVerify2FA(c *gin.Context) {
	var body struct {
		MFAToken   string `json:"mfa_token" binding:"required"`
		Code       string `json:"code"`
		BackupCode string `json:"backup_code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || (body.Code == "" && body.BackupCode == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mfa_token and a code or backup_code are required"})
		return
	}

	ctx, cancel := opCtx(c)
	defer cancel()

	result, err := m.Orchestrator.SecondFactor(ctx, body.MFAToken, body.Code, body.BackupCode, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	m.Auth.respondLoginResult(c, result)
}
