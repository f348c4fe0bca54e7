// Package store is the durable keyed store behind the auth engines. The
// interface exposes conditional-update primitives so single-use semantics
// (challenges, refresh generations, backup codes) survive concurrent callers
// and multiple server instances.
package store

import (
	"context"
	"time"

	"passkey-auth/internals/models"
)

type Store interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// SaveTOTPSetup stages an encrypted secret and encrypted clear backup
	// codes pending activation. Fails with ErrConflict if 2FA is already on.
	SaveTOTPSetup(ctx context.Context, userID, encSecret, encBackupCodes string) error
	// EnableTOTP promotes the pending secret and stores the hashed backup
	// codes. Conditional on totp_enabled still being false.
	EnableTOTP(ctx context.Context, userID, encSecret, backupCodesJSON string) error
	// SwapBackupCodes replaces the stored hash set only if it still equals
	// oldJSON (compare-and-swap; defeats double-spend races). Returns false
	// when the set changed underneath the caller.
	SwapBackupCodes(ctx context.Context, userID, oldJSON, newJSON string) (bool, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error

	// Credentials
	CreateCredential(ctx context.Context, cred *models.Credential) error
	CredentialsByUser(ctx context.Context, userID string) ([]models.Credential, error)
	CredentialByCredentialID(ctx context.Context, credentialID []byte) (*models.Credential, error)
	UpdateCredentialSignCount(ctx context.Context, credentialID []byte, signCount uint32, usedAt time.Time) error
	// DeleteCredential removes one credential, scoped to its owner. A row
	// belonging to someone else is ErrNotFound, not a cross-user delete.
	DeleteCredential(ctx context.Context, userID string, id uint) error

	// Challenges
	CreateChallenge(ctx context.Context, ch *models.AuthChallenge) error
	// ConsumeChallenge atomically marks the named challenge used, provided it
	// exists, matches purpose, is unused, and is unexpired. Exactly one of N
	// concurrent consumers succeeds; the rest get ErrChallengeInvalid.
	ConsumeChallenge(ctx context.Context, challenge, purpose string, now time.Time) (*models.AuthChallenge, error)

	// Sessions and refresh-token generations
	CreateSession(ctx context.Context, session *models.Session, token *models.RefreshToken) error
	SessionByID(ctx context.Context, id string) (*models.Session, error)
	SessionsByUser(ctx context.Context, userID string) ([]models.Session, error)
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// ConsumeRefreshToken flips consumed_at exactly once. Returns false when
	// another rotation got there first.
	ConsumeRefreshToken(ctx context.Context, id uint, now time.Time) (bool, error)
	// AdvanceGeneration inserts the next generation and bumps the session's
	// current generation and activity time in one transaction.
	AdvanceGeneration(ctx context.Context, session *models.Session, next *models.RefreshToken, now time.Time) error
	RevokeSession(ctx context.Context, sessionID, reason string, now time.Time) error
	RevokeFamily(ctx context.Context, familyID, reason string, now time.Time) error
	RevokeAllSessions(ctx context.Context, userID, reason string, now time.Time) error
	// RevokeOtherSessions revokes every session the user holds except keepID.
	RevokeOtherSessions(ctx context.Context, userID, keepID, reason string, now time.Time) error

	// Devices
	DeviceByFingerprint(ctx context.Context, fingerprint string) (*models.Device, error)
	CreateDevice(ctx context.Context, device *models.Device) error
	TouchDevice(ctx context.Context, id, ip string, at time.Time) error

	// Audit
	AppendAudit(ctx context.Context, entry *models.AuditLog) error

	// Janitor
	PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (PurgeResult, error)
}

// PurgeResult reports what the janitor removed.
type PurgeResult struct {
	Challenges    int64
	Sessions      int64
	RefreshTokens int64
}
