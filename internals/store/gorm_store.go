package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"passkey-auth/internals/errs"
	"passkey-auth/internals/models"
)

// GormStore implements Store on a gorm database. All single-use semantics
// ride on conditional UPDATEs so they hold under concurrent requests.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// wrap maps driver-level failures into the shared taxonomy. Timeouts and
// cancellations surface as TemporarilyUnavailable so callers never hang on
// a wedged store.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.ErrConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", errs.ErrTemporarilyUnavailable, err)
	default:
		return err
	}
}

// Users ----------------------------------------------------------------------

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return wrap(s.DB.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

func (s *GormStore) SaveTOTPSetup(ctx context.Context, userID, encSecret, encBackupCodes string) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND totp_enabled = ?", userID, false).
		Updates(map[string]interface{}{
			"pending_totp_secret":  encSecret,
			"pending_backup_codes": encBackupCodes,
		})
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrConflict
	}
	return nil
}

func (s *GormStore) EnableTOTP(ctx context.Context, userID, encSecret, backupCodesJSON string) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND totp_enabled = ?", userID, false).
		Updates(map[string]interface{}{
			"totp_enabled":         true,
			"totp_secret":          encSecret,
			"backup_codes":         backupCodesJSON,
			"pending_totp_secret":  "",
			"pending_backup_codes": "",
		})
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrConflict
	}
	return nil
}

func (s *GormStore) SwapBackupCodes(ctx context.Context, userID, oldJSON, newJSON string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND backup_codes = ?", userID, oldJSON).
		Update("backup_codes", newJSON)
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return wrap(s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at).Error)
}

// Credentials ----------------------------------------------------------------

func (s *GormStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	return wrap(s.DB.WithContext(ctx).Create(cred).Error)
}

func (s *GormStore) CredentialsByUser(ctx context.Context, userID string) ([]models.Credential, error) {
	var creds []models.Credential
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&creds).Error; err != nil {
		return nil, wrap(err)
	}
	return creds, nil
}

func (s *GormStore) CredentialByCredentialID(ctx context.Context, credentialID []byte) (*models.Credential, error) {
	var cred models.Credential
	if err := s.DB.WithContext(ctx).Where("credential_id = ?", credentialID).First(&cred).Error; err != nil {
		return nil, wrap(err)
	}
	return &cred, nil
}

func (s *GormStore) UpdateCredentialSignCount(ctx context.Context, credentialID []byte, signCount uint32, usedAt time.Time) error {
	return wrap(s.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("credential_id = ?", credentialID).
		Updates(map[string]interface{}{
			"sign_count":   signCount,
			"last_used_at": usedAt,
		}).Error)
}

func (s *GormStore) DeleteCredential(ctx context.Context, userID string, id uint) error {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Credential{})
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Challenges -----------------------------------------------------------------

func (s *GormStore) CreateChallenge(ctx context.Context, ch *models.AuthChallenge) error {
	return wrap(s.DB.WithContext(ctx).Create(ch).Error)
}

func (s *GormStore) ConsumeChallenge(ctx context.Context, challenge, purpose string, now time.Time) (*models.AuthChallenge, error) {
	// Single atomic check-and-set: two concurrent completions of the same
	// challenge yield exactly one success.
	res := s.DB.WithContext(ctx).Model(&models.AuthChallenge{}).
		Where("challenge = ? AND purpose = ? AND used = ? AND expires_at > ?", challenge, purpose, false, now).
		Update("used", true)
	if res.Error != nil {
		return nil, wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrChallengeInvalid
	}
	var ch2 models.AuthChallenge
	if err := s.DB.WithContext(ctx).Where("challenge = ?", challenge).First(&ch2).Error; err != nil {
		return nil, wrap(err)
	}
	return &ch2, nil
}

// Sessions -------------------------------------------------------------------

func (s *GormStore) CreateSession(ctx context.Context, session *models.Session, token *models.RefreshToken) error {
	return wrap(s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	}))
}

func (s *GormStore) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, wrap(err)
	}
	return &session, nil
}

func (s *GormStore) SessionsByUser(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND revoked = ?", userID, false).
		Order("last_activity_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, wrap(err)
	}
	return sessions, nil
}

func (s *GormStore) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := s.DB.WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error; err != nil {
		return nil, wrap(err)
	}
	return &token, nil
}

func (s *GormStore) ConsumeRefreshToken(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", now)
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) AdvanceGeneration(ctx context.Context, session *models.Session, next *models.RefreshToken, now time.Time) error {
	return wrap(s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).
			Where("id = ?", session.ID).
			Updates(map[string]interface{}{
				"current_generation": next.Generation,
				"last_activity_at":   now,
			}).Error
	}))
}

func (s *GormStore) RevokeSession(ctx context.Context, sessionID, reason string, now time.Time) error {
	return wrap(s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked = ?", sessionID, false).
		Updates(revocation(reason, now)).Error)
}

func (s *GormStore) RevokeFamily(ctx context.Context, familyID, reason string, now time.Time) error {
	return wrap(s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("family_id = ? AND revoked = ?", familyID, false).
		Updates(revocation(reason, now)).Error)
}

func (s *GormStore) RevokeAllSessions(ctx context.Context, userID, reason string, now time.Time) error {
	return wrap(s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(revocation(reason, now)).Error)
}

func (s *GormStore) RevokeOtherSessions(ctx context.Context, userID, keepID, reason string, now time.Time) error {
	return wrap(s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND id <> ? AND revoked = ?", userID, keepID, false).
		Updates(revocation(reason, now)).Error)
}

func revocation(reason string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"revoked":        true,
		"revoked_reason": reason,
		"revoked_at":     now,
	}
}

// Devices --------------------------------------------------------------------

func (s *GormStore) DeviceByFingerprint(ctx context.Context, fingerprint string) (*models.Device, error) {
	var device models.Device
	if err := s.DB.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&device).Error; err != nil {
		return nil, wrap(err)
	}
	return &device, nil
}

func (s *GormStore) CreateDevice(ctx context.Context, device *models.Device) error {
	return wrap(s.DB.WithContext(ctx).Create(device).Error)
}

func (s *GormStore) TouchDevice(ctx context.Context, id, ip string, at time.Time) error {
	return wrap(s.DB.WithContext(ctx).Model(&models.Device{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_seen_ip": ip,
			"last_seen_at": at,
		}).Error)
}

// Audit ----------------------------------------------------------------------

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	return wrap(s.DB.WithContext(ctx).Create(entry).Error)
}

// Janitor --------------------------------------------------------------------

func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (PurgeResult, error) {
	var result PurgeResult
	db := s.DB.WithContext(ctx)

	// Expired or spent challenges are useless and cannot be verified.
	res := db.Where("expires_at < ? OR used = ?", now, true).Delete(&models.AuthChallenge{})
	if res.Error != nil {
		return result, wrap(res.Error)
	}
	result.Challenges = res.RowsAffected

	// Sessions past their refresh horizon, plus revoked sessions past retention.
	res = db.Where("expires_at < ? OR (revoked = ? AND revoked_at < ?)", now, true, now.Add(-retention)).
		Delete(&models.Session{})
	if res.Error != nil {
		return result, wrap(res.Error)
	}
	result.Sessions = res.RowsAffected

	// Consumed generations older than retention; expired ones regardless.
	res = db.Where("expires_at < ? OR (consumed_at IS NOT NULL AND consumed_at < ?)", now, now.Add(-retention)).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return result, wrap(res.Error)
	}
	result.RefreshTokens = res.RowsAffected

	return result, nil
}
