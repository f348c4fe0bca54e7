package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string `gorm:"column:id;primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex"`
	Username     string `gorm:"column:username"`
	PasswordHash string `gorm:"column:password_hash"`

	// Multi-Factor Authentication. The secret is AES-GCM encrypted at rest;
	// Pending* columns hold setup material until activation and are cleared after.
	TOTPEnabled        bool   `gorm:"column:totp_enabled;default:false"`
	TOTPSecret         string `gorm:"column:totp_secret;default:null"`
	PendingTOTPSecret  string `gorm:"column:pending_totp_secret;default:null"`
	PendingBackupCodes string `gorm:"column:pending_backup_codes;default:null"`

	// JSON array of bcrypt hashes, one entry removed per backup-code use
	BackupCodes string `gorm:"column:backup_codes;default:null"`

	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BackupCodeHashes decodes the stored JSON array. An empty column yields nil.
func (u *User) BackupCodeHashes() []string {
	if u.BackupCodes == "" {
		return nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(u.BackupCodes), &hashes); err != nil {
		return nil
	}
	return hashes
}

// EncodeBackupCodes serializes a hash set for storage.
func EncodeBackupCodes(hashes []string) string {
	if len(hashes) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(hashes)
	return string(b)
}
