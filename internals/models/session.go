package models

import "time"

// Session is one authenticated device/browser instance. Its refresh tokens
// form a family identified by FamilyID; CurrentGeneration names the only
// redeemable generation.
type Session struct {
	ID       string `gorm:"column:id;primaryKey"`
	UserID   string `gorm:"column:user_id;index"`
	FamilyID string `gorm:"column:family_id;index"`
	DeviceID string `gorm:"column:device_id"`

	IPAddress string `gorm:"column:ip_address"`
	UserAgent string `gorm:"column:user_agent"` // To identify the device (e.g., "Chrome on Windows")

	CurrentGeneration int `gorm:"column:current_generation;default:0"`

	Revoked       bool       `gorm:"column:revoked;default:false;index"`
	RevokedReason string     `gorm:"column:revoked_reason"`
	RevokedAt     *time.Time `gorm:"column:revoked_at"`

	LastActivityAt time.Time `gorm:"column:last_activity_at;index"`
	ExpiresAt      time.Time `gorm:"column:expires_at;index"`
	CreatedAt      time.Time
}

// RefreshToken is one generation within a session's family. Only the hash of
// the opaque token is stored. ConsumedAt flips exactly once; redeeming a row
// that is consumed or superseded is a breach signal.
type RefreshToken struct {
	ID         uint   `gorm:"column:id;primaryKey"`
	SessionID  string `gorm:"column:session_id;index"`
	FamilyID   string `gorm:"column:family_id;index"`
	Generation int    `gorm:"column:generation"`
	TokenHash  string `gorm:"column:token_hash;uniqueIndex"`

	ConsumedAt *time.Time `gorm:"column:consumed_at"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;index"`
	CreatedAt  time.Time
}
