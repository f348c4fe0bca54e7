package models

import "time"

// Challenge purposes. A challenge issued for one purpose must never match
// another.
const (
	PurposeRegistration   = "registration"
	PurposeAuthentication = "authentication"
	PurposeMFAPending     = "mfa_pending"
)

// AuthChallenge is a single-use ceremony challenge. UserID is empty for
// discoverable-credential logins. SessionData carries the serialized
// ceremony state the verifier needs on completion.
type AuthChallenge struct {
	ID          string `gorm:"column:id;primaryKey"`
	Purpose     string `gorm:"column:purpose;index"`
	UserID      string `gorm:"column:user_id"`
	Challenge   string `gorm:"column:challenge;uniqueIndex"`
	SessionData []byte `gorm:"column:session_data"`

	Used      bool      `gorm:"column:used;default:false"`
	ExpiresAt time.Time `gorm:"column:expires_at;index"`
	CreatedAt time.Time
}
