package models

import "time"

// Audit actions
const (
	ActionSuccess = "success"
	ActionFailure = "failure"
)

// AuditLog is an append-only security event. Rows are never updated or
// deleted by the auth core. Secrets must never appear in Detail.
type AuditLog struct {
	ID        uint   `gorm:"column:id;primaryKey"`
	UserID    string `gorm:"column:user_id;index"`
	EventType string `gorm:"column:event_type;index"`
	Action    string `gorm:"column:action"`
	Detail    string `gorm:"column:detail"`

	IPAddress string `gorm:"column:ip_address"`
	UserAgent string `gorm:"column:user_agent"`
	DeviceID  string `gorm:"column:device_id"`

	CreatedAt time.Time `gorm:"index"`
}
