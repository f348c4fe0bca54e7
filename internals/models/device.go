package models

import "time"

// Device is a stable identity for a browser/device combination, resolved
// from a fingerprint of client metadata. It labels sessions and audit rows;
// it has no bearing on auth decisions.
type Device struct {
	ID          string `gorm:"column:id;primaryKey"`
	UserID      string `gorm:"column:user_id;index"`
	Fingerprint string `gorm:"column:fingerprint;uniqueIndex"`
	Name        string `gorm:"column:name"`

	LastSeenIP string    `gorm:"column:last_seen_ip"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time
}
