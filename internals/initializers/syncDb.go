package initializers

import (
	"passkey-auth/internals/models"

	"gorm.io/gorm"
)

// Global DB variable to be used across the application
var DB *gorm.DB

func SyncDatabase() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Credential{},
		&models.AuthChallenge{},
		&models.Session{},
		&models.RefreshToken{},
		&models.Device{},
		&models.AuditLog{},
	)
	if err != nil {
		panic("Failed to migrate database")
	}
}
