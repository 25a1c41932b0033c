package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table owned by the vault service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ClaimLedger{},
		&ClaimRecord{},
		&UserProfile{},
		&UserEngagement{},
		&RewardConfigDocument{},
	)
}
