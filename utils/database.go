package utils

import (
	"fmt"

	"coin-vault-service/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenDatabase connects to Postgres and migrates the vault tables.
// TranslateError maps unique violations to gorm.ErrDuplicatedKey.
func OpenDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
