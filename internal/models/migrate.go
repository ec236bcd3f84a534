package models

import (
	"gorm.io/gorm"
)

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Team{},
		&TeamSettings{},
		&License{},
		&Device{},
		&Customer{},
		&Product{},
		&Release{},
		&Blacklist{},
		&RequestLog{},
	)
}
