package models

import (
	"time"
)

// RequestLog is one append-only row per verification attempt. Rows are
// written by the audit sink and never mutated.
type RequestLog struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	TeamID string `gorm:"type:uuid;index;not null" json:"team_id"`

	Status     string `gorm:"size:40;not null" json:"status"`
	StatusCode int    `gorm:"not null" json:"status_code"`
	Path       string `gorm:"size:255" json:"path"`
	Method     string `gorm:"size:10" json:"method"`
	IPAddress  string `gorm:"size:45" json:"ip_address"`
	Country    string `gorm:"size:3" json:"country"`

	LicenseID  *string `gorm:"type:uuid;index" json:"license_id"`
	CustomerID *string `gorm:"type:uuid" json:"customer_id"`
	ProductID  *string `gorm:"type:uuid" json:"product_id"`
	ReleaseID  *string `gorm:"type:uuid" json:"release_id"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
