package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BlacklistType is what a blacklist entry matches against.
type BlacklistType string

const (
	BlacklistTypeCountry          BlacklistType = "COUNTRY"
	BlacklistTypeIPAddress        BlacklistType = "IP_ADDRESS"
	BlacklistTypeDeviceIdentifier BlacklistType = "DEVICE_IDENTIFIER"
)

// Blacklist is a team-scoped reject rule. Entries are managed by team admins
// through the management API; the verification path only reads them and bumps
// Hits on match.
type Blacklist struct {
	ID     string        `gorm:"type:uuid;primaryKey" json:"id"`
	TeamID string        `gorm:"type:uuid;not null;uniqueIndex:idx_blacklist_team_type_value" json:"team_id"`
	Type   BlacklistType `gorm:"size:20;not null;uniqueIndex:idx_blacklist_team_type_value" json:"type"`
	Value  string        `gorm:"size:1000;not null;uniqueIndex:idx_blacklist_team_type_value" json:"value"`
	Hits   int64         `gorm:"default:0" json:"hits"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (b *Blacklist) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
