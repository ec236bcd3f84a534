package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IPLimitPeriod is the window over which distinct client IPs are counted
// against a license's ipLimit.
type IPLimitPeriod string

const (
	IPLimitPeriodDay   IPLimitPeriod = "DAY"
	IPLimitPeriodWeek  IPLimitPeriod = "WEEK"
	IPLimitPeriodMonth IPLimitPeriod = "MONTH"
)

// Duration returns the accounting window for the period.
func (p IPLimitPeriod) Duration() time.Duration {
	switch p {
	case IPLimitPeriodWeek:
		return 7 * 24 * time.Hour
	case IPLimitPeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Team scopes every license, blacklist entry and verification request.
// Membership, billing and dashboard sessions live in the dashboard service;
// this side only consumes the team id and its validation settings.
type Team struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	Settings TeamSettings `gorm:"foreignKey:TeamID" json:"settings"`
}

// TeamSettings holds the per-team verification policy knobs.
type TeamSettings struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	TeamID string `gorm:"type:uuid;uniqueIndex;not null" json:"team_id"`

	// Strict binding: when enabled, heartbeats must name an entity already
	// associated with the license.
	StrictCustomers bool `gorm:"default:false" json:"strict_customers"`
	StrictProducts  bool `gorm:"default:false" json:"strict_products"`
	StrictReleases  bool `gorm:"default:false" json:"strict_releases"`

	// Minutes after which a device identifier no longer counts against the
	// seat limit.
	DeviceTimeoutMinutes int `gorm:"default:60" json:"device_timeout_minutes"`

	IPLimitPeriod IPLimitPeriod `gorm:"size:10;default:DAY" json:"ip_limit_period"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// DeviceTimeout returns the seat-accounting staleness window.
func (s TeamSettings) DeviceTimeout() time.Duration {
	minutes := s.DeviceTimeoutMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
