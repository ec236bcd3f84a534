package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExpirationType controls how a license expires.
type ExpirationType string

const (
	ExpirationTypeNever    ExpirationType = "NEVER"
	ExpirationTypeDate     ExpirationType = "DATE"
	ExpirationTypeDuration ExpirationType = "DURATION"
)

// ExpirationStart controls when a DURATION license's countdown begins.
type ExpirationStart string

const (
	ExpirationStartCreation   ExpirationStart = "CREATION"
	ExpirationStartActivation ExpirationStart = "ACTIVATION"
)

// License is the central record. The plaintext key is never stored: the
// reversible AES-256-GCM ciphertext lives in KeyCiphertext and the
// deterministic HMAC lookup token in LookupToken, unique per team.
type License struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	TeamID string `gorm:"type:uuid;not null;uniqueIndex:idx_licenses_team_lookup" json:"team_id"`

	KeyCiphertext string `gorm:"type:text;not null" json:"-"`
	LookupToken   string `gorm:"size:64;not null;uniqueIndex:idx_licenses_team_lookup" json:"-"`

	// Nullable limits: nil means unlimited.
	Seats   *int `gorm:"column:seats" json:"seats"`
	IPLimit *int `gorm:"column:ip_limit" json:"ip_limit"`

	ExpirationType  ExpirationType  `gorm:"size:10;default:NEVER" json:"expiration_type"`
	ExpirationStart ExpirationStart `gorm:"size:10;default:CREATION" json:"expiration_start"`
	// Set directly for DATE; computed on first activation for DURATION.
	ExpirationDate *time.Time `json:"expiration_date"`
	ExpirationDays *int       `json:"expiration_days"`

	Suspended    bool      `gorm:"default:false" json:"suspended"`
	LastActiveAt time.Time `gorm:"column:last_active_at" json:"last_active_at"`

	Customers []Customer `gorm:"many2many:license_customers" json:"customers,omitempty"`
	Products  []Product  `gorm:"many2many:license_products" json:"products,omitempty"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (l *License) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Device is one heartbeat association between a license and a client-supplied
// opaque device identifier. Seat accounting counts rows whose LastSeenAt is
// inside the team's device timeout.
type Device struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	LicenseID        string    `gorm:"type:uuid;not null;uniqueIndex:idx_devices_license_identifier" json:"license_id"`
	DeviceIdentifier string    `gorm:"size:1000;not null;uniqueIndex:idx_devices_license_identifier" json:"device_identifier"`
	IPAddress        string    `gorm:"size:45" json:"ip_address"`
	LastSeenAt       time.Time `gorm:"index;not null" json:"last_seen_at"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
}

// Customer is a team-scoped end customer a license can be bound to.
type Customer struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	TeamID    string         `gorm:"type:uuid;index;not null" json:"team_id"`
	Name      string         `gorm:"size:255" json:"name"`
	Email     string         `gorm:"size:255" json:"email"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Product is a team-scoped application a license can be bound to.
type Product struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	TeamID    string         `gorm:"type:uuid;index;not null" json:"team_id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Releases  []Release      `gorm:"foreignKey:ProductID" json:"releases,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Release is a downloadable build of a product. FilePath points into the
// artifact directory served by the classloader endpoint.
type Release struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID string    `gorm:"type:uuid;not null;uniqueIndex:idx_releases_product_version" json:"product_id"`
	Version   string    `gorm:"size:100;not null;uniqueIndex:idx_releases_product_version" json:"version"`
	Branch    string    `gorm:"size:100" json:"branch"`
	FilePath  string    `gorm:"size:500" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (r *Release) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
