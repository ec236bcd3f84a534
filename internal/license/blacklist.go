package license

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zmnix/keygate/internal/models"
	"gorm.io/gorm"
)

// CheckBlacklist looks for a team-scoped blacklist entry matching the
// request's IP, resolved country or device identifier. The first match wins:
// its hit counter is bumped atomically and the entry is returned so the
// caller can short-circuit the rest of verification. No match returns nil.
func CheckBlacklist(db *gorm.DB, teamID, ip, country, deviceIdentifier string) (*models.Blacklist, error) {
	query := db.Where("team_id = ?", teamID)

	var conditions *gorm.DB
	if ip != "" {
		conditions = db.Where("type = ? AND value = ?", models.BlacklistTypeIPAddress, ip)
	}
	if country != "" {
		cond := db.Where("type = ? AND UPPER(value) = ?", models.BlacklistTypeCountry, strings.ToUpper(country))
		if conditions == nil {
			conditions = cond
		} else {
			conditions = conditions.Or(cond)
		}
	}
	if deviceIdentifier != "" {
		cond := db.Where("type = ? AND value = ?", models.BlacklistTypeDeviceIdentifier, deviceIdentifier)
		if conditions == nil {
			conditions = cond
		} else {
			conditions = conditions.Or(cond)
		}
	}
	if conditions == nil {
		return nil, nil
	}

	var entry models.Blacklist
	err := query.Where(conditions).Order("created_at").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup failed: %w", err)
	}

	// hits = hits + 1 in SQL, never read-modify-write.
	if err := db.Model(&models.Blacklist{}).
		Where("id = ?", entry.ID).
		UpdateColumn("hits", gorm.Expr("hits + 1")).Error; err != nil {
		return nil, fmt.Errorf("blacklist hit increment failed: %w", err)
	}

	return &entry, nil
}
