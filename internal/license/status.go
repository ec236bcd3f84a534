package license

import (
	"time"

	"github.com/zmnix/keygate/internal/models"
)

// Status is the evaluated state of a license at a point in time.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusExpiring  Status = "EXPIRING"
	StatusExpired   Status = "EXPIRED"
	StatusSuspended Status = "SUSPENDED"
)

// activityWindow is both the expiring-soon lookahead and the inactivity
// threshold. The two checks must share one constant.
const activityWindow = 30 * 24 * time.Hour

// StatusOf maps a license record and the current time to its status.
// Precedence, first match wins:
//  1. suspended licenses are SUSPENDED no matter what
//  2. a set expiration date past/near now gives EXPIRED/EXPIRING
//  3. a DURATION license whose countdown has not started yet, and NEVER
//     licenses, fall through to the activity check
func StatusOf(lic *models.License, now time.Time) Status {
	if lic.Suspended {
		return StatusSuspended
	}

	// DATE licenses always carry a date; DURATION licenses only once the
	// first activation started the countdown.
	if lic.ExpirationType != models.ExpirationTypeNever && lic.ExpirationDate != nil {
		expiration := *lic.ExpirationDate
		if now.After(expiration) {
			return StatusExpired
		}
		if now.After(expiration.Add(-activityWindow)) {
			return StatusExpiring
		}
	}

	if now.Sub(lic.LastActiveAt) > activityWindow {
		return StatusInactive
	}
	return StatusActive
}

// Usable reports whether a status allows the client to keep operating.
// SUSPENDED and EXPIRED are hard rejections; INACTIVE only means the
// license has not been seen lately and is likewise not accepted.
func (s Status) Usable() bool {
	return s == StatusActive || s == StatusExpiring
}
