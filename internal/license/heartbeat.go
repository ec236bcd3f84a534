package license

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/zmnix/keygate/internal/database"
	"github.com/zmnix/keygate/internal/models"
	"github.com/zmnix/keygate/internal/security"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outcome is the terminal state of one verification attempt.
type Outcome string

const (
	OutcomeValid         Outcome = "VALID"
	OutcomeInvalid       Outcome = "INVALID"
	OutcomeBlocked       Outcome = "BLOCKED"
	OutcomeBadRequest    Outcome = "BAD_REQUEST"
	OutcomeInternalError Outcome = "INTERNAL_ERROR"
)

// ClientMeta is what the transport layer resolved about the caller. Country
// comes from the edge header and may be empty (geo enrichment fails open);
// the authorization checks themselves never do.
type ClientMeta struct {
	IP      string
	Country string
	Path    string
	Method  string
}

// Result is the assembled verdict. Linkage fields feed the audit sink;
// Release is only set for classloader requests that passed the full chain.
type Result struct {
	Outcome    Outcome
	Details    string
	Timestamp  time.Time
	Challenge  string
	HTTPStatus int

	LicenseID  *string
	CustomerID *string
	ProductID  *string
	ReleaseID  *string
	Release    *models.Release
}

// Valid reports whether the client may keep operating.
func (r *Result) Valid() bool {
	return r.Outcome == OutcomeValid
}

// Processor runs the ordered verification chain: rate limit, blacklist, key
// lookup, strict binding, status, seat accounting, IP accounting. All
// cross-request coordination goes through atomic store operations; the
// processor holds no mutable state of its own.
type Processor struct {
	db      *gorm.DB
	limiter *RateLimiter
	now     func() time.Time
}

func NewProcessor(db *gorm.DB, limiter *RateLimiter) *Processor {
	return &Processor{
		db:      db,
		limiter: limiter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Heartbeat runs the verification chain for the heartbeat protocol.
func (p *Processor) Heartbeat(ctx context.Context, teamID string, req *HeartbeatRequest, meta ClientMeta) *Result {
	return p.process(ctx, teamID, req, meta, false)
}

// Classloader runs the identical chain but additionally resolves the release
// artifact to stream. The caller must not write a single artifact byte
// before this returns VALID.
func (p *Processor) Classloader(ctx context.Context, teamID string, req *HeartbeatRequest, meta ClientMeta) *Result {
	return p.process(ctx, teamID, req, meta, true)
}

func (p *Processor) process(ctx context.Context, teamID string, req *HeartbeatRequest, meta ClientMeta, wantRelease bool) *Result {
	now := p.now()

	// Step 1: payload shape. Fails before any store is touched.
	if _, err := uuid.Parse(teamID); err != nil {
		return p.badRequest(now, "invalid team id")
	}
	if err := req.Validate(); err != nil {
		return p.badRequest(now, "malformed payload")
	}

	// Step 2: rate limit on a composite key so one license cannot starve
	// the rest of the team.
	limitKey := fmt.Sprintf("heartbeat:%s:%s", teamID, req.LicenseKey)
	if p.limiter.IsLimited(ctx, limitKey) {
		return &Result{
			Outcome:    OutcomeBlocked,
			Details:    "rate limit exceeded",
			Timestamp:  now,
			HTTPStatus: fiber.StatusTooManyRequests,
		}
	}

	var team models.Team
	err := p.db.WithContext(ctx).Preload("Settings").First(&team, "id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p.invalid(now, "team not found")
	}
	if err != nil {
		return p.internalError(now, fmt.Errorf("team lookup failed: %w", err))
	}

	// Step 3: blacklist. A match short-circuits everything after it,
	// including the license lookup.
	entry, err := CheckBlacklist(p.db.WithContext(ctx), teamID, meta.IP, meta.Country, req.DeviceIdentifier)
	if err != nil {
		return p.internalError(now, err)
	}
	if entry != nil {
		return &Result{
			Outcome:    OutcomeBlocked,
			Details:    blockedDetails(entry.Type),
			Timestamp:  now,
			HTTPStatus: fiber.StatusForbidden,
		}
	}

	// Step 4: key lookup by deterministic token, no decryption on the hot
	// path.
	token, err := security.LookupToken(req.LicenseKey, teamID)
	if err != nil {
		return p.internalError(now, fmt.Errorf("lookup token failed: %w", err))
	}
	var lic models.License
	err = p.db.WithContext(ctx).
		Preload("Customers").
		Preload("Products").
		Where("team_id = ? AND lookup_token = ?", teamID, token).
		First(&lic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p.invalid(now, "license not found")
	}
	if err != nil {
		return p.internalError(now, fmt.Errorf("license lookup failed: %w", err))
	}

	result := &Result{
		Timestamp:  now,
		Challenge:  req.Challenge,
		LicenseID:  &lic.ID,
		HTTPStatus: fiber.StatusOK,
	}

	// Step 5: strict binding. Each enabled flag requires the request to
	// name an entity already associated with this license.
	if team.Settings.StrictCustomers {
		if !licenseHasCustomer(&lic, req.CustomerID) {
			return p.invalidLinked(result, "customer not found")
		}
	}
	if req.CustomerID != "" && licenseHasCustomer(&lic, req.CustomerID) {
		id := req.CustomerID
		result.CustomerID = &id
	}

	if team.Settings.StrictProducts {
		if !licenseHasProduct(&lic, req.ProductID) {
			return p.invalidLinked(result, "product not found")
		}
	}
	if req.ProductID != "" && licenseHasProduct(&lic, req.ProductID) {
		id := req.ProductID
		result.ProductID = &id
	}

	var release *models.Release
	if team.Settings.StrictReleases || wantRelease {
		release, err = p.resolveRelease(ctx, req)
		if err != nil {
			return p.internalError(now, err)
		}
		if team.Settings.StrictReleases && release == nil {
			return p.invalidLinked(result, "release not found")
		}
	}

	// Step 6: status. Only ACTIVE and EXPIRING keep operating; the caller
	// sees the concrete status as details, nothing more.
	status := StatusOf(&lic, now)
	if !status.Usable() {
		return p.invalidLinked(result, string(status))
	}

	// Step 7: seat accounting. Count other live devices first; a rejected
	// device must leave no row behind, or it would occupy a seat it was
	// never granted. The current device always counts as one seat.
	if lic.Seats != nil {
		cutoff := now.Add(-team.Settings.DeviceTimeout())
		var others int64
		err := p.db.WithContext(ctx).Model(&models.Device{}).
			Where("license_id = ? AND device_identifier <> ? AND last_seen_at > ?", lic.ID, req.DeviceIdentifier, cutoff).
			Count(&others).Error
		if err != nil {
			return p.internalError(now, fmt.Errorf("seat count failed: %w", err))
		}
		if others+1 > int64(*lic.Seats) {
			return p.invalidLinked(result, "seat limit exceeded")
		}
	}
	if err := p.upsertDevice(ctx, &lic, req.DeviceIdentifier, meta.IP, now); err != nil {
		return p.internalError(now, err)
	}

	// Step 8: distinct-IP accounting over the team's window. Store errors
	// fail closed; this is an authorization decision.
	if lic.IPLimit != nil && meta.IP != "" {
		window := team.Settings.IPLimitPeriod.Duration()
		seen, err := database.SetAdd(ctx, database.CounterKeyIPSet+lic.ID, meta.IP, window)
		if err != nil {
			return p.internalError(now, fmt.Errorf("ip accounting failed: %w", err))
		}
		if seen > int64(*lic.IPLimit) {
			return p.invalidLinked(result, "ip limit exceeded")
		}
	}

	// Classloader needs an artifact to stream.
	if wantRelease {
		if release == nil || release.FilePath == "" {
			return p.invalidLinked(result, "release not found")
		}
		result.Release = release
	}
	if release != nil {
		result.ReleaseID = &release.ID
	}

	// Step 9: success bookkeeping. A DURATION license set to start on
	// activation gets its expiration date computed exactly once; the SQL
	// guard keeps concurrent heartbeats from moving the countdown.
	if err := p.markActive(ctx, &lic, now); err != nil {
		return p.internalError(now, err)
	}

	result.Outcome = OutcomeValid
	result.Details = "license key is valid"
	return result
}

func (p *Processor) upsertDevice(ctx context.Context, lic *models.License, deviceIdentifier, ip string, now time.Time) error {
	device := models.Device{
		LicenseID:        lic.ID,
		DeviceIdentifier: deviceIdentifier,
		IPAddress:        ip,
		LastSeenAt:       now,
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "license_id"}, {Name: "device_identifier"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen_at": now,
			"ip_address":   ip,
		}),
	}).Create(&device).Error
	if err != nil {
		return fmt.Errorf("device upsert failed: %w", err)
	}
	return nil
}

func (p *Processor) markActive(ctx context.Context, lic *models.License, now time.Time) error {
	if lic.ExpirationType == models.ExpirationTypeDuration &&
		lic.ExpirationStart == models.ExpirationStartActivation &&
		lic.ExpirationDate == nil && lic.ExpirationDays != nil {
		expires := now.Add(time.Duration(*lic.ExpirationDays) * 24 * time.Hour)
		err := p.db.WithContext(ctx).Model(&models.License{}).
			Where("id = ? AND expiration_date IS NULL", lic.ID).
			UpdateColumn("expiration_date", expires).Error
		if err != nil {
			return fmt.Errorf("failed to start expiration countdown: %w", err)
		}
	}

	err := p.db.WithContext(ctx).Model(&models.License{}).
		Where("id = ?", lic.ID).
		UpdateColumn("last_active_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to update last active time: %w", err)
	}
	return nil
}

// resolveRelease finds the build matching the request: exact version when
// given, otherwise the newest release of the product (optionally narrowed by
// branch). A request naming no product resolves to nothing.
func (p *Processor) resolveRelease(ctx context.Context, req *HeartbeatRequest) (*models.Release, error) {
	if req.ProductID == "" {
		return nil, nil
	}

	query := p.db.WithContext(ctx).Where("product_id = ?", req.ProductID)
	if req.Version != "" {
		query = query.Where("version = ?", req.Version)
	}
	if req.Branch != "" {
		query = query.Where("branch = ?", req.Branch)
	}

	var release models.Release
	err := query.Order("created_at DESC").First(&release).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("release lookup failed: %w", err)
	}
	return &release, nil
}

func licenseHasCustomer(lic *models.License, customerID string) bool {
	if customerID == "" {
		return false
	}
	for _, c := range lic.Customers {
		if c.ID == customerID {
			return true
		}
	}
	return false
}

func licenseHasProduct(lic *models.License, productID string) bool {
	if productID == "" {
		return false
	}
	for _, prod := range lic.Products {
		if prod.ID == productID {
			return true
		}
	}
	return false
}

func blockedDetails(t models.BlacklistType) string {
	switch t {
	case models.BlacklistTypeCountry:
		return "country blacklisted"
	case models.BlacklistTypeDeviceIdentifier:
		return "device identifier blacklisted"
	default:
		return "ip address blacklisted"
	}
}

func (p *Processor) badRequest(now time.Time, details string) *Result {
	return &Result{
		Outcome:    OutcomeBadRequest,
		Details:    details,
		Timestamp:  now,
		HTTPStatus: fiber.StatusBadRequest,
	}
}

func (p *Processor) invalid(now time.Time, details string) *Result {
	return &Result{
		Outcome:    OutcomeInvalid,
		Details:    details,
		Timestamp:  now,
		HTTPStatus: fiber.StatusOK,
	}
}

func (p *Processor) invalidLinked(result *Result, details string) *Result {
	result.Outcome = OutcomeInvalid
	result.Details = details
	result.HTTPStatus = fiber.StatusOK
	return result
}

func (p *Processor) internalError(now time.Time, err error) *Result {
	log.Printf("Verification failed with internal error: %v", err)
	return &Result{
		Outcome:    OutcomeInternalError,
		Details:    "internal server error",
		Timestamp:  now,
		HTTPStatus: fiber.StatusInternalServerError,
	}
}
