package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/zmnix/keygate/internal/database"
	"github.com/zmnix/keygate/internal/license"
	"github.com/zmnix/keygate/internal/middleware"
	"github.com/zmnix/keygate/internal/models"
	"github.com/zmnix/keygate/internal/security"
	"gorm.io/gorm"
)

// LicenseHandler is the management surface for license records. The
// verification engine never goes through these routes; the dashboard does.
type LicenseHandler struct{}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler() *LicenseHandler {
	return &LicenseHandler{}
}

type licenseRequest struct {
	Seats           *int       `json:"seats"`
	IPLimit         *int       `json:"ip_limit"`
	ExpirationType  string     `json:"expiration_type"`
	ExpirationStart string     `json:"expiration_start"`
	ExpirationDate  *time.Time `json:"expiration_date"`
	ExpirationDays  *int       `json:"expiration_days"`
	Suspended       *bool      `json:"suspended"`
	CustomerIDs     []string   `json:"customer_ids"`
	ProductIDs      []string   `json:"product_ids"`
}

// Create mints a fresh key, stores only its ciphertext and lookup token, and
// returns the plaintext once. An exhausted key space is a server error, never
// a colliding key.
func (h *LicenseHandler) Create(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var req licenseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	lic, msg := buildLicense(teamID, &req)
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	key, err := security.GenerateUnique(teamID, func(lookupToken string) (bool, error) {
		var count int64
		err := database.DB.Model(&models.License{}).
			Where("team_id = ? AND lookup_token = ?", teamID, lookupToken).
			Count(&count).Error
		return count > 0, err
	})
	if err != nil {
		log.Printf("License key generation failed for team %s: %v", teamID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate license key",
		})
	}

	ciphertext, err := security.EncryptKey(key)
	if err != nil {
		log.Printf("License key encryption failed for team %s: %v", teamID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to encrypt license key",
		})
	}

	lic.KeyCiphertext = ciphertext
	token, err := security.LookupToken(key, teamID)
	if err != nil {
		log.Printf("Lookup token derivation failed for team %s: %v", teamID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate license key",
		})
	}
	lic.LookupToken = token
	lic.LastActiveAt = time.Now().UTC()

	if err := attachAssociations(lic, teamID, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	if err := database.DB.Create(lic).Error; err != nil {
		log.Printf("Failed to create license for team %s: %v", teamID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create license",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"license": lic,
			// The plaintext key is shown exactly once.
			"key": key,
		},
	})
}

// List returns the team's licenses
func (h *LicenseHandler) List(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var licenses []models.License
	err := database.DB.
		Preload("Customers").
		Preload("Products").
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		Find(&licenses).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to list licenses",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    licenses,
	})
}

// Get returns one license with its decrypted key. A ciphertext that fails
// authentication means tampered stored key material: that is surfaced as a
// server error and alert-logged, never papered over.
func (h *LicenseHandler) Get(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var lic models.License
	err := database.DB.
		Preload("Customers").
		Preload("Products").
		Where("team_id = ? AND id = ?", teamID, c.Params("id")).
		First(&lic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "License not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load license",
		})
	}

	key, err := security.DecryptKey(lic.KeyCiphertext)
	if err != nil {
		log.Printf("ALERT: stored license key failed decryption (license %s, team %s): %v", lic.ID, teamID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Stored license key is corrupted",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"license": lic,
			"key":     key,
		},
	})
}

// Update changes limits, expiration and suspension for a license
func (h *LicenseHandler) Update(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var lic models.License
	err := database.DB.
		Where("team_id = ? AND id = ?", teamID, c.Params("id")).
		First(&lic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "License not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load license",
		})
	}

	var req licenseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.Seats != nil {
		updates["seats"] = *req.Seats
	}
	if req.IPLimit != nil {
		updates["ip_limit"] = *req.IPLimit
	}
	if req.Suspended != nil {
		updates["suspended"] = *req.Suspended
	}
	if req.ExpirationDate != nil {
		updates["expiration_date"] = *req.ExpirationDate
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Nothing to update",
		})
	}

	if err := database.DB.Model(&lic).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update license",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    lic,
	})
}

// Delete removes a license
func (h *LicenseHandler) Delete(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	result := database.DB.
		Where("team_id = ? AND id = ?", teamID, c.Params("id")).
		Delete(&models.License{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete license",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "License not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "License deleted",
	})
}

// StatusOf is exposed so the dashboard can show evaluated statuses without
// duplicating the precedence rules.
func (h *LicenseHandler) Status(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var lic models.License
	err := database.DB.
		Where("team_id = ? AND id = ?", teamID, c.Params("id")).
		First(&lic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "License not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load license",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"status": license.StatusOf(&lic, time.Now().UTC()),
		},
	})
}

func buildLicense(teamID string, req *licenseRequest) (*models.License, string) {
	lic := &models.License{
		TeamID:          teamID,
		Seats:           req.Seats,
		IPLimit:         req.IPLimit,
		ExpirationType:  models.ExpirationTypeNever,
		ExpirationStart: models.ExpirationStartCreation,
	}

	switch models.ExpirationType(req.ExpirationType) {
	case "", models.ExpirationTypeNever:

	case models.ExpirationTypeDate:
		if req.ExpirationDate == nil {
			return nil, "expiration_date is required for DATE expiration"
		}
		lic.ExpirationType = models.ExpirationTypeDate
		lic.ExpirationDate = req.ExpirationDate

	case models.ExpirationTypeDuration:
		if req.ExpirationDays == nil || *req.ExpirationDays <= 0 {
			return nil, "expiration_days is required for DURATION expiration"
		}
		lic.ExpirationType = models.ExpirationTypeDuration
		lic.ExpirationDays = req.ExpirationDays

		switch models.ExpirationStart(req.ExpirationStart) {
		case "", models.ExpirationStartCreation:
			// Countdown starts now; ACTIVATION leaves the date unset until
			// the first valid heartbeat.
			expires := time.Now().UTC().Add(time.Duration(*req.ExpirationDays) * 24 * time.Hour)
			lic.ExpirationDate = &expires
		case models.ExpirationStartActivation:
			lic.ExpirationStart = models.ExpirationStartActivation
		default:
			return nil, "invalid expiration_start"
		}

	default:
		return nil, "invalid expiration_type"
	}

	return lic, ""
}

func attachAssociations(lic *models.License, teamID string, req *licenseRequest) error {
	if len(req.CustomerIDs) > 0 {
		var customers []models.Customer
		if err := database.DB.Where("team_id = ? AND id IN ?", teamID, req.CustomerIDs).Find(&customers).Error; err != nil {
			return errors.New("failed to resolve customers")
		}
		if len(customers) != len(req.CustomerIDs) {
			return errors.New("unknown customer id")
		}
		lic.Customers = customers
	}
	if len(req.ProductIDs) > 0 {
		var products []models.Product
		if err := database.DB.Where("team_id = ? AND id IN ?", teamID, req.ProductIDs).Find(&products).Error; err != nil {
			return errors.New("failed to resolve products")
		}
		if len(products) != len(req.ProductIDs) {
			return errors.New("unknown product id")
		}
		lic.Products = products
	}
	return nil
}
