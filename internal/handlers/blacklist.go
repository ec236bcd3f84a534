package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/zmnix/keygate/internal/database"
	"github.com/zmnix/keygate/internal/middleware"
	"github.com/zmnix/keygate/internal/models"
	"gorm.io/gorm"
)

// BlacklistHandler manages team blacklist entries. The verification path
// never writes through here; it only reads entries and bumps hit counters.
type BlacklistHandler struct{}

// NewBlacklistHandler creates a new blacklist handler
func NewBlacklistHandler() *BlacklistHandler {
	return &BlacklistHandler{}
}

type blacklistRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (r *blacklistRequest) normalize() (models.BlacklistType, string, string) {
	t := models.BlacklistType(strings.ToUpper(strings.TrimSpace(r.Type)))
	value := strings.TrimSpace(r.Value)

	switch t {
	case models.BlacklistTypeCountry:
		value = strings.ToUpper(value)
		if len(value) != 3 {
			return "", "", "Country entries must be ISO alpha-3 codes"
		}
	case models.BlacklistTypeIPAddress, models.BlacklistTypeDeviceIdentifier:
		if value == "" {
			return "", "", "Value must not be empty"
		}
	default:
		return "", "", "Type must be COUNTRY, IP_ADDRESS or DEVICE_IDENTIFIER"
	}

	return t, value, ""
}

// List returns the team's blacklist entries
func (h *BlacklistHandler) List(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var entries []models.Blacklist
	err := database.DB.
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to list blacklist entries",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
	})
}

// Create adds a blacklist entry
func (h *BlacklistHandler) Create(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var req blacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	entryType, value, msg := req.normalize()
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	entry := models.Blacklist{
		TeamID: teamID,
		Type:   entryType,
		Value:  value,
	}
	if err := database.DB.Create(&entry).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Blacklist entry already exists",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

// Update rewrites an entry's type and value; the hit counter is kept.
func (h *BlacklistHandler) Update(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	var entry models.Blacklist
	err := database.DB.
		Where("team_id = ? AND id = ?", teamID, c.Params("id")).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Blacklist entry not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load blacklist entry",
		})
	}

	var req blacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	entryType, value, msg := req.normalize()
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	entry.Type = entryType
	entry.Value = value
	if err := database.DB.Save(&entry).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Blacklist entry already exists",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

// Delete removes an entry
func (h *BlacklistHandler) Delete(c *fiber.Ctx) error {
	teamID := middleware.GetTeamID(c)

	result := database.DB.
		Where("team_id = ? AND id = ?", teamID, c.Params("id")).
		Delete(&models.Blacklist{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete blacklist entry",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Blacklist entry not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Blacklist entry deleted",
	})
}
