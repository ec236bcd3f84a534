package handlers

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/zmnix/keygate/internal/config"
	"github.com/zmnix/keygate/internal/license"
	"github.com/zmnix/keygate/internal/middleware"
	"github.com/zmnix/keygate/internal/models"
	"github.com/zmnix/keygate/internal/services"
)

// VerificationHandler serves the client-facing heartbeat and classloader
// protocols. Every attempt, whatever its verdict, ends up in the audit sink.
type VerificationHandler struct {
	processor *license.Processor
	audit     *services.AuditService
	cfg       *config.Config
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(processor *license.Processor, audit *services.AuditService, cfg *config.Config) *VerificationHandler {
	return &VerificationHandler{
		processor: processor,
		audit:     audit,
		cfg:       cfg,
	}
}

// Heartbeat proves a license seat is valid for a device. Policy rejections
// respond 200 with valid:false; only malformed payloads get a 4xx.
func (h *VerificationHandler) Heartbeat(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	meta := h.clientMeta(c)

	var req license.HeartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		result := malformed()
		h.finish(c, teamID, meta, "heartbeat", result)
		return c.Status(result.HTTPStatus).JSON(verdict(result))
	}

	result := h.processor.Heartbeat(c.Context(), teamID, &req, meta)
	h.finish(c, teamID, meta, "heartbeat", result)
	return c.Status(result.HTTPStatus).JSON(verdict(result))
}

// Classloader runs the same verification chain, then streams the release
// artifact. The full chain completes before the first byte is written; a
// request that fails any check gets the heartbeat JSON verdict instead.
func (h *VerificationHandler) Classloader(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	meta := h.clientMeta(c)

	var req license.HeartbeatRequest
	if err := c.QueryParser(&req); err != nil {
		result := malformed()
		h.finish(c, teamID, meta, "classloader", result)
		return c.Status(result.HTTPStatus).JSON(verdict(result))
	}

	result := h.processor.Classloader(c.Context(), teamID, &req, meta)
	if !result.Valid() {
		h.finish(c, teamID, meta, "classloader", result)
		return c.Status(result.HTTPStatus).JSON(verdict(result))
	}

	path := filepath.Join(h.cfg.ArtifactDir, result.Release.FilePath)
	if _, err := os.Stat(path); err != nil {
		// The artifact is authorized but missing from disk. Nothing has
		// been streamed yet, so the client still gets a clean verdict.
		result.Outcome = license.OutcomeInternalError
		result.Details = "release artifact unavailable"
		result.HTTPStatus = fiber.StatusInternalServerError
		h.finish(c, teamID, meta, "classloader", result)
		return c.Status(result.HTTPStatus).JSON(verdict(result))
	}

	h.finish(c, teamID, meta, "classloader", result)
	c.Set(fiber.HeaderContentType, "application/octet-stream")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filepath.Base(result.Release.FilePath)+`"`)
	return c.SendFile(path)
}

func (h *VerificationHandler) clientMeta(c *fiber.Ctx) license.ClientMeta {
	return license.ClientMeta{
		IP:      c.IP(),
		Country: c.Get(h.cfg.GeoCountryHeader),
		Path:    c.Path(),
		Method:  c.Method(),
	}
}

// finish records metrics and hands the attempt to the audit sink. Nothing
// here can change the verdict.
func (h *VerificationHandler) finish(c *fiber.Ctx, teamID string, meta license.ClientMeta, protocol string, result *license.Result) {
	middleware.VerificationAttempts.WithLabelValues(protocol, string(result.Outcome)).Inc()

	// A team id that is not a UUID cannot go into the uuid-typed team
	// column; the row would never insert. The attempt still counts in the
	// metric above.
	if _, err := uuid.Parse(teamID); err != nil {
		return
	}

	h.audit.Record(models.RequestLog{
		TeamID:     teamID,
		Status:     string(result.Outcome),
		StatusCode: result.HTTPStatus,
		Path:       meta.Path,
		Method:     meta.Method,
		IPAddress:  meta.IP,
		Country:    meta.Country,
		LicenseID:  result.LicenseID,
		CustomerID: result.CustomerID,
		ProductID:  result.ProductID,
		ReleaseID:  result.ReleaseID,
	})
}

func malformed() *license.Result {
	return &license.Result{
		Outcome:    license.OutcomeBadRequest,
		Details:    "malformed payload",
		Timestamp:  time.Now().UTC(),
		HTTPStatus: fiber.StatusBadRequest,
	}
}

func verdict(result *license.Result) fiber.Map {
	body := fiber.Map{
		"valid":     result.Valid(),
		"timestamp": result.Timestamp,
		"details":   result.Details,
	}
	if result.Challenge != "" {
		body["challenge"] = result.Challenge
	}
	return body
}
