package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zmnix/keygate/internal/config"
	"github.com/zmnix/keygate/internal/database"
	"github.com/zmnix/keygate/internal/handlers"
	"github.com/zmnix/keygate/internal/license"
	"github.com/zmnix/keygate/internal/middleware"
	"github.com/zmnix/keygate/internal/models"
	"github.com/zmnix/keygate/internal/security"
	"github.com/zmnix/keygate/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Derive license key material before anything touches the codec
	if err := security.Initialize(cfg.LicenseMasterSecret); err != nil {
		log.Fatalf("Failed to initialize key material: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Start the audit sink
	auditService := services.NewAuditService(1024)
	auditService.Start()

	// Verification engine
	limiter := license.NewRateLimiter(license.RedisCounterStore{}, cfg.RateLimitMax, cfg.RateLimitWindow)
	processor := license.NewProcessor(database.DB, limiter)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Keygate API v1.0",
		ServerHeader: "Keygate",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "keygate-api",
		})
	})

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Initialize handlers
	verificationHandler := handlers.NewVerificationHandler(processor, auditService, cfg)
	licenseHandler := handlers.NewLicenseHandler()
	blacklistHandler := handlers.NewBlacklistHandler()

	api := app.Group("/api/v1")

	// Client-facing verification routes (public, rate limited inside the
	// processor chain)
	client := api.Group("/client/teams/:teamId/verification")
	client.Post("/heartbeat", verificationHandler.Heartbeat)
	client.Get("/classloader", verificationHandler.Classloader)

	// Management routes (JWT from the dashboard, team-scoped)
	protected := api.Group("", middleware.AuthRequired(cfg))

	licenses := protected.Group("/licenses")
	licenses.Get("/", licenseHandler.List)
	licenses.Get("/:id", licenseHandler.Get)
	licenses.Get("/:id/status", licenseHandler.Status)
	licenses.Post("/", middleware.AdminOnly(), licenseHandler.Create)
	licenses.Put("/:id", middleware.AdminOnly(), licenseHandler.Update)
	licenses.Delete("/:id", middleware.AdminOnly(), licenseHandler.Delete)

	blacklist := protected.Group("/blacklist", middleware.AdminOnly())
	blacklist.Get("/", blacklistHandler.List)
	blacklist.Post("/", blacklistHandler.Create)
	blacklist.Put("/:id", blacklistHandler.Update)
	blacklist.Delete("/:id", blacklistHandler.Delete)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		app.Shutdown()
		auditService.Stop()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting Keygate API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
