package handlers

import (
	"scoreboard-ingest-system/middleware"
	"scoreboard-ingest-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupIngestRoutes wires the device-facing surface. Every route here is
// authenticated by the device's own credential, not the gateway token.
func SetupIngestRoutes(app *fiber.App, db *gorm.DB, ingestService *services.IngestService) {
	device := app.Group("/ingests", middleware.DeviceAuthMiddleware(db))

	device.Post("/", ingestService.Upload)
	device.Post("/:id/process", ingestService.Process)
}
