package handlers

import (
	"scoreboard-ingest-system/middleware"
	"scoreboard-ingest-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes wires the operator surface behind gateway auth.
func SetupAdminRoutes(app *fiber.App, deviceService *services.DeviceService, ingestService *services.IngestService, unmatchedService *services.UnmatchedService) {
	admin := app.Group("/admin", middleware.GatewayAuthMiddleware())

	// Device registry
	admin.Post("/devices", deviceService.Register)
	admin.Get("/devices", deviceService.ListDevices)
	admin.Patch("/devices/:id/enabled", deviceService.SetEnabled)

	// Ingests
	admin.Get("/ingests", ingestService.ListIngests)
	admin.Post("/ingests/:id/process", ingestService.AdminProcess)

	// Manual assignment queue
	admin.Get("/unmatched", unmatchedService.ListUnmatched)
	admin.Post("/unmatched/:id/assign", unmatchedService.Assign)

	// Settings
	admin.Get("/settings/retention", ingestService.GetRetention)
	admin.Put("/settings/retention", ingestService.SetRetention)
}
