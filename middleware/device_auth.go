// middleware/device_auth.go
package middleware

import (
	"log"
	"strings"
	"time"

	"scoreboard-ingest-system/models"
	"scoreboard-ingest-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// LocalsDeviceKey is where the authenticated device lands in c.Locals.
const LocalsDeviceKey = "device"

// DeviceAuthMiddleware authenticates a capture device by its bearer token.
// Lookup is by the token's digest, or by the X-Device-ID header when the
// client sends one. A disabled device and a digest mismatch return the exact
// same 403 body so the response does not leak which check failed.
func DeviceAuthMiddleware(db *gorm.DB) fiber.Handler {
	forbidden := func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "device not authorized",
		})
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "device credential missing",
			})
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			token = authHeader
		}
		digest := utils.TokenDigest(token)

		var device models.Device
		if deviceID := c.Get("X-Device-ID"); deviceID != "" {
			if err := db.First(&device, "id = ?", deviceID).Error; err != nil {
				return forbidden(c)
			}
		} else {
			if err := db.First(&device, "token_digest = ?", digest).Error; err != nil {
				return forbidden(c)
			}
		}

		if !device.Enabled || !utils.SecureEqual(device.TokenDigest, digest) {
			return forbidden(c)
		}

		now := time.Now().UTC()
		if err := db.Model(&device).Update("last_seen_at", now).Error; err != nil {
			log.Printf("⚠️ [DEVICE_AUTH] failed to touch last_seen for %s: %v", device.ID, err)
		}

		c.Locals(LocalsDeviceKey, device)
		return c.Next()
	}
}

// DeviceFromContext pulls the authenticated device out of the request context.
func DeviceFromContext(c *fiber.Ctx) (models.Device, bool) {
	device, ok := c.Locals(LocalsDeviceKey).(models.Device)
	return device, ok
}
