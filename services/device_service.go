package services

import (
	"log"

	"scoreboard-ingest-system/models"
	"scoreboard-ingest-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeviceService struct {
	DB *gorm.DB
}

func NewDeviceService(db *gorm.DB) *DeviceService {
	return &DeviceService{DB: db}
}

// Register issues a new capture-device credential. The plaintext token is
// returned exactly once; only its digest is stored.
func (s *DeviceService) Register(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	// Body is optional — an unnamed device is fine.
	_ = c.BodyParser(&body)

	token, err := utils.NewDeviceToken()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate credential"})
	}

	device := models.Device{
		ID:          uuid.NewString(),
		Name:        body.Name,
		TokenDigest: utils.TokenDigest(token),
		Enabled:     true,
	}
	if err := s.DB.Create(&device).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register device"})
	}

	log.Printf("✅ Registered capture device %s (%q)", device.ID, device.Name)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"device_id": device.ID,
		"name":      device.Name,
		"token":     token, // never retrievable again
		"endpoints": fiber.Map{
			"upload":  "/ingests",
			"process": "/ingests/:id/process",
		},
	})
}

// ListDevices returns every registered device, newest first.
func (s *DeviceService) ListDevices(c *fiber.Ctx) error {
	var devices []models.Device
	if err := s.DB.Order("created_at DESC").Find(&devices).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list devices"})
	}
	return c.JSON(fiber.Map{"devices": devices})
}

// SetEnabled toggles a device. Disabling blocks all future authentication
// immediately but leaves already-completed ingests untouched.
func (s *DeviceService) SetEnabled(c *fiber.Ctx) error {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.BodyParser(&body); err != nil || body.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "enabled (boolean) is required"})
	}

	var device models.Device
	if err := s.DB.First(&device, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "device not found"})
	}

	if err := s.DB.Model(&device).Update("enabled", *body.Enabled).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update device"})
	}

	log.Printf("🔌 Device %s enabled=%t", device.ID, *body.Enabled)
	device.Enabled = *body.Enabled
	return c.JSON(device)
}
