// services/scheduler.go
package services

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"scoreboard-ingest-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
)

const defaultRetentionDays = 30

// RetentionDays reads the operator-set retention window, falling back to the
// default when unset or garbled.
func (s *IngestService) RetentionDays() int {
	var setting models.Setting
	if err := s.DB.First(&setting, "key = ?", models.SettingRetentionDays).Error; err != nil {
		return defaultRetentionDays
	}
	days, err := strconv.Atoi(setting.Value)
	if err != nil || days <= 0 {
		return defaultRetentionDays
	}
	return days
}

// GetRetention returns the current retention-days setting.
func (s *IngestService) GetRetention(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"retention_days": s.RetentionDays()})
}

// SetRetention updates the retention-days setting.
func (s *IngestService) SetRetention(c *fiber.Ctx) error {
	var body struct {
		RetentionDays int `json:"retention_days"`
	}
	if err := c.BodyParser(&body); err != nil || body.RetentionDays <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "retention_days must be a positive integer"})
	}

	setting := models.Setting{Key: models.SettingRetentionDays, Value: strconv.Itoa(body.RetentionDays)}
	if err := s.DB.Save(&setting).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save setting"})
	}
	log.Printf("🗓️ Retention set to %d day(s)", body.RetentionDays)
	return c.JSON(fiber.Map{"retention_days": body.RetentionDays})
}

// PruneExpiredIngests deletes terminal ingests (and their local images) older
// than the retention window. Matches are append-only and never cleaned;
// non-terminal ingests (received/extracting/pending_match) are always left
// alone. Returns the number of pruned rows.
func (s *IngestService) PruneExpiredIngests() int {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays())

	var stale []models.Ingest
	err := s.DB.Where("status IN ? AND received_at < ?",
		[]string{models.IngestStatusExtracted, models.IngestStatusFailed}, cutoff).
		Find(&stale).Error
	if err != nil {
		log.Printf("[Retention] DB error: %v", err)
		return 0
	}

	for _, ingest := range stale {
		var paths []string
		if json.Unmarshal([]byte(ingest.ImagePaths), &paths) == nil && len(paths) > 0 {
			if err := os.RemoveAll(filepath.Dir(paths[0])); err != nil {
				log.Printf("[Retention] Failed to remove images for %s: %v", ingest.ID, err)
			}
		}
		if err := s.DB.Delete(&ingest).Error; err != nil {
			log.Printf("[Retention] Failed to delete ingest %s: %v", ingest.ID, err)
		}
	}
	if len(stale) > 0 {
		log.Printf("🧹 Retention pruned %d ingest(s) older than %d day(s)", len(stale), s.RetentionDays())
	}
	return len(stale)
}

// StartRetentionScheduler runs the retention prune every hour.
func (s *IngestService) StartRetentionScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() { s.PruneExpiredIngests() }),
	)
}
