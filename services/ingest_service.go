package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"scoreboard-ingest-system/middleware"
	"scoreboard-ingest-system/models"
	"scoreboard-ingest-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const maxImagesPerIngest = 3

// Vision pricing used for the audit trail's cost estimate, USD per million
// tokens.
const (
	promptCostPerMTok     = 2.50
	completionCostPerMTok = 10.00
)

type IngestService struct {
	DB        *gorm.DB
	Extractor Extractor
	Resolver  *ResolverService
}

func NewIngestService(db *gorm.DB, extractor Extractor) *IngestService {
	return &IngestService{
		DB:        db,
		Extractor: extractor,
		Resolver:  NewResolverService(db),
	}
}

// Upload accepts a multipart upload of up to 3 scoreboard images from an
// authenticated device. Byte-identical re-uploads short-circuit before any
// work; uploads whose bytes already produced a Match are recorded as
// already-extracted without calling the vision service again.
func (s *IngestService) Upload(c *fiber.Ctx) error {
	device, ok := middleware.DeviceFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "device credential missing"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "multipart body required"})
	}
	files := form.File["images"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "at least one image is required"})
	}
	if len(files) > maxImagesPerIngest {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("at most %d images per upload", maxImagesPerIngest),
		})
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable image"})
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil || len(data) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable image"})
		}
		images = append(images, data)
	}

	// Content dedupe runs on the first image's bytes, before any storage or
	// extraction work.
	contentKey := utils.ContentKey(images[0])

	var existing models.Ingest
	if err := s.DB.Where("content_key = ?", contentKey).First(&existing).Error; err == nil {
		utils.DedupHits.WithLabelValues("content_ingest").Inc()
		log.Printf("♻️  Duplicate upload from device %s → existing ingest %s (%s)", device.ID, existing.ID, existing.Status)
		return c.JSON(fiber.Map{
			"ingest_id": existing.ID,
			"status":    existing.Status,
			"duplicate": true,
		})
	}

	ingestID := uuid.NewString()
	paths := make([]string, 0, len(images))
	for i, fh := range files {
		ext := filepath.Ext(fh.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		destPath := utils.GetUploadPath(filepath.Join("ingests", ingestID, fmt.Sprintf("%d%s", i+1, ext)))
		if err := utils.SaveBytes(destPath, images[i]); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store image"})
		}
		paths = append(paths, destPath)

		if utils.R2Enabled() {
			deviceSlug := slug.Make(device.Name)
			if deviceSlug == "" {
				deviceSlug = device.ID
			}
			key := fmt.Sprintf("ingests/%s/%s-%d%s", deviceSlug, ingestID, i+1, ext)
			if _, err := utils.UploadBytesToR2(key, images[i], fh.Header.Get("Content-Type")); err != nil {
				log.Printf("⚠️ R2 archive failed for %s: %v", key, err)
			}
		}
	}
	pathsJSON, _ := json.Marshal(paths)

	ingest := models.Ingest{
		ID:         ingestID,
		DeviceID:   device.ID,
		Status:     models.IngestStatusReceived,
		ContentKey: contentKey,
		ImagePaths: string(pathsJSON),
	}
	if target := c.FormValue("session_id"); target != "" {
		ingest.TargetSessionID = &target
	}

	// A prior ingest may have already produced a Match from these exact
	// bytes (e.g. re-upload after device reset). Record the new attempt but
	// point it straight at the existing match — no extraction.
	var priorMatch models.Match
	if err := s.DB.Where("content_key = ?", contentKey).First(&priorMatch).Error; err == nil {
		utils.DedupHits.WithLabelValues("content_match").Inc()
		ingest.Status = models.IngestStatusExtracted
		ingest.MatchID = &priorMatch.ID
		ingest.SessionID = priorMatch.SessionID
		ingest.TeamID = priorMatch.TeamID
		ingest.Note = "duplicate of an already-processed upload"
		if err := s.DB.Create(&ingest).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record ingest"})
		}
		return c.JSON(fiber.Map{
			"ingest_id": ingest.ID,
			"status":    ingest.Status,
			"match_id":  priorMatch.ID,
			"duplicate": true,
		})
	}

	if err := s.DB.Create(&ingest).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record ingest"})
	}
	utils.IngestsReceived.Inc()
	log.Printf("📥 Ingest %s received from device %s (%d image(s))", ingest.ID, device.ID, len(paths))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ingest_id": ingest.ID,
		"status":    ingest.Status,
	})
}

// Process runs the extraction/resolution pipeline for a device-owned ingest.
func (s *IngestService) Process(c *fiber.Ctx) error {
	device, ok := middleware.DeviceFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "device credential missing"})
	}

	var ingest models.Ingest
	if err := s.DB.First(&ingest, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "ingest not found"})
	}
	if ingest.DeviceID != device.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "ingest belongs to another device"})
	}

	body, status := s.processIngest(ingest.ID)
	return c.Status(status).JSON(body)
}

// AdminProcess lets an operator (re)process any ingest.
func (s *IngestService) AdminProcess(c *fiber.Ctx) error {
	var ingest models.Ingest
	if err := s.DB.First(&ingest, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "ingest not found"})
	}
	body, status := s.processIngest(ingest.ID)
	return c.Status(status).JSON(body)
}

// ListIngests returns ingests newest first, optionally filtered by status.
func (s *IngestService) ListIngests(c *fiber.Ctx) error {
	q := s.DB.Order("received_at DESC").Limit(200)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var ingests []models.Ingest
	if err := q.Find(&ingests).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list ingests"})
	}
	return c.JSON(fiber.Map{"ingests": ingests})
}

// processIngest drives the lifecycle state machine. Idempotent on the ingest
// id: an ingest already extracted with a match returns that match without any
// work, and a concurrent attempt loses the claim and gets a conflict.
func (s *IngestService) processIngest(ingestID string) (fiber.Map, int) {
	var ingest models.Ingest
	if err := s.DB.First(&ingest, "id = ?", ingestID).Error; err != nil {
		return fiber.Map{"error": "ingest not found"}, fiber.StatusNotFound
	}

	if ingest.Status == models.IngestStatusExtracted && ingest.MatchID != nil {
		return fiber.Map{
			"ingest_id": ingest.ID,
			"status":    ingest.Status,
			"match_id":  *ingest.MatchID,
		}, fiber.StatusOK
	}

	// Claim the ingest. The extracting state doubles as a mutual-exclusion
	// lock: a concurrent processor observes zero affected rows and is
	// rejected rather than queued or restarted.
	claim := s.DB.Model(&models.Ingest{}).
		Where("id = ? AND status <> ?", ingest.ID, models.IngestStatusExtracting).
		Updates(map[string]interface{}{"status": models.IngestStatusExtracting, "error": ""})
	if claim.Error != nil {
		return fiber.Map{"error": "failed to claim ingest"}, fiber.StatusInternalServerError
	}
	if claim.RowsAffected == 0 {
		return fiber.Map{"error": "ingest is already being processed"}, fiber.StatusConflict
	}

	body, status, err := s.runPipeline(&ingest)
	if err != nil {
		log.Printf("❌ Ingest %s failed: %v", ingest.ID, err)
		s.DB.Model(&models.Ingest{}).Where("id = ?", ingest.ID).Updates(map[string]interface{}{
			"status": models.IngestStatusFailed,
			"error":  err.Error(),
		})
		return fiber.Map{
			"ingest_id": ingest.ID,
			"status":    models.IngestStatusFailed,
			"error":     err.Error(),
		}, fiber.StatusInternalServerError
	}
	return body, status
}

func (s *IngestService) runPipeline(ingest *models.Ingest) (fiber.Map, int, error) {
	var paths []string
	if err := json.Unmarshal([]byte(ingest.ImagePaths), &paths); err != nil || len(paths) == 0 {
		return nil, 0, fmt.Errorf("ingest has no stored images")
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, 0, fmt.Errorf("source image %s is no longer available", filepath.Base(p))
		}
	}

	start := time.Now()
	res, err := s.Extractor.Extract(paths)
	duration := time.Since(start)
	utils.ExtractionDuration.Observe(duration.Seconds())
	s.writeAudit(ingest.ID, res, err, duration)
	if err != nil {
		utils.ExtractionFailures.Inc()
		return nil, 0, fmt.Errorf("extraction failed: %w", err)
	}

	rawJSON, err := json.Marshal(res)
	if err != nil {
		return nil, 0, err
	}

	// A device-supplied target session skips roster resolution entirely.
	if ingest.TargetSessionID != nil {
		return s.bindToSession(ingest, *ingest.TargetSessionID, res, string(rawJSON))
	}

	resolution, err := s.Resolver.Resolve(&res.Extraction)
	if err != nil {
		return nil, 0, err
	}
	utils.ResolutionOutcomes.WithLabelValues(resolution.Outcome).Inc()

	if resolution.Outcome == ResolutionMatched {
		return s.bindToSession(ingest, resolution.SessionID, res, string(rawJSON))
	}

	// Not an error: ambiguous/unmatched extractions become pending_match and
	// go to the operator queue. Re-processing refreshes the queued entry.
	reason := resolution.Reason
	if err := EnqueueUnmatched(s.DB, ingest, resolution, res); err != nil {
		return nil, 0, err
	}
	if err := s.DB.Model(&models.Ingest{}).Where("id = ?", ingest.ID).Updates(map[string]interface{}{
		"status": models.IngestStatusPendingMatch,
		"note":   reason,
	}).Error; err != nil {
		return nil, 0, err
	}
	log.Printf("🕵️ Ingest %s pending manual match: %s", ingest.ID, reason)
	return fiber.Map{
		"ingest_id":  ingest.ID,
		"status":     models.IngestStatusPendingMatch,
		"reason":     reason,
		"candidates": resolution.Candidates,
	}, fiber.StatusOK, nil
}

// bindToSession creates (or dedupes onto) the Match for a session and stamps
// the ingest extracted. Shared by automatic resolution and the device's
// explicit session hint; manual assignment goes through the same
// CreateMatchForSession path.
func (s *IngestService) bindToSession(ingest *models.Ingest, sessionID string, res *ExtractionResult, rawJSON string) (fiber.Map, int, error) {
	var session models.Session
	if err := s.DB.Preload("Players").First(&session, "id = ?", sessionID).Error; err != nil {
		return nil, 0, fmt.Errorf("session %s not found", sessionID)
	}
	if !session.Active || session.EndedAt != nil {
		return nil, 0, fmt.Errorf("session %s has ended", sessionID)
	}

	side := bestSideForSession(&session, &res.Extraction)
	match, deduped, err := CreateMatchForSession(s.DB, CreateMatchParams{
		SessionID:    session.ID,
		Source:       "device_upload",
		RawPayload:   rawJSON,
		Confidence:   res.Confidence,
		ContentKey:   ingest.ContentKey,
		SignatureKey: res.DedupeSignature,
		Extraction:   &res.Extraction,
		Side:         side,
	})
	if err != nil {
		return nil, 0, err
	}
	if deduped {
		utils.DedupHits.WithLabelValues("signature").Inc()
	}

	updates := map[string]interface{}{
		"status":            models.IngestStatusExtracted,
		"session_id":        session.ID,
		"match_id":          match.ID,
		"focus_category_id": session.FocusCategoryID,
	}
	if session.TeamID != "" {
		updates["team_id"] = session.TeamID
	}
	if deduped {
		updates["note"] = "bound to an existing match with the same scoreboard signature"
	}
	if err := s.DB.Model(&models.Ingest{}).Where("id = ?", ingest.ID).Updates(updates).Error; err != nil {
		return nil, 0, err
	}

	log.Printf("✅ Ingest %s → session %s, match %s (deduped=%t)", ingest.ID, session.ID, match.ID, deduped)
	return fiber.Map{
		"ingest_id":  ingest.ID,
		"status":     models.IngestStatusExtracted,
		"session_id": session.ID,
		"match_id":   match.ID,
		"deduped":    deduped,
	}, fiber.StatusOK, nil
}

// bestSideForSession picks which extracted team corresponds to the session's
// roster by scoring both sides, same as the resolver does.
func bestSideForSession(session *models.Session, ex *Extraction) string {
	return scoreSessionSides(session, ex).Side
}

func (s *IngestService) writeAudit(ingestID string, res *ExtractionResult, extractErr error, duration time.Duration) {
	audit := models.ExtractionAudit{
		ID:         uuid.NewString(),
		IngestID:   ingestID,
		Success:    extractErr == nil,
		DurationMS: duration.Milliseconds(),
	}
	if extractErr != nil {
		audit.Error = extractErr.Error()
	}
	if res != nil {
		audit.Model = res.Model
		audit.PromptTokens = res.TokenUsage.Prompt
		audit.CompletionTokens = res.TokenUsage.Completion
		audit.EstimatedCostUSD = float64(res.TokenUsage.Prompt)*promptCostPerMTok/1e6 +
			float64(res.TokenUsage.Completion)*completionCostPerMTok/1e6
	}
	if err := s.DB.Create(&audit).Error; err != nil {
		log.Printf("⚠️ Failed to write extraction audit for %s: %v", ingestID, err)
	}
}
