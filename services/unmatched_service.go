package services

import (
	"encoding/json"
	"fmt"
	"log"

	"scoreboard-ingest-system/models"
	"scoreboard-ingest-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnqueueUnmatched mirrors a pending_match ingest into the operator queue.
// Idempotent per ingest id: re-processing the same ingest refreshes the
// candidate list and cached payloads instead of inserting a second row.
func EnqueueUnmatched(db *gorm.DB, ingest *models.Ingest, resolution Resolution, res *ExtractionResult) error {
	extractNames := func(players []ExtractedPlayer) []string {
		names := make([]string, len(players))
		for i, p := range players {
			names[i] = p.Name
		}
		return names
	}
	blueJSON, _ := json.Marshal(extractNames(res.Extraction.Teams.Blue))
	orangeJSON, _ := json.Marshal(extractNames(res.Extraction.Teams.Orange))
	candidatesJSON, _ := json.Marshal(resolution.Candidates)
	rawJSON, err := json.Marshal(res)
	if err != nil {
		return err
	}
	derivedJSON, _ := json.Marshal(DeriveMatch(&res.Extraction))

	entry := models.UnmatchedIngest{
		ID:               uuid.NewString(),
		IngestID:         ingest.ID,
		Status:           models.UnmatchedStatusPending,
		DetectedMode:     resolution.Mode,
		DetectedTeamSize: resolution.TeamSize,
		BlueNames:        string(blueJSON),
		OrangeNames:      string(orangeJSON),
		Candidates:       string(candidatesJSON),
		RawPayload:       string(rawJSON),
		DerivedPayload:   string(derivedJSON),
		SignatureKey:     res.DedupeSignature,
		Confidence:       res.Confidence,
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ingest_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"detected_mode",
			"detected_team_size",
			"blue_names",
			"orange_names",
			"candidates",
			"raw_payload",
			"derived_payload",
			"signature_key",
			"confidence",
			"updated_at",
		}),
	}).Create(&entry).Error
}

type UnmatchedService struct {
	DB *gorm.DB
}

func NewUnmatchedService(db *gorm.DB) *UnmatchedService {
	return &UnmatchedService{DB: db}
}

// ListUnmatched returns queue entries awaiting an operator, oldest first.
func (s *UnmatchedService) ListUnmatched(c *fiber.Ctx) error {
	var entries []models.UnmatchedIngest
	if err := s.DB.Where("status = ?", models.UnmatchedStatusPending).
		Order("created_at ASC").Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list unmatched captures"})
	}
	return c.JSON(fiber.Map{"unmatched": entries})
}

// Assign binds a queued capture to an operator-chosen session. It re-runs the
// semantic-signature check scoped to that session (the board may already have
// been applied via a different photograph) and otherwise walks the exact same
// match-creation/application path the automatic resolver uses.
func (s *UnmatchedService) Assign(c *fiber.Ctx) error {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}

	var entry models.UnmatchedIngest
	if err := s.DB.First(&entry, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unmatched capture not found"})
	}
	if entry.Status == models.UnmatchedStatusAssigned {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "capture is already assigned"})
	}

	var ingest models.Ingest
	if err := s.DB.First(&ingest, "id = ?", entry.IngestID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "source ingest not found"})
	}

	var session models.Session
	if err := s.DB.Preload("Players").First(&session, "id = ?", body.SessionID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	if !session.Active || session.EndedAt != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session has ended"})
	}

	var res ExtractionResult
	if err := json.Unmarshal([]byte(entry.RawPayload), &res); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cached extraction payload is unreadable"})
	}

	side := bestSideForSession(&session, &res.Extraction)
	match, deduped, err := CreateMatchForSession(s.DB, CreateMatchParams{
		SessionID:    session.ID,
		Source:       "manual_assign",
		RawPayload:   entry.RawPayload,
		Confidence:   entry.Confidence,
		ContentKey:   ingest.ContentKey,
		SignatureKey: entry.SignatureKey,
		Extraction:   &res.Extraction,
		Side:         side,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if deduped {
		utils.DedupHits.WithLabelValues("signature").Inc()
	}
	utils.ManualAssignments.WithLabelValues(fmt.Sprintf("%t", deduped)).Inc()

	if err := s.DB.Model(&entry).Updates(map[string]interface{}{
		"status":              models.UnmatchedStatusAssigned,
		"assigned_session_id": session.ID,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update queue entry"})
	}

	ingestUpdates := map[string]interface{}{
		"status":            models.IngestStatusExtracted,
		"session_id":        session.ID,
		"match_id":          match.ID,
		"focus_category_id": session.FocusCategoryID,
		"note":              "assigned manually by operator",
	}
	if session.TeamID != "" {
		ingestUpdates["team_id"] = session.TeamID
	}
	if err := s.DB.Model(&models.Ingest{}).Where("id = ?", ingest.ID).Updates(ingestUpdates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update ingest"})
	}

	log.Printf("🖇️ Unmatched capture %s assigned to session %s (deduped=%t)", entry.ID, session.ID, deduped)
	return c.JSON(fiber.Map{
		"unmatched_id": entry.ID,
		"ingest_id":    ingest.ID,
		"session_id":   session.ID,
		"match_id":     match.ID,
		"deduped":      deduped,
	})
}
