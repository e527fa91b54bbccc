package services_test

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"scoreboard-ingest-system/handlers"
	"scoreboard-ingest-system/models"
	"scoreboard-ingest-system/services"
	"scoreboard-ingest-system/utils"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Device{},
		&models.Ingest{},
		&models.Match{},
		&models.MatchPlayer{},
		&models.UnmatchedIngest{},
		&models.Session{},
		&models.SessionPlayer{},
		&models.Setting{},
		&models.ExtractionAudit{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// fakeExtractor satisfies services.Extractor without a vision service.
type fakeExtractor struct {
	result *services.ExtractionResult
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(imagePaths []string) (*services.ExtractionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestApp(t *testing.T, db *gorm.DB, extractor services.Extractor) (*fiber.App, *services.IngestService) {
	t.Helper()
	t.Setenv("INGEST_SERVICE_TOKEN", "test-gateway-token")
	t.Chdir(t.TempDir()) // keep uploaded test images out of the repo

	app := fiber.New()
	ingestService := services.NewIngestService(db, extractor)
	deviceService := services.NewDeviceService(db)
	unmatchedService := services.NewUnmatchedService(db)

	handlers.SetupIngestRoutes(app, db, ingestService)
	handlers.SetupAdminRoutes(app, deviceService, ingestService, unmatchedService)
	return app, ingestService
}

func seedDevice(t *testing.T, db *gorm.DB, name string) (models.Device, string) {
	t.Helper()
	token, err := utils.NewDeviceToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	device := models.Device{
		ID:          uuid.NewString(),
		Name:        name,
		TokenDigest: utils.TokenDigest(token),
		Enabled:     true,
	}
	if err := db.Create(&device).Error; err != nil {
		t.Fatalf("failed to seed device: %v", err)
	}
	return device, token
}

func seedSession(t *testing.T, db *gorm.DB, name, mode string, gamertags ...string) models.Session {
	t.Helper()
	session := models.Session{
		ID:     uuid.NewString(),
		TeamID: uuid.NewString(),
		Name:   name,
		Mode:   mode,
		Active: true,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	for _, tag := range gamertags {
		player := models.SessionPlayer{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Gamertag:  tag,
			Platform:  "steam",
		}
		if err := db.Create(&player).Error; err != nil {
			t.Fatalf("failed to seed player %s: %v", tag, err)
		}
	}
	if err := db.Preload("Players").First(&session, "id = ?", session.ID).Error; err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	return session
}

func uploadRequest(t *testing.T, token string, images ...[]byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i, img := range images {
		part, err := writer.CreateFormFile("images", fmt.Sprintf("board-%d.jpg", i+1))
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(img); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest("POST", "/ingests", body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func processRequest(t *testing.T, token, ingestID string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("POST", fmt.Sprintf("/ingests/%s/process", ingestID), nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func extractionFor(names2v2 [2][]string, winningTeam string, signature string) *services.ExtractionResult {
	mk := func(names []string) []services.ExtractedPlayer {
		out := make([]services.ExtractedPlayer, len(names))
		for i, n := range names {
			out[i] = services.ExtractedPlayer{
				Name: n, Platform: "steam",
				Goals: 1, Assists: 1, Saves: 2, Shots: 3, Score: 300,
			}
		}
		return out
	}
	return &services.ExtractionResult{
		Extraction: services.Extraction{
			Teams: services.ExtractionTeams{
				Blue:   mk(names2v2[0]),
				Orange: mk(names2v2[1]),
			},
			Match: services.ExtractionMatch{WinningTeam: winningTeam},
		},
		Confidence:      0.95,
		DedupeSignature: signature,
		Model:           "vision-test",
		TokenUsage:      services.TokenUsage{Prompt: 1200, Completion: 300},
	}
}
