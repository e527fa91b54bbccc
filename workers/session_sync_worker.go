package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"scoreboard-ingest-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionSyncClient mirrors the externally-owned active sessions and their
// rosters into local tables so the resolver can read them without a network
// hop per upload.
type SessionSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewSessionSyncClient(db *gorm.DB) *SessionSyncClient {
	baseURL := os.Getenv("SESSION_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("SESSION_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("INGEST_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("INGEST_SERVICE_TOKEN environment variable is required for session sync")
	}

	return &SessionSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type remotePlayer struct {
	ID       string `json:"id"`
	Gamertag string `json:"gamertag"`
	Platform string `json:"platform"`
}

type remoteSession struct {
	ID              string         `json:"id"`
	TeamID          string         `json:"team_id"`
	Name            string         `json:"name"`
	Mode            string         `json:"mode"`
	FocusCategoryID *string        `json:"focus_category_id"`
	EndedAt         *time.Time     `json:"ended_at"`
	Players         []remotePlayer `json:"players"`
}

// GetActiveSessions fetches the currently active sessions with rosters.
func (c *SessionSyncClient) GetActiveSessions(ctx context.Context) ([]remoteSession, error) {
	url := fmt.Sprintf("%s/api/v1/public/sessions/active", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call session service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("session service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Sessions []remoteSession `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode session service response: %w", err)
	}
	return response.Sessions, nil
}

// SyncOnce upserts the remote sessions and rosters, then deactivates local
// mirrors that are no longer active upstream. Cumulative stat columns on
// session_players are locally owned and must survive a re-sync, so the player
// upsert only touches identity columns.
func (c *SessionSyncClient) SyncOnce(ctx context.Context) error {
	remote, err := c.GetActiveSessions(ctx)
	if err != nil {
		return err
	}

	activeIDs := make([]string, 0, len(remote))
	for _, rs := range remote {
		activeIDs = append(activeIDs, rs.ID)

		session := models.Session{
			ID:              rs.ID,
			TeamID:          rs.TeamID,
			Name:            rs.Name,
			Mode:            rs.Mode,
			FocusCategoryID: rs.FocusCategoryID,
			Active:          true,
			EndedAt:         rs.EndedAt,
		}
		if err := c.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"team_id", "name", "mode", "focus_category_id", "active", "ended_at", "updated_at",
			}),
		}).Create(&session).Error; err != nil {
			return fmt.Errorf("failed to upsert session %s: %w", rs.ID, err)
		}

		for _, rp := range rs.Players {
			player := models.SessionPlayer{
				ID:        rp.ID,
				SessionID: rs.ID,
				Gamertag:  rp.Gamertag,
				Platform:  rp.Platform,
			}
			if err := c.DB.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"session_id", "gamertag", "platform"}),
			}).Create(&player).Error; err != nil {
				return fmt.Errorf("failed to upsert player %s: %w", rp.ID, err)
			}
		}
	}

	// Sessions that vanished upstream are no longer candidates for matching.
	q := c.DB.Model(&models.Session{}).Where("active = ?", true)
	if len(activeIDs) > 0 {
		q = q.Where("id NOT IN ?", activeIDs)
	}
	if err := q.Update("active", false).Error; err != nil {
		return fmt.Errorf("failed to deactivate stale sessions: %w", err)
	}
	return nil
}

// PollSessions keeps the mirror fresh until the context is cancelled.
func PollSessions(ctx context.Context, client *SessionSyncClient, pollInterval time.Duration) {
	log.Println("Starting session mirror polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Session polling stopped.")
			return
		case <-ticker.C:
			if err := client.SyncOnce(ctx); err != nil {
				log.Printf("❌ Session sync error: %v", err)
				continue
			}
		}
	}
}
