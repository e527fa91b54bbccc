// scoreboard-ingest-system/services/vision_client.go
package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"scoreboard-ingest-system/utils"
)

// ExtractedPlayer is one scoreboard row as the vision collaborator read it.
type ExtractedPlayer struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Goals    int    `json:"goals"`
	Assists  int    `json:"assists"`
	Saves    int    `json:"saves"`
	Shots    int    `json:"shots"`
	Score    int    `json:"score"`
	MVP      bool   `json:"mvp"`
}

type ExtractionTeams struct {
	Blue   []ExtractedPlayer `json:"blue"`
	Orange []ExtractedPlayer `json:"orange"`
}

type ExtractionMatch struct {
	WinningTeam string `json:"winning_team"` // blue | orange
}

// Extraction is the strongly-typed shape of the collaborator's output,
// validated at the boundary before anything downstream sees it.
type Extraction struct {
	Teams ExtractionTeams `json:"teams"`
	Match ExtractionMatch `json:"match"`
}

type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}

// ExtractionResult is the full collaborator response: the structured board,
// its confidence, and the semantic dedupe signature computed from the
// interpreted content (names + scores + timestamp bucket), not the bytes.
type ExtractionResult struct {
	Extraction      Extraction `json:"extraction"`
	Confidence      float64    `json:"confidence"`
	DedupeSignature string     `json:"dedupe_signature"`
	Model           string     `json:"model"`
	TokenUsage      TokenUsage `json:"token_usage"`
}

// Extractor is the seam between this core and the vision collaborator.
type Extractor interface {
	Extract(imagePaths []string) (*ExtractionResult, error)
}

// VisionClient calls the external vision extraction service over HTTP.
type VisionClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewVisionClient fails explicitly when the backing credential is unset — a
// silent empty extraction would poison every downstream decision.
func NewVisionClient() (*VisionClient, error) {
	baseURL := os.Getenv("VISION_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("VISION_SERVICE_URL is not set")
	}
	token := os.Getenv("VISION_SERVICE_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("VISION_SERVICE_TOKEN is not set")
	}
	return &VisionClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  utils.HTTPClient,
	}, nil
}

type visionRequest struct {
	Images []visionImage `json:"images"`
}

type visionImage struct {
	Filename string `json:"filename"`
	Data     string `json:"data"` // base64
}

// Extract sends the stored images to the vision service and validates the
// structured response.
func (c *VisionClient) Extract(imagePaths []string) (*ExtractionResult, error) {
	req := visionRequest{}
	for _, p := range imagePaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", p, err)
		}
		req.Images = append(req.Images, visionImage{
			Filename: p,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest("POST", fmt.Sprintf("%s/extract", c.BaseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vision service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("VisionService /extract returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("vision extraction failed: %d", resp.StatusCode)
	}

	var out ExtractionResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if err := ValidateExtraction(&out.Extraction); err != nil {
		return nil, fmt.Errorf("malformed extraction payload: %w", err)
	}
	return &out, nil
}

// ValidateExtraction rejects malformed collaborator payloads before they
// reach the resolver.
func ValidateExtraction(e *Extraction) error {
	if len(e.Teams.Blue) == 0 && len(e.Teams.Orange) == 0 {
		return fmt.Errorf("no players on either team")
	}
	for _, side := range []struct {
		name    string
		players []ExtractedPlayer
	}{{"blue", e.Teams.Blue}, {"orange", e.Teams.Orange}} {
		for i, p := range side.players {
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("%s player %d has an empty name", side.name, i)
			}
			if p.Goals < 0 || p.Assists < 0 || p.Saves < 0 || p.Shots < 0 || p.Score < 0 {
				return fmt.Errorf("%s player %q has negative stats", side.name, p.Name)
			}
		}
	}
	switch e.Match.WinningTeam {
	case "blue", "orange", "":
	default:
		return fmt.Errorf("unknown winning team %q", e.Match.WinningTeam)
	}
	return nil
}
