package models

import (
	"time"
)

// ExtractionAudit records every vision-extraction attempt, success or failure,
// with token usage and estimated cost for observability. One row per attempt,
// so a re-processed ingest accumulates rows.
type ExtractionAudit struct {
	ID       string `json:"id" gorm:"primaryKey"`
	IngestID string `json:"ingest_id" gorm:"index;not null"`

	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`

	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
