package models

import (
	"time"
)

// Ingest lifecycle states. Transitions only move forward:
// received → extracting → extracted | pending_match | failed.
// pending_match and failed may be re-processed (back through extracting).
const (
	IngestStatusReceived     = "received"
	IngestStatusExtracting   = "extracting"
	IngestStatusExtracted    = "extracted"
	IngestStatusPendingMatch = "pending_match"
	IngestStatusFailed       = "failed"
)

// Ingest records a single upload attempt (up to 3 images of the same board).
type Ingest struct {
	ID       string `json:"id" gorm:"primaryKey"`
	DeviceID string `json:"device_id" gorm:"index;not null"`
	Status   string `json:"status" gorm:"type:varchar(16);default:'received';check:status IN ('received','extracting','extracted','pending_match','failed')"`
	Error    string `json:"error,omitempty"`
	Note     string `json:"note,omitempty"` // e.g. "duplicate of an already-processed upload"

	// ContentKey is the digest of the first image's raw bytes; identical
	// re-uploads short-circuit on it before any extraction work.
	ContentKey string `json:"content_key" gorm:"index;not null"`

	// ImagePaths is a JSON array of local file paths backing the vision call.
	ImagePaths string `json:"image_paths" gorm:"type:jsonb"`

	// TargetSessionID is the optional session hint supplied by the device.
	TargetSessionID *string `json:"target_session_id,omitempty"`

	// Resolution results, set once processing binds the upload to a session.
	SessionID       *string `json:"session_id,omitempty" gorm:"index"`
	TeamID          *string `json:"team_id,omitempty"`
	FocusCategoryID *string `json:"focus_category_id,omitempty"`
	MatchID         *string `json:"match_id,omitempty" gorm:"index"`

	ReceivedAt time.Time `json:"received_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
