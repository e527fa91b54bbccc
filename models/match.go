package models

import (
	"time"
)

// Match records one physically distinct scoreboard event. Exactly one row
// exists per event no matter how many ingests photographed it; rows are
// append-only and never mutated after creation.
type Match struct {
	ID        string  `json:"id" gorm:"primaryKey"`
	SessionID *string `json:"session_id,omitempty" gorm:"index:idx_matches_session_signature"`
	TeamID    *string `json:"team_id,omitempty" gorm:"index"`
	Source    string  `json:"source" gorm:"type:varchar(32);default:'device_upload'"`

	RawPayload     string  `json:"raw_payload" gorm:"type:jsonb"`
	DerivedPayload string  `json:"derived_payload" gorm:"type:jsonb"`
	Confidence     float64 `json:"confidence"`

	// ContentKey mirrors the source ingest's raw-byte digest; SignatureKey is
	// the collaborator's semantic digest of the interpreted board, scoped to
	// the session for duplicate suppression across different photographs.
	ContentKey   string `json:"content_key" gorm:"index"`
	SignatureKey string `json:"signature_key" gorm:"index:idx_matches_session_signature"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`

	Players []MatchPlayer `json:"players,omitempty" gorm:"foreignKey:MatchID"`
}

// MatchPlayer is one player slot on the board, both teams included. PlayerID
// is nil when the on-screen name could not be mapped to the roster; the row is
// never re-mapped afterwards.
type MatchPlayer struct {
	ID       string  `json:"id" gorm:"primaryKey"`
	MatchID  string  `json:"match_id" gorm:"index;not null"`
	PlayerID *string `json:"player_id,omitempty"`

	Gamertag string `json:"gamertag"`
	Platform string `json:"platform"`
	Team     string `json:"team" gorm:"type:varchar(8)"` // blue | orange

	Goals   int  `json:"goals"`
	Assists int  `json:"assists"`
	Saves   int  `json:"saves"`
	Shots   int  `json:"shots"`
	Score   int  `json:"score"`
	Win     bool `json:"win"`

	NameConfidence float64 `json:"name_confidence"`
}
