package models

import (
	"time"
)

// Session mirrors an externally-owned tracked session (see the session sync
// worker). The resolver reads the mirror; only the sync worker writes the
// descriptive columns, and only the match applier writes MatchCount.
type Session struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	TeamID          string     `json:"team_id" gorm:"index"`
	Name            string     `json:"name"`
	Mode            string     `json:"mode" gorm:"type:varchar(8)"` // solo | 2v2 | 3v3 | 4v4
	FocusCategoryID *string    `json:"focus_category_id,omitempty"`
	Active          bool       `json:"active" gorm:"default:true;index"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	MatchCount      int        `json:"match_count" gorm:"default:0"`

	Players []SessionPlayer `json:"players,omitempty" gorm:"foreignKey:SessionID"`

	Timestamps
}

// SessionPlayer is one registered roster member plus the cumulative totals
// this core appends to via the match applier. Gamertag/platform come from the
// sync worker; the stat columns are owned locally and preserved on re-sync.
type SessionPlayer struct {
	ID        string `json:"id" gorm:"primaryKey"`
	SessionID string `json:"session_id" gorm:"index;not null"`
	Gamertag  string `json:"gamertag" gorm:"not null"`
	Platform  string `json:"platform"`

	Goals   int64 `json:"goals" gorm:"default:0"`
	Assists int64 `json:"assists" gorm:"default:0"`
	Saves   int64 `json:"saves" gorm:"default:0"`
	Shots   int64 `json:"shots" gorm:"default:0"`
	Score   int64 `json:"score" gorm:"default:0"`
	Wins    int64 `json:"wins" gorm:"default:0"`
	Losses  int64 `json:"losses" gorm:"default:0"`
}
