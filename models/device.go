package models

import (
	"time"
)

// Device represents one physical capture unit (phone/tablet photographing the
// end-of-match scoreboard). Only the digest of its credential is stored — the
// plaintext token is returned once at registration and never again.
type Device struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name"`
	TokenDigest string     `json:"-" gorm:"uniqueIndex;not null"`
	Enabled     bool       `json:"enabled" gorm:"default:true"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
