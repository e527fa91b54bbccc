package models

// Setting is a simple key/value row for operator-tunable knobs
// (currently only the ingest retention window).
type Setting struct {
	Key   string `json:"key" gorm:"primaryKey"`
	Value string `json:"value"`

	Timestamps
}

const SettingRetentionDays = "retention_days"
