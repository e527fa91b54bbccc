package models

// UnmatchedIngest statuses
const (
	UnmatchedStatusPending  = "pending"
	UnmatchedStatusAssigned = "assigned"
)

// UnmatchedIngest holds an upload the resolver could not confidently place.
// One row per ingest: re-processing an ingest already queued refreshes the
// candidate list via upsert instead of inserting a second row. Rows are kept
// forever as an audit trail of manual decisions.
type UnmatchedIngest struct {
	ID       string `json:"id" gorm:"primaryKey"`
	IngestID string `json:"ingest_id" gorm:"uniqueIndex;not null"`
	Status   string `json:"status" gorm:"type:varchar(16);default:'pending';check:status IN ('pending','assigned')"`

	DetectedMode     string `json:"detected_mode"`
	DetectedTeamSize int    `json:"detected_team_size"`

	// Extracted rosters and the ranked candidates shown to the operator,
	// all JSON arrays.
	BlueNames   string `json:"blue_names" gorm:"type:jsonb"`
	OrangeNames string `json:"orange_names" gorm:"type:jsonb"`
	Candidates  string `json:"candidates" gorm:"type:jsonb"`

	// Cached extraction artifacts so assignment does not re-run the vision
	// collaborator.
	RawPayload     string  `json:"raw_payload" gorm:"type:jsonb"`
	DerivedPayload string  `json:"derived_payload" gorm:"type:jsonb"`
	SignatureKey   string  `json:"signature_key"`
	Confidence     float64 `json:"confidence"`

	AssignedSessionID *string `json:"assigned_session_id,omitempty"`

	Timestamps
}
