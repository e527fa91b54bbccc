package services

import (
	"fmt"
	"sort"

	"scoreboard-ingest-system/models"

	"gorm.io/gorm"
)

const (
	TeamBlue   = "blue"
	TeamOrange = "orange"
)

// Resolver outcomes.
const (
	ResolutionMatched   = "matched"
	ResolutionAmbiguous = "ambiguous"
	ResolutionUnmatched = "unmatched"
)

// maxCandidates bounds the ranked list returned for operator review.
const maxCandidates = 5

// autoAcceptThreshold is the minimum roster-vs-board score for an automatic
// bind: close to all-exact for small rosters. Deliberately precision-heavy —
// auto-binding the wrong session silently corrupts another team's stats,
// which is strictly worse than one manual click.
func autoAcceptThreshold(rosterSize int) int {
	return rosterSize*2 - 1
}

// TeamSizeAndMode derives the play mode from the extraction alone. Size is
// trusted only when both sides agree and are non-zero.
func TeamSizeAndMode(blueCount, orangeCount int) (int, string) {
	if blueCount == 0 || blueCount != orangeCount {
		return 0, ""
	}
	switch blueCount {
	case 1:
		return 1, "solo"
	case 2:
		return 2, "2v2"
	case 3:
		return 3, "3v3"
	case 4:
		return 4, "4v4"
	}
	return 0, ""
}

// Candidate is one scored session, kept for diagnostics and manual review.
type Candidate struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	Side        string `json:"side"` // which extracted team scored better
	Score       int    `json:"score"`
	Matched     int    `json:"matched"`
	Exact       int    `json:"exact"`
	Fuzzy       int    `json:"fuzzy"`
	RosterSize  int    `json:"roster_size"`
}

// Resolution is the resolver's decision plus everything an operator needs to
// second-guess it.
type Resolution struct {
	Outcome    string      `json:"outcome"`
	SessionID  string      `json:"session_id,omitempty"`
	TeamSize   int         `json:"team_size"`
	Mode       string      `json:"mode"`
	Reason     string      `json:"reason,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

func sessionRoster(s *models.Session) []RosterEntry {
	roster := make([]RosterEntry, len(s.Players))
	for i, p := range s.Players {
		roster[i] = RosterEntry{PlayerID: p.ID, Gamertag: p.Gamertag, Platform: p.Platform}
	}
	return roster
}

// scoreSessionSides scores a session's roster against both extracted teams
// independently and keeps whichever side fits better.
func scoreSessionSides(s *models.Session, ex *Extraction) Candidate {
	roster := sessionRoster(s)
	blue := MatchRoster(roster, ex.Teams.Blue)
	orange := MatchRoster(roster, ex.Teams.Orange)

	side, best := TeamBlue, blue
	if orange.Score > blue.Score {
		side, best = TeamOrange, orange
	}
	return Candidate{
		SessionID:   s.ID,
		SessionName: s.Name,
		Side:        side,
		Score:       best.Score,
		Matched:     best.Matched,
		Exact:       best.Exact,
		Fuzzy:       best.Fuzzy,
		RosterSize:  len(roster),
	}
}

// ResolveSessions decides which candidate session (if any) an extraction
// belongs to. Pure: the caller supplies the active-session pool.
func ResolveSessions(sessions []models.Session, ex *Extraction) Resolution {
	teamSize, mode := TeamSizeAndMode(len(ex.Teams.Blue), len(ex.Teams.Orange))
	res := Resolution{TeamSize: teamSize, Mode: mode}

	var candidates []Candidate
	for i := range sessions {
		s := &sessions[i]
		if mode != "" && s.Mode != "" && s.Mode != mode {
			continue
		}
		if teamSize != 0 && len(s.Players) != teamSize {
			continue
		}
		candidates = append(candidates, scoreSessionSides(s, ex))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Exact > candidates[j].Exact
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	res.Candidates = candidates

	// An uneven or empty board gives no team size; never guess blindly
	// across mode boundaries.
	if teamSize == 0 {
		res.Outcome = ResolutionUnmatched
		res.Reason = "could not derive a team size from the extraction (uneven or empty sides)"
		return res
	}

	var high []Candidate
	for _, c := range candidates {
		if c.Matched >= c.RosterSize && c.Score >= autoAcceptThreshold(c.RosterSize) {
			high = append(high, c)
		}
	}

	switch len(high) {
	case 0:
		res.Outcome = ResolutionUnmatched
		res.Reason = fmt.Sprintf("no %s session cleared the auto-accept threshold", mode)
	case 1:
		res.Outcome = ResolutionMatched
		res.SessionID = high[0].SessionID
	default:
		res.Outcome = ResolutionAmbiguous
		res.Reason = fmt.Sprintf("%d sessions cleared the auto-accept threshold", len(high))
	}
	return res
}

// ResolverService loads the candidate pool and runs the pure resolver.
type ResolverService struct {
	DB *gorm.DB
}

func NewResolverService(db *gorm.DB) *ResolverService {
	return &ResolverService{DB: db}
}

// ActiveSessions returns the sessions currently eligible for matching, with
// rosters preloaded.
func (s *ResolverService) ActiveSessions() ([]models.Session, error) {
	var sessions []models.Session
	err := s.DB.Preload("Players").
		Where("active = ? AND ended_at IS NULL", true).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}
	return sessions, nil
}

// Resolve scores every active session against the extraction.
func (s *ResolverService) Resolve(ex *Extraction) (Resolution, error) {
	sessions, err := s.ActiveSessions()
	if err != nil {
		return Resolution{}, err
	}
	return ResolveSessions(sessions, ex), nil
}
