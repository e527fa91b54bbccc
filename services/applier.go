package services

import (
	"encoding/json"
	"fmt"
	"log"

	"scoreboard-ingest-system/models"
	"scoreboard-ingest-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DerivedMatch is the pure per-match summary computed from an extraction.
type DerivedMatch struct {
	WinningTeam string `json:"winning_team"`
	BlueGoals   int    `json:"blue_goals"`
	OrangeGoals int    `json:"orange_goals"`
	MVP         string `json:"mvp,omitempty"`
}

// DeriveMatch turns a raw extraction into its derived payload. Pure, no side
// effects. The collaborator's explicit winning_team wins; goal totals break
// the tie when it is absent.
func DeriveMatch(ex *Extraction) DerivedMatch {
	d := DerivedMatch{WinningTeam: ex.Match.WinningTeam}
	for _, p := range ex.Teams.Blue {
		d.BlueGoals += p.Goals
	}
	for _, p := range ex.Teams.Orange {
		d.OrangeGoals += p.Goals
	}
	if d.WinningTeam == "" {
		if d.BlueGoals >= d.OrangeGoals {
			d.WinningTeam = TeamBlue
		} else {
			d.WinningTeam = TeamOrange
		}
	}

	bestScore := -1
	for _, p := range append(append([]ExtractedPlayer{}, ex.Teams.Blue...), ex.Teams.Orange...) {
		if p.MVP {
			d.MVP = p.Name
			return d
		}
		if p.Score > bestScore {
			bestScore = p.Score
			d.MVP = p.Name
		}
	}
	return d
}

// CreateMatchParams carries everything needed to persist one resolved match.
// Side names the extracted team that corresponds to the session's roster.
type CreateMatchParams struct {
	SessionID    string
	Source       string
	RawPayload   string
	Confidence   float64
	ContentKey   string
	SignatureKey string
	Extraction   *Extraction
	Side         string
}

// CreateMatchForSession is the single application path shared by automatic
// resolution and manual assignment. Inside one transaction it: re-checks the
// semantic signature scoped to the session (returns the existing match with
// deduped=true on a hit), creates the Match and all MatchPlayer rows, and
// applies the numbers to the session's cumulative totals. Partial writes are
// never observable.
func CreateMatchForSession(db *gorm.DB, p CreateMatchParams) (*models.Match, bool, error) {
	var match *models.Match
	deduped := false

	err := db.Transaction(func(tx *gorm.DB) error {
		if p.SignatureKey != "" {
			var existing models.Match
			err := tx.Where("session_id = ? AND signature_key = ?", p.SessionID, p.SignatureKey).
				First(&existing).Error
			if err == nil {
				match = &existing
				deduped = true
				return nil
			}
			if err != gorm.ErrRecordNotFound {
				return err
			}
		}

		var session models.Session
		if err := tx.Preload("Players").First(&session, "id = ?", p.SessionID).Error; err != nil {
			return fmt.Errorf("session %s not found: %w", p.SessionID, err)
		}

		derived := DeriveMatch(p.Extraction)
		derivedJSON, err := json.Marshal(derived)
		if err != nil {
			return err
		}

		sessionID := session.ID
		teamID := session.TeamID
		m := models.Match{
			ID:             uuid.NewString(),
			SessionID:      &sessionID,
			Source:         p.Source,
			RawPayload:     p.RawPayload,
			DerivedPayload: string(derivedJSON),
			Confidence:     p.Confidence,
			ContentKey:     p.ContentKey,
			SignatureKey:   p.SignatureKey,
		}
		if teamID != "" {
			m.TeamID = &teamID
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		roster := sessionRoster(&session)
		var sessionSide RosterMatch
		players := make([]models.MatchPlayer, 0, len(p.Extraction.Teams.Blue)+len(p.Extraction.Teams.Orange))
		for _, team := range []string{TeamBlue, TeamOrange} {
			extracted := p.Extraction.Teams.Blue
			if team == TeamOrange {
				extracted = p.Extraction.Teams.Orange
			}
			win := derived.WinningTeam == team

			if team == p.Side {
				sessionSide = MatchRoster(roster, extracted)
				for _, mp := range sessionSide.Players {
					players = append(players, models.MatchPlayer{
						ID:             uuid.NewString(),
						MatchID:        m.ID,
						PlayerID:       mp.PlayerID,
						Gamertag:       mp.Gamertag,
						Platform:       mp.Platform,
						Team:           team,
						Goals:          mp.Extracted.Goals,
						Assists:        mp.Extracted.Assists,
						Saves:          mp.Extracted.Saves,
						Shots:          mp.Extracted.Shots,
						Score:          mp.Extracted.Score,
						Win:            win,
						NameConfidence: mp.Confidence,
					})
				}
				continue
			}

			// Opposing side: recorded verbatim, never mapped to the roster.
			for _, e := range extracted {
				players = append(players, models.MatchPlayer{
					ID:       uuid.NewString(),
					MatchID:  m.ID,
					Gamertag: e.Name,
					Platform: e.Platform,
					Team:     team,
					Goals:    e.Goals,
					Assists:  e.Assists,
					Saves:    e.Saves,
					Shots:    e.Shots,
					Score:    e.Score,
					Win:      win,
				})
			}
		}
		if len(players) > 0 {
			if err := tx.Create(&players).Error; err != nil {
				return err
			}
		}

		if err := applyMatchToSession(tx, &session, sessionSide, derived.WinningTeam == p.Side); err != nil {
			return err
		}

		match = &m
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !deduped {
		utils.MatchesApplied.Inc()
	}
	return match, deduped, nil
}

// applyMatchToSession folds one match into the session's running totals.
// Called exactly once per distinct Match, inside the creating transaction.
func applyMatchToSession(tx *gorm.DB, session *models.Session, side RosterMatch, won bool) error {
	matchIndex := session.MatchCount + 1

	for _, mp := range side.Players {
		if mp.PlayerID == nil {
			continue
		}
		updates := map[string]interface{}{
			"goals":   gorm.Expr("goals + ?", mp.Extracted.Goals),
			"assists": gorm.Expr("assists + ?", mp.Extracted.Assists),
			"saves":   gorm.Expr("saves + ?", mp.Extracted.Saves),
			"shots":   gorm.Expr("shots + ?", mp.Extracted.Shots),
			"score":   gorm.Expr("score + ?", mp.Extracted.Score),
		}
		if won {
			updates["wins"] = gorm.Expr("wins + 1")
		} else {
			updates["losses"] = gorm.Expr("losses + 1")
		}
		if err := tx.Model(&models.SessionPlayer{}).
			Where("id = ?", *mp.PlayerID).
			Updates(updates).Error; err != nil {
			return err
		}
	}

	if err := tx.Model(session).Update("match_count", matchIndex).Error; err != nil {
		return err
	}
	log.Printf("📊 Applied match %d to session %s (won=%t)", matchIndex, session.ID, won)
	return nil
}
