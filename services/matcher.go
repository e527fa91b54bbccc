package services

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

// Tunable matching policy. The weights and cutoffs below are heuristics
// calibrated against observed OCR error rates, not derived constants — see
// DESIGN.md before changing them.
const (
	// Pair scores. A roster of size N maxes out at N*scorePairExact.
	scorePairExact = 2
	scorePairNear  = 1

	// Containment only counts when the shorter side is at least this long,
	// otherwise "a" matches everything.
	containMinLen = 4

	// Edit-distance acceptance: ≤1 always, ≤2 when both names are short
	// (OCR mangles short tags more than long ones, proportionally).
	fuzzyMaxDist      = 1
	fuzzyShortMaxDist = 2
	fuzzyShortLen     = 6
)

var bracketGroups = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeGamertag reduces an on-screen or roster name to a comparable form:
// compatibility-normalize (OCR loves full-width glyphs), transliterate to
// ASCII, lowercase, drop clan tags like "[KDR]" and parenthetical suffixes,
// then strip everything non-alphanumeric.
func NormalizeGamertag(name string) string {
	s := norm.NFKC.String(name)
	s = unidecode.Unidecode(s)
	s = strings.ToLower(s)
	s = bracketGroups.ReplaceAllString(s, "")
	return nonAlnum.ReplaceAllString(s, "")
}

// ScorePair scores one roster name against one extracted name, both already
// normalized. 0 means no acceptable match.
func ScorePair(rosterNorm, extractedNorm string) int {
	if rosterNorm == "" || extractedNorm == "" {
		return 0
	}
	if rosterNorm == extractedNorm {
		return scorePairExact
	}

	shorter := rosterNorm
	if len(extractedNorm) < len(shorter) {
		shorter = extractedNorm
	}
	if len(shorter) >= containMinLen &&
		(strings.Contains(rosterNorm, extractedNorm) || strings.Contains(extractedNorm, rosterNorm)) {
		return scorePairNear
	}

	dist := levenshtein.ComputeDistance(rosterNorm, extractedNorm)
	if dist <= fuzzyMaxDist {
		return scorePairNear
	}
	if dist <= fuzzyShortMaxDist && len(rosterNorm) <= fuzzyShortLen && len(extractedNorm) <= fuzzyShortLen {
		return scorePairNear
	}
	return 0
}

// RosterEntry is one registered player eligible for mapping.
type RosterEntry struct {
	PlayerID string
	Gamertag string
	Platform string
}

// MappedPlayer is the mapping outcome for one extracted scoreboard slot.
// PlayerID is nil when no roster member claimed the name; Gamertag/Platform
// are the roster's when mapped, the raw extraction's otherwise.
type MappedPlayer struct {
	PlayerID   *string
	Gamertag   string
	Platform   string
	Confidence float64
	Extracted  ExtractedPlayer
}

// RosterMatch is the aggregate result of matching one roster against one
// team's extracted names.
type RosterMatch struct {
	Players []MappedPlayer
	Score   int
	Matched int
	Exact   int
	Fuzzy   int
}

// MatchRoster greedily assigns extracted names to roster members, one-to-one:
// each roster member takes the highest-scoring name not yet consumed, so a
// single on-screen name can never map to two tracked players.
func MatchRoster(roster []RosterEntry, extracted []ExtractedPlayer) RosterMatch {
	rosterNorms := make([]string, len(roster))
	for i, r := range roster {
		rosterNorms[i] = NormalizeGamertag(r.Gamertag)
	}
	extractedNorms := make([]string, len(extracted))
	for i, e := range extracted {
		extractedNorms[i] = NormalizeGamertag(e.Name)
	}

	// assignedTo[j] = index into roster that consumed extracted name j
	assignedTo := make([]int, len(extracted))
	for j := range assignedTo {
		assignedTo[j] = -1
	}
	pairScore := make([]int, len(extracted))

	for i := range roster {
		best, bestScore := -1, 0
		for j := range extracted {
			if assignedTo[j] != -1 {
				continue
			}
			if s := ScorePair(rosterNorms[i], extractedNorms[j]); s > bestScore {
				best, bestScore = j, s
			}
		}
		if best != -1 {
			assignedTo[best] = i
			pairScore[best] = bestScore
		}
	}

	result := RosterMatch{Players: make([]MappedPlayer, len(extracted))}
	for j, e := range extracted {
		mp := MappedPlayer{
			Gamertag:  e.Name,
			Platform:  e.Platform,
			Extracted: e,
		}
		if i := assignedTo[j]; i != -1 {
			id := roster[i].PlayerID
			mp.PlayerID = &id
			mp.Gamertag = roster[i].Gamertag
			if roster[i].Platform != "" {
				mp.Platform = roster[i].Platform
			}
			mp.Confidence = float64(pairScore[j]) / float64(scorePairExact)

			result.Score += pairScore[j]
			result.Matched++
			if pairScore[j] == scorePairExact {
				result.Exact++
			} else {
				result.Fuzzy++
			}
		}
		result.Players[j] = mp
	}
	return result
}
