// Package model contains domain models passed between layers.
package model

import (
	"math"
	"strings"
	"time"
)

// PlayerRecord is the authoritative per-player state held by the engine and
// mirrored into the score store.
type PlayerRecord struct {
	PlayerID  string    // unique, stable identity
	Name      string    // display label, last write wins
	Score     float64   // best score seen so far
	CreatedAt time.Time // first insertion; used as the tie-breaker
	UpdatedAt time.Time // last mutation of name or score
}

// Standing is a player record together with its 1-based rank.
type Standing struct {
	Rank   int
	Record PlayerRecord
}

// ValidateScore reports whether score can be stored. -0 is folded into 0 so
// that both compare identically in the rank index.
func ValidateScore(score float64) (float64, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return 0, ErrInvalidScore
	}
	if score == 0 {
		return 0, nil
	}
	return score, nil
}

// ValidateIdentity checks the player id and display name of a submission.
func ValidateIdentity(playerID, name string) error {
	if strings.TrimSpace(playerID) == "" {
		return ErrInvalidPlayer
	}
	if strings.TrimSpace(name) == "" {
		return ErrInvalidPlayer
	}
	return nil
}
