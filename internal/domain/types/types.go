// Package types contains the JSON shapes exchanged over the HTTP API.
package types

// Entry represents one row of the top-N leaderboard.
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Player is the public view of a player record.
type Player struct {
	PlayerID  string  `json:"playerId"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// Standing is a player together with its rank.
type Standing struct {
	Player Player `json:"player"`
	Rank   int    `json:"rank"`
}
