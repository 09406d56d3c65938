package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Players     int           // Number of distinct players
	Submissions int           // Submissions per player
	TopN        int           // Number of top entries to fetch
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	Seed        uint64        // Seed for scores; 0 picks a random one
	OutputFile  string        // Optional JSON dump of the generated submissions
	Verbose     bool          // Enable verbose logging
}

// Submission is one POST /leaderboard body.
type Submission struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Entry represents a leaderboard entry.
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Player is the player object inside rank responses.
type Player struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Standing is the body of GET /leaderboard/rank/{playerId}.
type Standing struct {
	Player Player `json:"player"`
	Rank   int    `json:"rank"`
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Submitted  int
	Successful int
	Failed     int
	Throttled  int
	RanksRead  int
	TopEntries int
	Mismatches int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
