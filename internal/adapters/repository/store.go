package repository

import (
	"time"

	"github.com/okian/leaderboard/internal/domain/model"
)

// Index is the ordered view the engine keeps in sync with the player table.
type Index interface {
	Insert(playerID string, score float64, createdAt time.Time) error
	Update(playerID string, oldScore float64, oldCreatedAt time.Time, newScore float64) error
	Delete(playerID string) error
	RankOf(playerID string) (int, error)
	At(rank int) (Entry, bool)
	TopN(n int) []Entry
	Clamp(n int) int
	Len() int
}

// Table maps player ids to their current record.
type Table interface {
	Get(playerID string) (model.PlayerRecord, bool)
	Put(rec model.PlayerRecord)
	Delete(playerID string)
	Len() int
	Range(fn func(model.PlayerRecord) bool)
}

// Compile-time checks.
var (
	_ Index = (*RankIndex)(nil)
	_ Table = (*PlayerTable)(nil)
)
