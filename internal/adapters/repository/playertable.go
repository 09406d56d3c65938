package repository

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/leaderboard/internal/domain/model"
)

const defaultShardCount = 16

type tableShard struct {
	mu      sync.RWMutex
	records map[string]model.PlayerRecord
}

// PlayerTable is a sharded hash map from player id to its current record.
type PlayerTable struct {
	shardCount int
	shards     []*tableShard
}

// NewPlayerTable constructs an empty table.
func NewPlayerTable(opts ...TableOption) *PlayerTable {
	t := &PlayerTable{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(t)
	}
	t.shards = make([]*tableShard, t.shardCount)
	for i := range t.shards {
		t.shards[i] = &tableShard{records: make(map[string]model.PlayerRecord)}
	}
	return t
}

func (t *PlayerTable) shard(playerID string) *tableShard {
	return t.shards[xxhash.Sum64String(playerID)%uint64(len(t.shards))]
}

// Get returns the record for playerID, if any.
func (t *PlayerTable) Get(playerID string) (model.PlayerRecord, bool) {
	s := t.shard(playerID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[playerID]
	return rec, ok
}

// Put inserts or overwrites the record wholesale.
func (t *PlayerTable) Put(rec model.PlayerRecord) {
	s := t.shard(rec.PlayerID)
	s.mu.Lock()
	s.records[rec.PlayerID] = rec
	s.mu.Unlock()
}

// Delete removes the record for playerID.
func (t *PlayerTable) Delete(playerID string) {
	s := t.shard(playerID)
	s.mu.Lock()
	delete(s.records, playerID)
	s.mu.Unlock()
}

// Len returns the number of records.
func (t *PlayerTable) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.records)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every record until fn returns false. Iteration order is
// unspecified.
func (t *PlayerTable) Range(fn func(model.PlayerRecord) bool) {
	for _, s := range t.shards {
		s.mu.RLock()
		recs := make([]model.PlayerRecord, 0, len(s.records))
		for _, rec := range s.records {
			recs = append(recs, rec)
		}
		s.mu.RUnlock()
		for _, rec := range recs {
			if !fn(rec) {
				return
			}
		}
	}
}
