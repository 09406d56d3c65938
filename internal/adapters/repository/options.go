package repository

import "math/rand/v2"

// Option applies a configuration option to the RankIndex.
type Option func(*RankIndex)

// WithMaxTopN caps the number of entries TopN may return.
func WithMaxTopN(n int) Option {
	return func(idx *RankIndex) {
		if n > 0 {
			idx.maxTop = n
		}
	}
}

// WithSeed makes treap priorities deterministic.
func WithSeed(seed uint64) Option {
	return func(idx *RankIndex) {
		r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		idx.prio = r.Uint64
	}
}

// TableOption applies a configuration option to the PlayerTable.
type TableOption func(*PlayerTable)

// WithShardCount sets the number of independently locked table shards.
func WithShardCount(n int) TableOption {
	return func(t *PlayerTable) {
		if n > 0 {
			t.shardCount = n
		}
	}
}
