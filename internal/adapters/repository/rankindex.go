// Package repository holds the in-memory ranking state: the rank index and
// the player table.
package repository

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/leaderboard/internal/domain/model"
)

// Treap-based order-statistics index.
//
// Ordering: score DESC, then createdAt ASC, then playerID ASC.
// "before" means ranks earlier, so an in-order traversal yields the
// leaderboard from best to worst. Every node carries its subtree size, which
// turns rank-of into a single root-to-leaf descent.

// Default index configuration constants.
const (
	defaultMaxTopN = 100
)

// Entry is one positional row of the index.
type Entry struct {
	Rank      int
	PlayerID  string
	Score     float64
	CreatedAt time.Time
}

type rankKey struct {
	score     float64
	createdAt time.Time
	id        string
}

// before reports whether a ranks strictly ahead of b.
func (a rankKey) before(b rankKey) bool {
	if a.score != b.score {
		return a.score > b.score // higher score ranks earlier
	}
	if c := a.createdAt.Compare(b.createdAt); c != 0 {
		return c < 0 // earlier achiever ranks earlier
	}
	return a.id < b.id
}

func (a rankKey) equal(b rankKey) bool {
	return a.score == b.score && a.createdAt.Equal(b.createdAt) && a.id == b.id
}

// treap node
type node struct {
	key   rankKey
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, key rankKey, prio uint64) *node {
	if n == nil {
		return &node{key: key, prio: prio, size: 1}
	}
	if key.before(n.key) {
		n.left = insert(n.left, key, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, key, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, key rankKey) *node {
	if n == nil {
		return nil
	}
	if key.equal(n.key) {
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key)
		}
	} else if key.before(n.key) {
		n.left = deleteNode(n.left, key)
	} else {
		n.right = deleteNode(n.right, key)
	}
	fix(n)
	return n
}

// countBefore returns the number of keys that rank strictly ahead of key.
func countBefore(n *node, key rankKey) int {
	count := 0
	for n != nil {
		if n.key.before(key) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// selectAt returns the node at 0-based position pos.
func selectAt(n *node, pos int) *node {
	for n != nil {
		left := nsize(n.left)
		switch {
		case pos < left:
			n = n.left
		case pos == left:
			return n
		default:
			pos -= left + 1
			n = n.right
		}
	}
	return nil
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{
			Rank:      len(*out) + 1,
			PlayerID:  n.key.id,
			Score:     n.key.score,
			CreatedAt: n.key.createdAt,
		})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// RankIndex keeps players ordered by (score desc, createdAt asc, playerID asc)
// and answers positional queries in O(log n).
type RankIndex struct {
	mu     sync.RWMutex
	root   *node
	keys   map[string]rankKey
	maxTop int
	prio   func() uint64 // called with mu held for writing
}

// NewRankIndex constructs an empty index.
func NewRankIndex(opts ...Option) *RankIndex {
	idx := &RankIndex{
		keys:   make(map[string]rankKey),
		maxTop: defaultMaxTopN,
		prio:   rand.Uint64,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Insert adds a new player. It fails with ErrDuplicateKey when the player is
// already indexed; callers must use Update instead.
func (idx *RankIndex) Insert(playerID string, score float64, createdAt time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.keys[playerID]; ok {
		return fmt.Errorf("insert %q: %w", playerID, model.ErrDuplicateKey)
	}
	key := rankKey{score: score, createdAt: createdAt, id: playerID}
	idx.root = insert(idx.root, key, idx.prio())
	idx.keys[playerID] = key
	return nil
}

// Update moves a player from its old key to newScore, keeping createdAt.
// Readers observe either the old or the new position, never both or neither.
func (idx *RankIndex) Update(playerID string, oldScore float64, oldCreatedAt time.Time, newScore float64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old := rankKey{score: oldScore, createdAt: oldCreatedAt, id: playerID}
	cur, ok := idx.keys[playerID]
	if !ok || !cur.equal(old) {
		return fmt.Errorf("update %q: stale key: %w", playerID, model.ErrNotFound)
	}
	next := rankKey{score: newScore, createdAt: oldCreatedAt, id: playerID}
	idx.root = deleteNode(idx.root, old)
	idx.root = insert(idx.root, next, idx.prio())
	idx.keys[playerID] = next
	return nil
}

// Delete removes a player from the index.
func (idx *RankIndex) Delete(playerID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key, ok := idx.keys[playerID]
	if !ok {
		return fmt.Errorf("delete %q: %w", playerID, model.ErrNotFound)
	}
	idx.root = deleteNode(idx.root, key)
	delete(idx.keys, playerID)
	return nil
}

// RankOf returns the 1-based position of the player.
func (idx *RankIndex) RankOf(playerID string) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	key, ok := idx.keys[playerID]
	if !ok {
		return 0, fmt.Errorf("rank of %q: %w", playerID, model.ErrNotFound)
	}
	return countBefore(idx.root, key) + 1, nil
}

// At returns the entry holding the given 1-based rank.
func (idx *RankIndex) At(rank int) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := selectAt(idx.root, rank-1)
	if n == nil {
		return Entry{}, false
	}
	return Entry{Rank: rank, PlayerID: n.key.id, Score: n.key.score, CreatedAt: n.key.createdAt}, true
}

// TopN returns the first n entries, with n clamped to [1, max].
// The slice is built under a single read lock and never changes afterwards.
func (idx *RankIndex) TopN(n int) []Entry {
	n = idx.Clamp(n)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(idx.keys)))
	collectTopN(idx.root, n, &out)
	return out
}

// Clamp bounds a requested result size to [1, max].
func (idx *RankIndex) Clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > idx.maxTop {
		return idx.maxTop
	}
	return n
}

// Len returns the number of indexed players.
func (idx *RankIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.keys)
}

// height is used by tests to check the treap stays balanced.
func (idx *RankIndex) height() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var h func(n *node) int
	h = func(n *node) int {
		if n == nil {
			return 0
		}
		return 1 + max(h(n.left), h(n.right))
	}
	return h(idx.root)
}
