// Package dedupe tracks Idempotency-Key values so a retried submission
// replays its first response instead of being applied twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/leaderboard/internal/domain/model"
)

const defaultMaxSize = 50000

// Entry is what the cache remembers for one key.
type Entry struct {
	// Fingerprint identifies the request body the key was first used with.
	Fingerprint string
	// Record is the response of the completed submission.
	Record model.PlayerRecord
	// Done is false while the first request is still being applied.
	Done bool
}

// Cache records idempotency keys and the outcome they produced.
type Cache interface {
	// SeenAndRecord atomically checks if key was seen and reserves it if not.
	// Returns the stored entry and true if key was already seen, or a zero
	// entry and false if it was newly reserved.
	SeenAndRecord(ctx context.Context, key, fingerprint string) (Entry, bool)

	// Complete stores the response for a reserved key.
	Complete(ctx context.Context, key string, rec model.PlayerRecord)

	// Unrecord removes a key, allowing it to be retried. Used when the
	// reserved request failed.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryCache keeps keys in a map plus an insertion-ordered list used to
// evict the oldest key once maxSize is reached.
type inMemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

type item struct {
	key   string
	entry Entry
}

// NewInMemoryCache creates a new in-memory cache with configuration options.
func NewInMemoryCache(opts ...Option) Cache {
	c := &inMemoryCache{
		maxSize: defaultMaxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *inMemoryCache) SeenAndRecord(ctx context.Context, key, fingerprint string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		return el.Value.(*item).entry, true
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushBack(&item{key: key, entry: Entry{Fingerprint: fingerprint}})
	c.size.Add(1)
	return Entry{}, false
}

func (c *inMemoryCache) Complete(ctx context.Context, key string, rec model.PlayerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		it := el.Value.(*item)
		it.entry.Record = rec
		it.entry.Done = true
	}
}

func (c *inMemoryCache) Unrecord(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
		c.size.Add(-1)
	}
}

// evictOldest must be called with c.mu held.
func (c *inMemoryCache) evictOldest() {
	el := c.order.Front()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.entries, el.Value.(*item).key)
	c.size.Add(-1)
}

// Size returns the current number of keys.
func (c *inMemoryCache) Size() int64 {
	return c.size.Load()
}
