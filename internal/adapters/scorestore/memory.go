package scorestore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"github.com/okian/leaderboard/internal/domain/model"
)

// Compile-time check for ensuring MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in a map. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.PlayerRecord
	closed  bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.PlayerRecord)}
}

func (s *MemoryStore) Upsert(ctx context.Context, rec model.PlayerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	cur, ok := s.records[rec.PlayerID]
	if !ok {
		s.records[rec.PlayerID] = rec
		return nil
	}
	// An out-of-order write may still raise the score but never brings back
	// an older name.
	if !rec.UpdatedAt.Before(cur.UpdatedAt) {
		cur.Name = rec.Name
		cur.UpdatedAt = rec.UpdatedAt
	}
	cur.Score = max(cur.Score, rec.Score)
	s.records[rec.PlayerID] = cur
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, playerID string) (model.PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.PlayerRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.PlayerRecord{}, ErrClosed
	}
	rec, ok := s.records[playerID]
	if !ok {
		return model.PlayerRecord{}, xerrors.Errorf("get %q: %w", playerID, model.ErrNotFound)
	}
	return rec, nil
}

// All returns the records ordered by player id, copied at call time.
func (s *MemoryStore) All(ctx context.Context) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	recs := make([]model.PlayerRecord, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b model.PlayerRecord) int {
		return strings.Compare(a.PlayerID, b.PlayerID)
	})
	return &sliceIterator{recs: recs, pos: -1}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// sliceIterator is an Iterator over an in-memory snapshot.
type sliceIterator struct {
	recs []model.PlayerRecord
	pos  int
}

func (i *sliceIterator) Next() bool {
	if i.pos+1 >= len(i.recs) {
		return false
	}
	i.pos++
	return true
}

func (i *sliceIterator) Error() error { return nil }

func (i *sliceIterator) Close() error { return nil }

func (i *sliceIterator) Record() model.PlayerRecord { return i.recs[i.pos] }
