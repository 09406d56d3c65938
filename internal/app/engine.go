package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Default engine configuration constants.
const (
	defaultLockStripes = 256
)

// Persister receives every record the engine mutates. Implementations must
// not fail the submission; errors are theirs to log and count.
type Persister interface {
	Persist(ctx context.Context, rec model.PlayerRecord)
}

// Engine combines the player table and the rank index behind one lock so
// that readers always see the two in agreement.
//
// Lock order: player stripe, then engine lock. Persistence runs while the
// stripe is held but after the engine lock is released.
type Engine struct {
	mu      sync.RWMutex
	table   repository.Table
	index   repository.Index
	stripes []sync.Mutex

	persister Persister
	now       func() time.Time
	logger    logger.Logger
}

// EngineOption applies a configuration option to the Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	stripes     int
	tableShards int
	maxTop      int
	seed        *uint64
	persister   Persister
	now         func() time.Time
	logger      logger.Logger
}

// WithLockStripes sets the number of per-player submission locks.
func WithLockStripes(n int) EngineOption {
	return func(c *engineConfig) {
		if n > 0 {
			c.stripes = n
		}
	}
}

// WithTableShards sets the number of player table shards.
func WithTableShards(n int) EngineOption {
	return func(c *engineConfig) {
		if n > 0 {
			c.tableShards = n
		}
	}
}

// WithMaxTop caps the size of Top results.
func WithMaxTop(n int) EngineOption {
	return func(c *engineConfig) {
		if n > 0 {
			c.maxTop = n
		}
	}
}

// WithIndexSeed makes the rank index layout reproducible.
func WithIndexSeed(seed uint64) EngineOption {
	return func(c *engineConfig) {
		c.seed = &seed
	}
}

// WithPersister sets where mutated records are written.
func WithPersister(p Persister) EngineOption {
	return func(c *engineConfig) {
		c.persister = p
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(c *engineConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewEngine constructs an empty engine.
func NewEngine(opts ...EngineOption) *Engine {
	cfg := engineConfig{
		stripes: defaultLockStripes,
		// Stored timestamps keep microseconds; truncating here keeps the
		// tie-break order identical after a restore.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("engine")
	}

	idxOpts := []repository.Option{repository.WithMaxTopN(cfg.maxTop)}
	if cfg.seed != nil {
		idxOpts = append(idxOpts, repository.WithSeed(*cfg.seed))
	}

	return &Engine{
		table:     repository.NewPlayerTable(repository.WithShardCount(cfg.tableShards)),
		index:     repository.NewRankIndex(idxOpts...),
		stripes:   make([]sync.Mutex, cfg.stripes),
		persister: cfg.persister,
		now:       cfg.now,
		logger:    cfg.logger,
	}
}

func (e *Engine) stripe(playerID string) *sync.Mutex {
	return &e.stripes[xxhash.Sum64String(playerID)%uint64(len(e.stripes))]
}

// Submit records a score for a player and returns the record after the
// submission. Only the best score is kept; the name is always refreshed.
func (e *Engine) Submit(ctx context.Context, playerID, name string, score float64) (model.PlayerRecord, error) {
	if err := model.ValidateIdentity(playerID, name); err != nil {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return model.PlayerRecord{}, fmt.Errorf("submit: %w", err)
	}
	score, err := model.ValidateScore(score)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return model.PlayerRecord{}, fmt.Errorf("submit %q: %w", playerID, err)
	}

	stripe := e.stripe(playerID)
	stripe.Lock()
	defer stripe.Unlock()

	rec, outcome, err := e.apply(playerID, name, score)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateKey) {
			e.logger.Error(ctx, "index already holds player missing from table",
				logger.String("playerId", playerID),
				logger.Error(err),
			)
			metrics.RecordErrorByComponent("engine", "duplicate_key")
		} else {
			metrics.RecordErrorByComponent("engine", "index_error")
		}
		return model.PlayerRecord{}, fmt.Errorf("submit %q: %w", playerID, err)
	}

	metrics.RecordSubmission(outcome)
	e.logger.Debug(ctx, "submission applied",
		logger.String("playerId", playerID),
		logger.Float64("score", score),
		logger.String("outcome", outcome),
	)

	if e.persister != nil {
		e.persister.Persist(ctx, rec)
	}
	return rec, nil
}

// apply runs the three-way decision under the engine write lock. The table is
// only written after the index operation succeeded.
func (e *Engine) apply(playerID, name string, score float64) (model.PlayerRecord, string, error) {
	start := time.Now()
	defer func() { metrics.RecordIndexUpdateLatency(metrics.SinceMs(start)) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	cur, ok := e.table.Get(playerID)
	switch {
	case !ok:
		rec := model.PlayerRecord{PlayerID: playerID, Name: name, Score: score, CreatedAt: now, UpdatedAt: now}
		if err := e.index.Insert(playerID, score, now); err != nil {
			return model.PlayerRecord{}, "", err
		}
		e.table.Put(rec)
		metrics.UpdatePlayersTotal(e.index.Len())
		return rec, metrics.OutcomeCreated, nil

	case score > cur.Score:
		if err := e.index.Update(playerID, cur.Score, cur.CreatedAt, score); err != nil {
			return model.PlayerRecord{}, "", err
		}
		cur.Score = score
		cur.Name = name
		cur.UpdatedAt = nextUpdate(cur.UpdatedAt, now)
		e.table.Put(cur)
		return cur, metrics.OutcomeImproved, nil

	default:
		cur.Name = name
		cur.UpdatedAt = nextUpdate(cur.UpdatedAt, now)
		e.table.Put(cur)
		return cur, metrics.OutcomeUnchanged, nil
	}
}

// nextUpdate returns now, or one microsecond past prev when the clock has not
// moved past it. Stores order a player's writes by UpdatedAt, so it must grow
// with every mutation.
func nextUpdate(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

// Top returns the first n standings, n clamped to [1, max].
func (e *Engine) Top(ctx context.Context, n int) []model.Standing {
	start := time.Now()
	defer func() { metrics.RecordIndexQueryLatency(metrics.SinceMs(start)) }()

	e.mu.RLock()
	defer e.mu.RUnlock()

	entries := e.index.TopN(n)
	out := make([]model.Standing, 0, len(entries))
	for _, en := range entries {
		rec, ok := e.table.Get(en.PlayerID)
		if !ok {
			// Unreachable while table and index are written under e.mu.
			e.logger.Error(ctx, "indexed player missing from table", logger.String("playerId", en.PlayerID))
			continue
		}
		out = append(out, model.Standing{Rank: en.Rank, Record: rec})
	}
	return out
}

// RankOf returns the player's current standing.
func (e *Engine) RankOf(ctx context.Context, playerID string) (model.Standing, error) {
	start := time.Now()
	defer func() { metrics.RecordIndexQueryLatency(metrics.SinceMs(start)) }()

	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.table.Get(playerID)
	if !ok {
		return model.Standing{}, fmt.Errorf("rank of %q: %w", playerID, model.ErrNotFound)
	}
	rank, err := e.index.RankOf(playerID)
	if err != nil {
		return model.Standing{}, err
	}
	return model.Standing{Rank: rank, Record: rec}, nil
}

// Leader returns the rank 1 standing, or false when nobody has submitted.
func (e *Engine) Leader(ctx context.Context) (model.Standing, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	en, ok := e.index.At(1)
	if !ok {
		return model.Standing{}, false
	}
	rec, ok := e.table.Get(en.PlayerID)
	if !ok {
		e.logger.Error(ctx, "indexed player missing from table", logger.String("playerId", en.PlayerID))
		return model.Standing{}, false
	}
	return model.Standing{Rank: en.Rank, Record: rec}, true
}

// Count returns the number of ranked players.
func (e *Engine) Count(ctx context.Context) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.Len()
}

// MaxTop returns the largest n Top will honor.
func (e *Engine) MaxTop() int {
	return e.index.Clamp(int(^uint(0) >> 1))
}

// Restore loads records read back from the score store. Records are not
// persisted again. Invalid records are skipped; a player seen twice keeps
// the higher score. It returns the number of records applied.
func (e *Engine) Restore(ctx context.Context, records []model.PlayerRecord) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := 0
	for _, rec := range records {
		if err := model.ValidateIdentity(rec.PlayerID, rec.Name); err != nil {
			e.logger.Warn(ctx, "skipping stored record", logger.String("playerId", rec.PlayerID), logger.Error(err))
			continue
		}
		score, err := model.ValidateScore(rec.Score)
		if err != nil {
			e.logger.Warn(ctx, "skipping stored record", logger.String("playerId", rec.PlayerID), logger.Error(err))
			continue
		}
		rec.Score = score
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = e.now()
		}

		cur, ok := e.table.Get(rec.PlayerID)
		switch {
		case !ok:
			if err := e.index.Insert(rec.PlayerID, rec.Score, rec.CreatedAt); err != nil {
				e.logger.Error(ctx, "restore insert failed", logger.String("playerId", rec.PlayerID), logger.Error(err))
				continue
			}
		case rec.Score > cur.Score:
			if err := e.index.Update(rec.PlayerID, cur.Score, cur.CreatedAt, rec.Score); err != nil {
				e.logger.Error(ctx, "restore update failed", logger.String("playerId", rec.PlayerID), logger.Error(err))
				continue
			}
			rec.CreatedAt = cur.CreatedAt
		default:
			continue
		}
		e.table.Put(rec)
		applied++
	}
	metrics.UpdatePlayersTotal(e.index.Len())
	return applied
}
