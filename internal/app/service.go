// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/leaderboard/internal/adapters/mq/worker"
	"github.com/okian/leaderboard/internal/adapters/scorestore"
	"github.com/okian/leaderboard/internal/domain/dedupe"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	// Core components
	engine      *Engine
	store       scorestore.Store
	ownStore    bool
	pool        *worker.Pool
	idempotency dedupe.Cache
	cancel      context.CancelFunc

	// Configuration
	storeDriver     string
	storeDSN        string
	persistMode     string
	persistWorkers  int
	queueSize       int
	idempotencySize int
	engineOpts      []EngineOption

	// State
	started  bool
	restored int

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects an already opened store. The service does not close it.
func WithStore(store scorestore.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.ownStore = false
		}
	}
}

// WithStoreDriver selects the store the service opens on Start.
func WithStoreDriver(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
			s.storeDSN = dsn
		}
	}
}

// WithPersistMode sets sync or async persistence.
func WithPersistMode(mode string) Option {
	return func(s *Service) {
		if mode != "" {
			s.persistMode = strings.ToLower(mode)
		}
	}
}

// WithPersistWorkers sets the number of write-behind partitions.
func WithPersistWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.persistWorkers = count
		}
	}
}

// WithQueueSize sets the capacity of each write-behind queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIdempotencySize sets the size of the Idempotency-Key cache.
func WithIdempotencySize(size int) Option {
	return func(s *Service) {
		s.idempotencySize = size
	}
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver:     scorestore.DriverMemory,
		persistMode:     PersistSync,
		persistWorkers:  4,
		queueSize:       10_000,
		idempotencySize: 50_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, rebuilds the in-memory ranking from it and starts
// persistence.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting leaderboard service...")

	if s.store == nil {
		store, err := scorestore.Open(ctx, s.storeDriver, s.storeDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.ownStore = true
	}

	records, err := scorestore.Load(ctx, s.store)
	if err != nil {
		s.closeStore(ctx)
		return fmt.Errorf("restore: %w", err)
	}

	// Workers outlive the Start context; Stop cancels them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	var persister Persister
	switch s.persistMode {
	case PersistAsync:
		s.pool = worker.NewPool(s.store,
			worker.WithPartitions(s.persistWorkers),
			worker.WithQueueCapacity(s.queueSize),
			worker.WithPoolLogger(s.logger.Named("persist")),
		)
		s.pool.Start(runCtx)
		persister = NewAsyncPersister(s.pool, s.store, s.logger.Named("persist"))
	case PersistSync:
		persister = NewSyncPersister(s.store, s.logger.Named("persist"))
	default:
		cancel()
		s.closeStore(ctx)
		return fmt.Errorf("%w: persist mode %q", ErrInvalidOption, s.persistMode)
	}

	opts := append([]EngineOption{
		WithPersister(persister),
		WithEngineLogger(s.logger.Named("engine")),
	}, s.engineOpts...)
	s.engine = NewEngine(opts...)
	s.restored = s.engine.Restore(ctx, records)
	metrics.UpdateStoreRestored(s.restored)

	s.idempotency = dedupe.NewInMemoryCache(dedupe.WithMaxSize(s.idempotencySize))

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.String("store", s.storeDriver),
		logger.String("persistMode", s.persistMode),
		logger.Int("restored", s.restored),
	)
	return nil
}

// Stop drains pending writes and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping leaderboard service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "persist pool did not drain", logger.Error(err))
		}
		s.pool = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.closeStore(ctx)

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

func (s *Service) closeStore(ctx context.Context) {
	if s.store == nil || !s.ownStore {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}
	s.store = nil
}

func (s *Service) current() (*Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.engine, nil
}

// Submit applies a score submission.
func (s *Service) Submit(ctx context.Context, playerID, name string, score float64) (model.PlayerRecord, error) {
	e, err := s.current()
	if err != nil {
		return model.PlayerRecord{}, err
	}
	return e.Submit(ctx, playerID, name, score)
}

// Top returns the first n standings.
func (s *Service) Top(ctx context.Context, n int) ([]model.Standing, error) {
	e, err := s.current()
	if err != nil {
		return nil, err
	}
	return e.Top(ctx, n), nil
}

// RankOf returns a player's standing.
func (s *Service) RankOf(ctx context.Context, playerID string) (model.Standing, error) {
	e, err := s.current()
	if err != nil {
		return model.Standing{}, err
	}
	return e.RankOf(ctx, playerID)
}

// Ping checks the score store.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	started := s.started
	s.mu.RUnlock()
	if !started || store == nil {
		return ErrNotStarted
	}
	return store.Ping(ctx)
}

// SeenAndRecord reserves an idempotency key or returns what it produced.
func (s *Service) SeenAndRecord(ctx context.Context, key, fingerprint string) (dedupe.Entry, bool) {
	s.mu.RLock()
	c := s.idempotency
	s.mu.RUnlock()
	if c == nil {
		return dedupe.Entry{}, false
	}
	entry, seen := c.SeenAndRecord(ctx, key, fingerprint)
	if seen {
		metrics.RecordIdempotentReplay()
	}
	return entry, seen
}

// Complete stores the result for a reserved idempotency key.
func (s *Service) Complete(ctx context.Context, key string, rec model.PlayerRecord) {
	s.mu.RLock()
	c := s.idempotency
	s.mu.RUnlock()
	if c != nil {
		c.Complete(ctx, key, rec)
	}
}

// Unrecord releases an idempotency key after a failed request.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.mu.RLock()
	c := s.idempotency
	s.mu.RUnlock()
	if c != nil {
		c.Unrecord(ctx, key)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"storeDriver": s.storeDriver,
		"persistMode": s.persistMode,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	players := s.engine.Count(ctx)
	stats["totalPlayers"] = players
	stats["restoredPlayers"] = s.restored
	stats["maxTopLimit"] = s.engine.MaxTop()
	stats["idempotencyKeys"] = s.idempotency.Size()
	if leader, ok := s.engine.Leader(ctx); ok {
		stats["leaderId"] = leader.Record.PlayerID
		stats["topScore"] = leader.Record.Score
	}
	if s.pool != nil {
		stats["persistWorkers"] = s.persistWorkers
		stats["pendingWrites"] = s.pool.Pending()
	}
	metrics.UpdatePlayersTotal(players)
	return stats
}
