package service

import (
	"context"
	"time"

	"github.com/okian/leaderboard/internal/adapters/mq/worker"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Persistence modes.
const (
	PersistSync  = "sync"
	PersistAsync = "async"
)

const persistTimeout = 5 * time.Second

// SyncPersister writes each record before the submission returns.
type SyncPersister struct {
	writer worker.Writer
	mode   string
	logger logger.Logger
}

// NewSyncPersister returns a persister writing straight to w.
func NewSyncPersister(w worker.Writer, l logger.Logger) *SyncPersister {
	if l == nil {
		l = logger.Get().Named("persister")
	}
	return &SyncPersister{writer: w, mode: PersistSync, logger: l}
}

// Persist upserts rec. A failure is logged and counted; the in-memory state
// stays authoritative until the next successful write for the player.
func (p *SyncPersister) Persist(ctx context.Context, rec model.PlayerRecord) {
	p.write(ctx, rec, p.mode)
}

func (p *SyncPersister) write(ctx context.Context, rec model.PlayerRecord, mode string) {
	start := time.Now()
	// The write outlives a caller that disconnects after the engine applied.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.writer.Upsert(wctx, rec); err != nil {
		metrics.RecordPersist(mode, metrics.PersistError)
		metrics.RecordErrorByComponent("persister", "upsert_error")
		p.logger.Error(ctx, "persist failed",
			logger.String("playerId", rec.PlayerID),
			logger.String("mode", mode),
			logger.Error(err),
		)
		return
	}
	metrics.RecordPersist(mode, metrics.PersistOK)
	metrics.RecordPersistLatency(metrics.SinceMs(start))
}

// AsyncPersister hands records to the write-behind pool and falls back to a
// synchronous write when the partition queue rejects.
type AsyncPersister struct {
	pool     *worker.Pool
	fallback *SyncPersister
	logger   logger.Logger
}

// NewAsyncPersister returns a persister backed by pool, writing to w directly
// when pool cannot take a job.
func NewAsyncPersister(pool *worker.Pool, w worker.Writer, l logger.Logger) *AsyncPersister {
	if l == nil {
		l = logger.Get().Named("persister")
	}
	return &AsyncPersister{pool: pool, fallback: NewSyncPersister(w, l), logger: l}
}

func (p *AsyncPersister) Persist(ctx context.Context, rec model.PlayerRecord) {
	err := p.pool.Submit(context.WithoutCancel(ctx), rec)
	if err == nil {
		return
	}
	metrics.RecordPersist(PersistAsync, metrics.PersistFallback)
	p.logger.Warn(ctx, "persist queue rejected record; writing synchronously",
		logger.String("playerId", rec.PlayerID),
		logger.Error(err),
	)
	p.fallback.write(ctx, rec, PersistAsync)
}
