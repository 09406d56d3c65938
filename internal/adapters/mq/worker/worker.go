package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/leaderboard/internal/adapters/mq/queue"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultPartitions     = 4
	defaultWriteTimeout   = 5 * time.Second
	metricsUpdateInterval = 5 * time.Second
)

// Writer persists a record. scorestore.Store satisfies it.
type Writer interface {
	Upsert(ctx context.Context, rec model.PlayerRecord) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs and writes them using the provided Writer.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Wait blocks until Run has returned or ctx expires.
	Wait(ctx context.Context) error
}

// InMemoryWorker implements Worker for one queue.
type InMemoryWorker struct {
	queue        Queue
	writer       Writer
	name         string
	writeTimeout time.Duration

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, w Writer, opts ...Option) *InMemoryWorker {
	wk := &InMemoryWorker{
		queue:        q,
		writer:       w,
		name:         "worker",
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
		logger:       logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(wk)
	}
	if wk.name != "worker" {
		wk.logger = wk.logger.Named(wk.name)
	}
	return wk
}

// Run processes jobs in arrival order until the queue closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "persist failed",
					logger.String("playerId", j.PlayerID),
					logger.Error(err),
				)
			}
		}
	}
}

// Wait blocks until the worker has stopped.
func (w *InMemoryWorker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(metrics.SinceMs(start))
	}()

	// Writes already dequeued must finish even while the pool is stopping.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
	defer cancel()

	if err := w.writer.Upsert(wctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordPersist("async", metrics.PersistError)
		metrics.RecordErrorByComponent("worker", "persist_error")
		return fmt.Errorf("upsert %s: %w", j.PlayerID, err)
	}
	metrics.RecordPersist("async", metrics.PersistOK)
	metrics.RecordPersistLatency(metrics.SinceMs(start))
	return nil
}

// Pool owns one queue and one worker per partition. Jobs are routed by
// player id so each player's writes are applied in submission order.
type Pool struct {
	partitions    int
	queueCapacity int
	writer        Writer

	queues  []*queue.InMemoryQueue
	workers []*InMemoryWorker

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool writing to w.
func NewPool(w Writer, opts ...PoolOption) *Pool {
	p := &Pool{
		partitions: defaultPartitions,
		writer:     w,
		shutdown:   make(chan struct{}),
		logger:     logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.queues = make([]*queue.InMemoryQueue, p.partitions)
	p.workers = make([]*InMemoryWorker, p.partitions)
	for i := range p.partitions {
		qopts := []queue.Option{queue.WithName("persist-queue-" + strconv.Itoa(i))}
		if p.queueCapacity > 0 {
			qopts = append(qopts, queue.WithCapacity(p.queueCapacity))
		}
		p.queues[i] = queue.NewInMemoryQueue(qopts...)
		p.workers[i] = NewInMemoryWorker(p.queues[i], w,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
	}

	metrics.UpdateQueueCapacity(p.capacity())
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		metrics.UpdateWorkerActiveCount(len(p.workers))
		go p.startMetricsUpdater(ctx)
		p.logger.Info(ctx, "worker pool started", logger.Int("partitions", p.partitions))
	})
}

// Submit routes rec to its partition queue without blocking.
func (p *Pool) Submit(ctx context.Context, rec model.PlayerRecord) error { //nolint:gocritic // hugeParam: record is copied into the queue
	q := p.queues[p.partition(rec.PlayerID)]
	return q.Enqueue(ctx, rec)
}

// Pending returns the number of queued, not yet written, jobs.
func (p *Pool) Pending() int {
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

func (p *Pool) partition(playerID string) int {
	return int(xxhash.Sum64String(playerID) % uint64(len(p.queues)))
}

func (p *Pool) capacity() int {
	c := 0
	for _, q := range p.queues {
		c += q.Cap()
	}
	return c
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(p.Pending(), p.capacity())
		}
	}
}

// Shutdown closes every queue and waits for the workers to drain them.
func (p *Pool) Shutdown(ctx context.Context) error {
	var firstErr error
	p.stopOnce.Do(func() {
		close(p.shutdown)
		for _, q := range p.queues {
			if err := q.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
		}
		if !p.started.Load() {
			if n := p.Pending(); n > 0 {
				p.logger.Warn(ctx, "pool stopped before start; jobs dropped", logger.Int("pending", n))
			}
			return
		}
		for i, w := range p.workers {
			if err := w.Wait(ctx); err != nil {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		metrics.UpdateWorkerActiveCount(0)
		metrics.UpdateQueueSize(p.Pending(), p.capacity())
	})
	return firstErr
}
