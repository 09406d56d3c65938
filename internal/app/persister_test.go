package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leaderboard/internal/adapters/mq/worker"
	"github.com/okian/leaderboard/internal/adapters/scorestore"
	service "github.com/okian/leaderboard/internal/app"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
)

type flakyWriter struct {
	mu     sync.Mutex
	fail   bool
	writes []model.PlayerRecord
	ctxOK  bool
}

func (w *flakyWriter) Upsert(ctx context.Context, rec model.PlayerRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctxOK = ctx.Err() == nil
	if w.fail {
		return errors.New("connection refused")
	}
	w.writes = append(w.writes, rec)
	return nil
}

func (w *flakyWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func TestSyncPersister(t *testing.T) {
	Convey("Given a sync persister", t, func() {
		w := &flakyWriter{}
		p := service.NewSyncPersister(w, logger.Nop())
		rec := model.PlayerRecord{PlayerID: "p1", Name: "Ann", Score: 1}

		Convey("When the caller's context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			p.Persist(ctx, rec)

			Convey("Then the write should still go through", func() {
				So(w.count(), ShouldEqual, 1)
				So(w.ctxOK, ShouldBeTrue)
			})
		})

		Convey("When the store fails", func() {
			w.fail = true

			Convey("Then Persist should not panic or block", func() {
				So(func() { p.Persist(context.Background(), rec) }, ShouldNotPanic)
				So(w.count(), ShouldEqual, 0)
			})
		})

		Convey("When used by an engine whose store fails", func() {
			w.fail = true
			e := service.NewEngine(service.WithPersister(p), service.WithEngineLogger(logger.Nop()))
			got, err := e.Submit(context.Background(), "p1", "Ann", 10)

			Convey("Then the submission should still succeed", func() {
				So(err, ShouldBeNil)
				So(got.Score, ShouldEqual, 10)
			})
		})
	})
}

func TestAsyncPersister(t *testing.T) {
	Convey("Given an async persister over a pool that is not running", t, func() {
		w := &flakyWriter{}
		pool := worker.NewPool(w,
			worker.WithPartitions(1),
			worker.WithQueueCapacity(1),
			worker.WithPoolLogger(logger.Nop()),
		)
		p := service.NewAsyncPersister(pool, w, logger.Nop())
		ctx := context.Background()

		Convey("When more records arrive than the queue holds", func() {
			p.Persist(ctx, model.PlayerRecord{PlayerID: "a", Name: "A", Score: 1})
			p.Persist(ctx, model.PlayerRecord{PlayerID: "b", Name: "B", Score: 2})

			Convey("Then the overflow should be written synchronously", func() {
				So(pool.Pending(), ShouldEqual, 1)
				So(w.count(), ShouldEqual, 1)
				So(w.writes[0].PlayerID, ShouldEqual, "b")
			})

			Convey("And once the pool runs and drains", func() {
				pool.Start(ctx)
				shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				So(pool.Shutdown(shutdownCtx), ShouldBeNil)

				Convey("Then both records should be stored", func() {
					So(w.count(), ShouldEqual, 2)
				})
			})
		})
	})
}

func TestAsyncPersisterOrdering(t *testing.T) {
	Convey("Given an engine persisting through a single-slot queue", t, func() {
		ctx := context.Background()
		store := scorestore.NewMemoryStore()
		pool := worker.NewPool(store,
			worker.WithPartitions(1),
			worker.WithQueueCapacity(1),
			worker.WithPoolLogger(logger.Nop()),
		)
		e := service.NewEngine(
			service.WithPersister(service.NewAsyncPersister(pool, store, logger.Nop())),
			service.WithEngineLogger(logger.Nop()),
		)

		Convey("When a renamed lower score overflows the queue behind a pending write", func() {
			_, err := e.Submit(ctx, "p1", "Old", 10)
			So(err, ShouldBeNil)
			_, err = e.Submit(ctx, "p1", "New", 5)
			So(err, ShouldBeNil)
			So(pool.Pending(), ShouldEqual, 1)

			pool.Start(ctx)
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(pool.Shutdown(shutdownCtx), ShouldBeNil)

			Convey("Then the store should match the engine after the queue drains", func() {
				st, err := e.RankOf(ctx, "p1")
				So(err, ShouldBeNil)
				stored, err := store.Get(ctx, "p1")
				So(err, ShouldBeNil)
				So(st.Record.Name, ShouldEqual, "New")
				So(stored.Name, ShouldEqual, st.Record.Name)
				So(stored.Score, ShouldEqual, 10)
				So(stored.UpdatedAt.Equal(st.Record.UpdatedAt), ShouldBeTrue)
			})
		})
	})
}
