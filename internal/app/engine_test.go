package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/leaderboard/internal/app"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
)

// tickClock returns a time source that advances one second per call.
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type recordingPersister struct {
	mu   sync.Mutex
	recs []model.PlayerRecord
}

func (p *recordingPersister) Persist(_ context.Context, rec model.PlayerRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

func (p *recordingPersister) all() []model.PlayerRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.PlayerRecord(nil), p.recs...)
}

func newEngine(opts ...service.EngineOption) *service.Engine {
	base := []service.EngineOption{
		service.WithClock(tickClock()),
		service.WithEngineLogger(logger.Nop()),
		service.WithIndexSeed(7),
	}
	return service.NewEngine(append(base, opts...)...)
}

func TestEngineSubmit(t *testing.T) {
	Convey("Given an empty engine", t, func() {
		ctx := context.Background()
		persisted := &recordingPersister{}
		e := newEngine(service.WithPersister(persisted))

		Convey("When a new player submits", func() {
			rec, err := e.Submit(ctx, "p1", "Ann", 50)

			Convey("Then the record should be created", func() {
				So(err, ShouldBeNil)
				So(rec.PlayerID, ShouldEqual, "p1")
				So(rec.Name, ShouldEqual, "Ann")
				So(rec.Score, ShouldEqual, 50)
				So(rec.CreatedAt.IsZero(), ShouldBeFalse)
				So(e.Count(ctx), ShouldEqual, 1)
			})

			Convey("Then the record should be persisted", func() {
				So(persisted.all(), ShouldHaveLength, 1)
				So(persisted.all()[0], ShouldResemble, rec)
			})

			Convey("And a lower score arrives with a new name", func() {
				again, err := e.Submit(ctx, "p1", "Ann2", 30)

				Convey("Then the score should be kept and the name refreshed", func() {
					So(err, ShouldBeNil)
					So(again.Score, ShouldEqual, 50)
					So(again.Name, ShouldEqual, "Ann2")
					So(again.CreatedAt, ShouldEqual, rec.CreatedAt)

					st, err := e.RankOf(ctx, "p1")
					So(err, ShouldBeNil)
					So(st.Rank, ShouldEqual, 1)
					So(st.Record.Score, ShouldEqual, 50)
					So(st.Record.Name, ShouldEqual, "Ann2")
				})

				Convey("Then the name-only refresh should be persisted too", func() {
					So(persisted.all(), ShouldHaveLength, 2)
					So(persisted.all()[1].Name, ShouldEqual, "Ann2")
				})
			})

			Convey("And a higher score arrives", func() {
				again, err := e.Submit(ctx, "p1", "Ann", 70)

				Convey("Then the score should improve and createdAt stay", func() {
					So(err, ShouldBeNil)
					So(again.Score, ShouldEqual, 70)
					So(again.CreatedAt, ShouldEqual, rec.CreatedAt)
					So(again.UpdatedAt.After(rec.UpdatedAt), ShouldBeTrue)
				})
			})
		})

		Convey("When invalid submissions arrive", func() {
			_, errNaN := e.Submit(ctx, "p1", "Ann", math.NaN())
			_, errInf := e.Submit(ctx, "p1", "Ann", math.Inf(1))
			_, errNeg := e.Submit(ctx, "p1", "Ann", -1)
			_, errID := e.Submit(ctx, "  ", "Ann", 1)
			_, errName := e.Submit(ctx, "p1", "", 1)

			Convey("Then they should be rejected without touching state", func() {
				So(errors.Is(errNaN, model.ErrInvalidScore), ShouldBeTrue)
				So(errors.Is(errInf, model.ErrInvalidScore), ShouldBeTrue)
				So(errors.Is(errNeg, model.ErrInvalidScore), ShouldBeTrue)
				So(errors.Is(errID, model.ErrInvalidPlayer), ShouldBeTrue)
				So(errors.Is(errName, model.ErrInvalidPlayer), ShouldBeTrue)
				So(e.Count(ctx), ShouldEqual, 0)
				So(persisted.all(), ShouldBeEmpty)
			})
		})

		Convey("When a score of negative zero arrives", func() {
			rec, err := e.Submit(ctx, "z", "Zero", math.Copysign(0, -1))

			Convey("Then it should be stored as zero", func() {
				So(err, ShouldBeNil)
				So(math.Signbit(rec.Score), ShouldBeFalse)
			})
		})
	})
}

func TestEngineQueries(t *testing.T) {
	Convey("Given players p1=90, p2=80, p3=80 submitted in that order", t, func() {
		ctx := context.Background()
		e := newEngine()
		_, _ = e.Submit(ctx, "p1", "One", 90)
		_, _ = e.Submit(ctx, "p2", "Two", 80)
		_, _ = e.Submit(ctx, "p3", "Three", 80)

		Convey("When the top is requested", func() {
			top := e.Top(ctx, 10)

			Convey("Then ties should be broken by who reached the score first", func() {
				So(top, ShouldHaveLength, 3)
				So(top[0].Record.PlayerID, ShouldEqual, "p1")
				So(top[1].Record.PlayerID, ShouldEqual, "p2")
				So(top[2].Record.PlayerID, ShouldEqual, "p3")
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].Rank, ShouldEqual, 3)
				So(top[1].Record.Name, ShouldEqual, "Two")
			})
		})

		Convey("When ranks are requested", func() {
			r2, err2 := e.RankOf(ctx, "p2")
			r3, err3 := e.RankOf(ctx, "p3")

			Convey("Then they should agree with the top", func() {
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(r2.Rank, ShouldEqual, 2)
				So(r3.Rank, ShouldEqual, 3)
			})
		})

		Convey("When the leader is requested", func() {
			leader, ok := e.Leader(ctx)

			Convey("Then it should be the rank 1 player", func() {
				So(ok, ShouldBeTrue)
				So(leader.Rank, ShouldEqual, 1)
				So(leader.Record.PlayerID, ShouldEqual, "p1")
				So(leader.Record.Name, ShouldEqual, "One")
			})
		})

		Convey("When an unknown player is requested", func() {
			_, err := e.RankOf(ctx, "unknown")

			Convey("Then it should be not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an oversized top is requested", func() {
			for i := range 150 {
				_, _ = e.Submit(ctx, fmt.Sprintf("x%d", i), "x", float64(i))
			}
			top := e.Top(ctx, 1000)

			Convey("Then it should be capped at the maximum", func() {
				So(len(top), ShouldEqual, 100)
				So(e.MaxTop(), ShouldEqual, 100)
			})
		})

		Convey("When a non-positive top is requested", func() {
			Convey("Then one entry should be returned", func() {
				So(e.Top(ctx, 0), ShouldHaveLength, 1)
				So(e.Top(ctx, -3), ShouldHaveLength, 1)
			})
		})
	})
}

func TestEngineUpdatedAtAdvances(t *testing.T) {
	Convey("Given an engine whose clock does not move", t, func() {
		ctx := context.Background()
		frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		e := newEngine(service.WithClock(func() time.Time { return frozen }))

		Convey("When the same player submits repeatedly", func() {
			first, err := e.Submit(ctx, "p1", "A", 10)
			So(err, ShouldBeNil)
			second, err := e.Submit(ctx, "p1", "B", 5)
			So(err, ShouldBeNil)
			third, err := e.Submit(ctx, "p1", "C", 20)
			So(err, ShouldBeNil)

			Convey("Then every mutation should carry a later update time", func() {
				So(second.UpdatedAt.After(first.UpdatedAt), ShouldBeTrue)
				So(third.UpdatedAt.After(second.UpdatedAt), ShouldBeTrue)
				So(third.CreatedAt.Equal(frozen), ShouldBeTrue)
			})
		})
	})
}

func TestEngineLeaderEmpty(t *testing.T) {
	Convey("Given an empty engine", t, func() {
		_, ok := newEngine().Leader(context.Background())

		Convey("Then there should be no leader", func() {
			So(ok, ShouldBeFalse)
		})
	})
}

func TestEngineConcurrentSamePlayer(t *testing.T) {
	Convey("Given two concurrent submissions for the same player", t, func() {
		ctx := context.Background()
		e := newEngine()

		var wg sync.WaitGroup
		for _, score := range []float64{40, 45} {
			wg.Add(1)
			go func(s float64) {
				defer wg.Done()
				_, _ = e.Submit(ctx, "p", "P", s)
			}(score)
		}
		wg.Wait()

		Convey("Then the higher score should win regardless of order", func() {
			st, err := e.RankOf(ctx, "p")
			So(err, ShouldBeNil)
			So(st.Record.Score, ShouldEqual, 45)
			So(e.Count(ctx), ShouldEqual, 1)
		})
	})
}

func TestEngineProperties(t *testing.T) {
	Convey("Given a stream of concurrent random submissions", t, func() {
		ctx := context.Background()
		e := newEngine(service.WithLockStripes(8), service.WithMaxTop(1000))

		const players = 200
		const writers = 8
		best := make([]float64, players)
		var bestMu sync.Mutex

		var wg sync.WaitGroup
		for w := range writers {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				r := rand.New(rand.NewPCG(uint64(w), 99))
				for range 500 {
					p := r.IntN(players)
					score := float64(r.IntN(1000))
					if _, err := e.Submit(ctx, fmt.Sprintf("p%03d", p), "n", score); err != nil {
						t.Errorf("submit: %v", err)
						return
					}
					bestMu.Lock()
					best[p] = max(best[p], score)
					bestMu.Unlock()
				}
			}(w)
		}

		// Readers must always see an ordered, consistent top while writers run.
		stop := make(chan struct{})
		var readers sync.WaitGroup
		var readerErr error
		var readerMu sync.Mutex
		for range 2 {
			readers.Add(1)
			go func() {
				defer readers.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					top := e.Top(ctx, 50)
					for i := 1; i < len(top); i++ {
						if top[i-1].Record.Score < top[i].Record.Score || top[i].Rank != i+1 {
							readerMu.Lock()
							readerErr = fmt.Errorf("inconsistent top at %d", i)
							readerMu.Unlock()
							return
						}
					}
				}
			}()
		}
		wg.Wait()
		close(stop)
		readers.Wait()

		Convey("Then readers should never observe a torn state", func() {
			So(readerErr, ShouldBeNil)
		})

		Convey("Then every stored score should be the player's maximum", func() {
			for p := range players {
				id := fmt.Sprintf("p%03d", p)
				st, err := e.RankOf(ctx, id)
				if best[p] == 0 && err != nil {
					continue
				}
				So(err, ShouldBeNil)
				So(st.Record.Score, ShouldEqual, best[p])
			}
		})

		Convey("Then Top and RankOf should agree for every player", func() {
			top := e.Top(ctx, 1000)
			So(len(top), ShouldEqual, e.Count(ctx))
			for _, st := range top {
				got, err := e.RankOf(ctx, st.Record.PlayerID)
				So(err, ShouldBeNil)
				So(got.Rank, ShouldEqual, st.Rank)
			}
		})
	})
}

func TestEngineRestore(t *testing.T) {
	Convey("Given records read back from a store", t, func() {
		ctx := context.Background()
		persisted := &recordingPersister{}
		e := newEngine(service.WithPersister(persisted))
		t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

		records := []model.PlayerRecord{
			{PlayerID: "a", Name: "A", Score: 10, CreatedAt: t0},
			{PlayerID: "b", Name: "B", Score: 10, CreatedAt: t0.Add(-time.Hour)},
			{PlayerID: "c", Name: "C", Score: 30, CreatedAt: t0},
			{PlayerID: "bad", Name: "", Score: 99, CreatedAt: t0},
			{PlayerID: "neg", Name: "N", Score: -5, CreatedAt: t0},
			{PlayerID: "a", Name: "A2", Score: 20, CreatedAt: t0.Add(time.Hour)},
		}

		applied := e.Restore(ctx, records)

		Convey("Then valid records should be indexed without being persisted again", func() {
			So(applied, ShouldEqual, 4)
			So(e.Count(ctx), ShouldEqual, 3)
			So(persisted.all(), ShouldBeEmpty)
		})

		Convey("Then the stored createdAt should drive tie-breaking", func() {
			top := e.Top(ctx, 10)
			So(top[0].Record.PlayerID, ShouldEqual, "c")
			So(top[1].Record.PlayerID, ShouldEqual, "a")
			So(top[1].Record.Score, ShouldEqual, 20)
			So(top[1].Record.CreatedAt, ShouldEqual, t0)
			So(top[2].Record.PlayerID, ShouldEqual, "b")
		})

		Convey("Then later submissions should build on the restored state", func() {
			rec, err := e.Submit(ctx, "b", "B", 5)
			So(err, ShouldBeNil)
			So(rec.Score, ShouldEqual, 10)
			So(rec.CreatedAt, ShouldEqual, t0.Add(-time.Hour))
		})
	})
}
