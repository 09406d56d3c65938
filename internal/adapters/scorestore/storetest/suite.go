// Package storetest holds a re-usable set of tests that can be executed
// against any scorestore.Store implementation.
package storetest

import (
	"context"
	"fmt"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/okian/leaderboard/internal/adapters/scorestore"
	"github.com/okian/leaderboard/internal/domain/model"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// SuiteBase defines the store contract checks.
type SuiteBase struct {
	s scorestore.Store
}

// SetStore sets the store under test.
func (s *SuiteBase) SetStore(store scorestore.Store) {
	s.s = store
}

func (s *SuiteBase) TestUpsertInsertsNewRecord(c *gc.C) {
	ctx := context.Background()
	rec := model.PlayerRecord{PlayerID: "p1", Name: "Ann", Score: 50, CreatedAt: epoch, UpdatedAt: epoch}

	c.Assert(s.s.Upsert(ctx, rec), gc.IsNil)

	got, err := s.s.Get(ctx, "p1")
	c.Assert(err, gc.IsNil)
	c.Assert(got.PlayerID, gc.Equals, "p1")
	c.Assert(got.Name, gc.Equals, "Ann")
	c.Assert(got.Score, gc.Equals, 50.0)
	c.Assert(got.CreatedAt.Equal(epoch), gc.Equals, true, gc.Commentf("created_at %v", got.CreatedAt))
}

func (s *SuiteBase) TestUpsertKeepsMaxScore(c *gc.C) {
	ctx := context.Background()
	later := epoch.Add(time.Minute)

	c.Assert(s.s.Upsert(ctx, model.PlayerRecord{PlayerID: "p1", Name: "Ann", Score: 50, CreatedAt: epoch, UpdatedAt: epoch}), gc.IsNil)

	// A lower score must not overwrite, but the name is still refreshed.
	c.Assert(s.s.Upsert(ctx, model.PlayerRecord{PlayerID: "p1", Name: "Ann2", Score: 30, CreatedAt: later, UpdatedAt: later}), gc.IsNil)
	got, err := s.s.Get(ctx, "p1")
	c.Assert(err, gc.IsNil)
	c.Assert(got.Score, gc.Equals, 50.0)
	c.Assert(got.Name, gc.Equals, "Ann2")
	c.Assert(got.CreatedAt.Equal(epoch), gc.Equals, true, gc.Commentf("created_at must be kept from the first insert"))

	// A higher score wins.
	c.Assert(s.s.Upsert(ctx, model.PlayerRecord{PlayerID: "p1", Name: "Ann3", Score: 70, CreatedAt: later, UpdatedAt: later}), gc.IsNil)
	got, err = s.s.Get(ctx, "p1")
	c.Assert(err, gc.IsNil)
	c.Assert(got.Score, gc.Equals, 70.0)
	c.Assert(got.Name, gc.Equals, "Ann3")
	c.Assert(got.CreatedAt.Equal(epoch), gc.Equals, true)
	c.Assert(got.UpdatedAt.Equal(later), gc.Equals, true)
}

func (s *SuiteBase) TestUpsertOutOfOrderKeepsNewestName(c *gc.C) {
	ctx := context.Background()
	later := epoch.Add(time.Minute)

	c.Assert(s.s.Upsert(ctx, model.PlayerRecord{PlayerID: "p1", Name: "New", Score: 5, CreatedAt: epoch, UpdatedAt: later}), gc.IsNil)
	// An older write landing late still raises the score.
	c.Assert(s.s.Upsert(ctx, model.PlayerRecord{PlayerID: "p1", Name: "Old", Score: 10, CreatedAt: epoch, UpdatedAt: epoch}), gc.IsNil)

	got, err := s.s.Get(ctx, "p1")
	c.Assert(err, gc.IsNil)
	c.Assert(got.Name, gc.Equals, "New")
	c.Assert(got.Score, gc.Equals, 10.0)
	c.Assert(got.UpdatedAt.Equal(later), gc.Equals, true, gc.Commentf("updated_at %v", got.UpdatedAt))
}

func (s *SuiteBase) TestUpsertRejectsInvalidRecords(c *gc.C) {
	ctx := context.Background()

	err := s.s.Upsert(ctx, model.PlayerRecord{PlayerID: " ", Name: "x", Score: 1, CreatedAt: epoch})
	c.Assert(err, gc.ErrorMatches, ".*invalid record.*")

	err = s.s.Upsert(ctx, model.PlayerRecord{PlayerID: "p1", Name: "x", Score: -1, CreatedAt: epoch})
	c.Assert(err, gc.ErrorMatches, ".*invalid score.*")
}

func (s *SuiteBase) TestGetUnknownPlayer(c *gc.C) {
	_, err := s.s.Get(context.Background(), "ghost")
	c.Assert(err, gc.ErrorMatches, ".*player not found.*")
}

func (s *SuiteBase) TestAllIteratesEveryRecord(c *gc.C) {
	ctx := context.Background()
	const total = 25
	for i := range total {
		rec := model.PlayerRecord{
			PlayerID:  fmt.Sprintf("p%02d", i),
			Name:      fmt.Sprintf("player %d", i),
			Score:     float64(i) * 1.5,
			CreatedAt: epoch.Add(time.Duration(i) * time.Second),
		}
		c.Assert(s.s.Upsert(ctx, rec), gc.IsNil)
	}

	it, err := s.s.All(ctx)
	c.Assert(err, gc.IsNil)

	seen := make(map[string]model.PlayerRecord)
	for it.Next() {
		rec := it.Record()
		seen[rec.PlayerID] = rec
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)

	c.Assert(seen, gc.HasLen, total)
	c.Assert(seen["p10"].Score, gc.Equals, 15.0)
	c.Assert(seen["p10"].CreatedAt.Equal(epoch.Add(10*time.Second)), gc.Equals, true)

	recs, err := scorestore.Load(ctx, s.s)
	c.Assert(err, gc.IsNil)
	c.Assert(recs, gc.HasLen, total)
}

func (s *SuiteBase) TestAllOnEmptyStore(c *gc.C) {
	it, err := s.s.All(context.Background())
	c.Assert(err, gc.IsNil)
	c.Assert(it.Next(), gc.Equals, false)
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
}

func (s *SuiteBase) TestPing(c *gc.C) {
	c.Assert(s.s.Ping(context.Background()), gc.IsNil)
}
