package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/leaderboard/pkg/logger"
)

// ErrVerification is returned when the service's answers disagree with the
// generated workload.
var ErrVerification = errors.New("leaderboard verification failed")

const maxReportedMismatches = 20

// verify checks the standings and the top list against the plan. It returns
// one line per problem found.
func verify(plan Plan, standings map[string]Standing, top []Entry) []string {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	// Every player ends at its best submitted score.
	for _, id := range plan.Players {
		st, ok := standings[id]
		if !ok {
			report("no standing for player %s", id)
			continue
		}
		if st.Player.Score != plan.Best[id] {
			report("player %s: score %.2f, want best %.2f", id, st.Player.Score, plan.Best[id])
		}
	}

	// Ranks are distinct and follow the scores.
	byRank := make([]Standing, 0, len(standings))
	seen := make(map[int]string, len(standings))
	for id, st := range standings {
		if other, dup := seen[st.Rank]; dup {
			report("rank %d held by both %s and %s", st.Rank, other, id)
		}
		seen[st.Rank] = id
		byRank = append(byRank, st)
	}
	sort.Slice(byRank, func(i, j int) bool { return byRank[i].Rank < byRank[j].Rank })
	for i := 1; i < len(byRank); i++ {
		if byRank[i].Player.Score > byRank[i-1].Player.Score {
			report("rank %d (%.2f) outscores rank %d (%.2f)",
				byRank[i].Rank, byRank[i].Player.Score, byRank[i-1].Rank, byRank[i-1].Player.Score)
		}
	}

	// The top list is dense, ordered and agrees with rank lookups.
	for i, e := range top {
		if e.Rank != i+1 {
			report("top entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Score > top[i-1].Score {
			report("top entry %d (%.2f) outscores entry %d (%.2f)", i, e.Score, i-1, top[i-1].Score)
		}
		if st, ok := standings[e.PlayerID]; ok && st.Rank != e.Rank {
			report("player %s: rank lookup %d, top position %d", e.PlayerID, st.Rank, e.Rank)
		}
	}
	return problems
}

func logProblems(ctx context.Context, problems []string) {
	for i, p := range problems {
		if i == maxReportedMismatches {
			logger.Get().Warn(ctx, "further mismatches omitted", logger.Int("omitted", len(problems)-i))
			return
		}
		logger.Get().Warn(ctx, "mismatch", logger.String("detail", p))
	}
}
