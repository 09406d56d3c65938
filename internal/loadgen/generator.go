package loadgen

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/leaderboard/pkg/logger"
)

// Score tiers, as [min, min+span).
var tiers = []struct{ min, span float64 }{
	{3000, 4000}, // average, most common
	{3000, 4000},
	{7000, 2000}, // strong
	{100, 2900},  // weak
	{9000, 1000}, // elite
	{0, 1000},    // beginners
	{0, 10000},   // anything
}

// Plan is the generated workload together with the best score each player
// should end up with.
type Plan struct {
	Submissions []Submission
	Best        map[string]float64
	Players     []string
}

// generate builds cfg.Players uuid players, each with cfg.Submissions random
// scores. Submissions are interleaved across players.
func generate(ctx context.Context, cfg *Config) Plan {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	players := make([]string, cfg.Players)
	for i := range players {
		players[i] = uuid.NewString()
	}

	plan := Plan{
		Submissions: make([]Submission, 0, cfg.Players*cfg.Submissions),
		Best:        make(map[string]float64, cfg.Players),
		Players:     players,
	}
	for round := 0; round < cfg.Submissions; round++ {
		for i, id := range players {
			t := tiers[rng.IntN(len(tiers))]
			// Two decimals keep scores exact through JSON.
			score := float64(int64((t.min+rng.Float64()*t.span)*100)) / 100
			plan.Submissions = append(plan.Submissions, Submission{
				PlayerID: id,
				Name:     "player-" + strconv.Itoa(i) + "-r" + strconv.Itoa(round),
				Score:    score,
			})
			if best, ok := plan.Best[id]; !ok || score > best {
				plan.Best[id] = score
			}
		}
	}
	rng.Shuffle(len(plan.Submissions), func(i, j int) {
		plan.Submissions[i], plan.Submissions[j] = plan.Submissions[j], plan.Submissions[i]
	})

	logger.Get().Info(ctx, "generated submissions",
		logger.Int("players", cfg.Players),
		logger.Int("submissions", len(plan.Submissions)),
		logger.Any("seed", seed),
	)
	return plan
}
