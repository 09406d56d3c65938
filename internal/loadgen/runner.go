package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/leaderboard/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

const progressInterval = time.Second

// Run generates the workload, submits it concurrently and verifies what the
// service reports afterwards.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	applyDefaults(config)
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting leaderboard load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("players", config.Players),
		logger.Int("submissionsPerPlayer", config.Submissions),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("topN", config.TopN),
	)

	client := newHTTPClient(config.BaseURL, config.Timeout)
	if err := client.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	plan := generate(ctx, config)
	stats.Generated = len(plan.Submissions)

	if config.OutputFile != "" {
		if err := saveSubmissions(config.OutputFile, plan.Submissions); err != nil {
			log.Warn(ctx, "failed to save submissions", logger.Error(err))
		}
	}

	submitAll(ctx, config, client, plan.Submissions, stats)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("submission interrupted: %w", err)
	}

	standings := readStandings(ctx, config, client, plan.Players, stats)

	top, err := client.top(ctx, config.TopN)
	if err != nil {
		return stats, fmt.Errorf("top retrieval failed: %w", err)
	}
	stats.TopEntries = len(top)

	problems := verify(plan, standings, top)
	stats.Mismatches = len(problems)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if len(problems) > 0 {
		logProblems(ctx, problems)
		return stats, fmt.Errorf("%w: %d mismatches", ErrVerification, len(problems))
	}
	log.Info(ctx, "load run verified")
	return stats, nil
}

func applyDefaults(c *Config) {
	if c.Players <= 0 {
		c.Players = 1000
	}
	if c.Submissions <= 0 {
		c.Submissions = 1
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU() * 2
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// submitAll posts every submission through a pool of workers.
func submitAll(ctx context.Context, config *Config, client *httpClient, subs []Submission, stats *Stats) {
	var submitted, successful, failed, throttled atomic.Int64
	var lastReport atomic.Int64

	work := make(chan Submission, config.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				n, err := client.submit(ctx, s)
				throttled.Add(int64(n))
				submitted.Add(1)
				if err != nil {
					failed.Add(1)
					if config.Verbose {
						logger.Get().Warn(ctx, "submission failed", logger.String("playerId", s.PlayerID), logger.Error(err))
					}
				} else {
					successful.Add(1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					logger.Get().Info(ctx, "submission progress",
						logger.Int("submitted", int(submitted.Load())),
						logger.Int("total", len(subs)),
						logger.Int("failed", int(failed.Load())),
					)
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range subs {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Successful = int(successful.Load())
	stats.Failed = int(failed.Load())
	stats.Throttled = int(throttled.Load())
}

// readStandings fetches every player's rank concurrently.
func readStandings(ctx context.Context, config *Config, client *httpClient, players []string, stats *Stats) map[string]Standing {
	var mu sync.Mutex
	standings := make(map[string]Standing, len(players))

	ids := make(chan string, config.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				st, err := client.rank(ctx, id)
				if err != nil {
					if config.Verbose {
						logger.Get().Warn(ctx, "rank lookup failed", logger.String("playerId", id), logger.Error(err))
					}
					continue
				}
				mu.Lock()
				standings[id] = st
				mu.Unlock()
			}
		}()
	}
	go func() {
		defer close(ids)
		for _, id := range players {
			select {
			case <-ctx.Done():
				return
			case ids <- id:
			}
		}
	}()
	wg.Wait()

	stats.RanksRead = len(standings)
	return standings
}

// saveSubmissions writes the generated workload as a JSON array.
func saveSubmissions(filename string, subs []Submission) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal submissions: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, perSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Successful) / float64(stats.Submitted) * 100
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed),
		logger.Int("throttled", stats.Throttled),
		logger.Int("ranksRead", stats.RanksRead),
		logger.Int("topEntries", stats.TopEntries),
		logger.Int("mismatches", stats.Mismatches),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("submissionsPerSecond", perSecond),
	)
}
