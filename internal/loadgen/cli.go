package loadgen

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/leaderboard/pkg/logger"
)

// SetupLogging sends logs to stdout and, when logFile is set, to that file.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		return io.NopCloser(nil), logger.Init()
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Leaderboard Load Generator
==========================

Submits random scores for many players concurrently, then checks that every
player's rank and best score are consistent with the top list.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -players int         Number of distinct players (default 1000)
  -submissions int     Submissions per player (default 5)
  -top int             Number of top entries to fetch (default 100)
  -workers int         Concurrent workers (default CPU cores * 2)
  -timeout duration    HTTP request timeout (default 30s)
  -seed uint           Score seed; 0 picks a random one
  -output string       Write generated submissions to this JSON file
  -log string          Also write logs to this file
  -verbose             Log every failed request
  -help                Show this help message

The service rate-limits clients by IP; start it with
LEADERBOARD_RATE_LIMIT_PER_MINUTE=0 for large runs.
`)
}
