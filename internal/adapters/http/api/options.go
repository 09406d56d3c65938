package api

import (
	"time"

	"github.com/okian/leaderboard/pkg/logger"
)

// Option configures a Server.
type Option func(*serverConfig)

// WithTopLimits sets the limit used when ?limit is absent or invalid and the
// largest limit a client may ask for.
func WithTopLimits(defaultLimit, maxLimit int) Option {
	return func(c *serverConfig) {
		if maxLimit > 0 {
			c.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			c.defaultLimit = defaultLimit
		}
	}
}

// WithRateLimit allows perMinute requests per client IP with the given
// burst. perMinute <= 0 disables rate limiting.
func WithRateLimit(perMinute, burst int) Option {
	return func(c *serverConfig) {
		c.ratePerMinute = perMinute
		c.rateBurst = burst
	}
}

// WithRequestTimeout bounds the context handed to handlers.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithLogger sets the logger used for request logs.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
