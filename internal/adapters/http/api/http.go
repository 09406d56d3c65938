// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/leaderboard/internal/app"
	"github.com/okian/leaderboard/internal/domain/dedupe"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/types"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

const (
	defaultTopLimit       = 10
	defaultMaxTopLimit    = 100
	defaultRequestTimeout = 5 * time.Second
	maxBodyBytes          = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitDependencies
	LeaderboardDependencies
	RankDependencies
	HealthDependencies
}

// IdempotencyStore reserves Idempotency-Key values and remembers the record
// each one produced.
type IdempotencyStore interface {
	SeenAndRecord(ctx context.Context, key, fingerprint string) (dedupe.Entry, bool)
	Complete(ctx context.Context, key string, rec model.PlayerRecord)
	Unrecord(ctx context.Context, key string)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	submitHandler      *SubmitHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler

	limiter        *RateLimiter
	requestTimeout time.Duration
	logger         logger.Logger
}

type serverConfig struct {
	defaultLimit   int
	maxLimit       int
	ratePerMinute  int
	rateBurst      int
	requestTimeout time.Duration
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{
		defaultLimit:   defaultTopLimit,
		maxLimit:       defaultMaxTopLimit,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("api")
	}
	if cfg.defaultLimit > cfg.maxLimit {
		cfg.defaultLimit = cfg.maxLimit
	}
	return &Server{
		submitHandler:      NewSubmitHandler(deps, cfg.logger),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.defaultLimit, cfg.maxLimit),
		rankHandler:        NewRankHandler(deps),
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(statsProvider),
		limiter:            NewRateLimiter(cfg.ratePerMinute, cfg.rateBurst),
		requestTimeout:     cfg.requestTimeout,
		logger:             cfg.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	s.route(mux, "POST /leaderboard", "submit", s.submitHandler.HandleSubmit, true)
	s.route(mux, "GET /leaderboard/top", "top", s.leaderboardHandler.HandleGetTop, true)
	s.route(mux, "GET /leaderboard/rank/{playerId}", "rank", s.rankHandler.HandleGetRank, true)
	s.route(mux, "GET /healthz", "healthz", s.healthHandler.HandleHealth, false)
	s.route(mux, "GET /stats", "stats", s.statsHandler.HandleStats, false)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	s.logger.Info(ctx, "api routes registered")
}

// route registers h behind the middleware chain. Only leaderboard routes are
// rate limited so probes and scrapes keep working under load.
func (s *Server) route(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc, limited bool) {
	chain := []Middleware{RequestIDMiddleware()}
	if limited {
		chain = append(chain, s.limiter.Middleware(endpoint))
	}
	chain = append(chain,
		MetricsMiddleware(endpoint, s.logger),
		TimeoutMiddleware(s.requestTimeout),
	)
	mux.Handle(pattern, Chain(h, chain...))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = publicMessage(err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeErr maps err to a status and error code.
func writeErr(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingFields), errors.Is(err, model.ErrInvalidPlayer):
		return http.StatusBadRequest, "missing_fields"
	case errors.Is(err, ErrInvalidScore), errors.Is(err, model.ErrInvalidScore):
		return http.StatusBadRequest, "invalid_score"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrIdempotencyKey), errors.Is(err, ErrInProgress):
		return http.StatusConflict, "idempotency_conflict"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// publicMessage strips the operation prefix from API errors so clients see
// the kind rather than internal names.
func publicMessage(err error) string {
	var ke *kindError
	if errors.As(err, &ke) && ke.kind != nil {
		return ke.kind.Error()
	}
	return err.Error()
}
