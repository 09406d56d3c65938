package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/types"
	"github.com/okian/leaderboard/pkg/logger"
)

// IdempotencyKeyHeader lets clients retry a submission safely.
const IdempotencyKeyHeader = "Idempotency-Key"

const submitMessage = "Score submitted successfully"

// SubmitDependencies defines the interface for score submission.
type SubmitDependencies interface {
	IdempotencyStore
	Submit(ctx context.Context, playerID, name string, score float64) (model.PlayerRecord, error)
}

// SubmitHandler handles score submissions.
type SubmitHandler struct {
	deps   SubmitDependencies
	logger logger.Logger
}

// NewSubmitHandler creates a new submit handler.
func NewSubmitHandler(deps SubmitDependencies, l logger.Logger) *SubmitHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &SubmitHandler{deps: deps, logger: l}
}

// submitRequest mirrors the OpenAPI schema for POST /leaderboard. Score is
// kept raw so a missing score can be told apart from a zero one.
type submitRequest struct {
	PlayerID string          `json:"playerId"`
	Name     string          `json:"name"`
	Score    json.RawMessage `json:"score"`
}

func (req submitRequest) parse() (float64, error) {
	raw := bytes.TrimSpace(req.Score)
	switch {
	case strings.TrimSpace(req.PlayerID) == "",
		strings.TrimSpace(req.Name) == "",
		len(raw) == 0,
		bytes.Equal(raw, []byte("null")):
		return 0, ErrMissingFields
	}
	var score float64
	if err := json.Unmarshal(raw, &score); err != nil {
		return 0, ErrInvalidScore
	}
	if score < 0 {
		return 0, ErrInvalidScore
	}
	return score, nil
}

type submitResponse struct {
	Message string       `json:"message"`
	Player  types.Player `json:"player"`
}

// HandleSubmit handles POST /leaderboard requests.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"

	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErr(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	score, err := req.parse()
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key != "" {
		fp := fingerprint(req.PlayerID, req.Name, score)
		if entry, seen := h.deps.SeenAndRecord(r.Context(), key, fp); seen {
			switch {
			case entry.Fingerprint != fp:
				writeErr(w, NewKind(op, ErrIdempotencyKey))
			case !entry.Done:
				writeErr(w, NewKind(op, ErrInProgress))
			default:
				w.Header().Set("Idempotent-Replayed", "true")
				writeJSON(w, http.StatusOK, submitResponse{Message: submitMessage, Player: toPlayer(entry.Record)})
			}
			return
		}
	}

	rec, err := h.deps.Submit(r.Context(), req.PlayerID, req.Name, score)
	if err != nil {
		if key != "" {
			h.deps.Unrecord(r.Context(), key)
		}
		if errors.Is(err, model.ErrInvalidScore) {
			err = WrapKind(op, ErrInvalidScore, err)
		}
		if status, _ := classify(err); status >= statusInternalError {
			h.logger.Error(r.Context(), "submission failed",
				logger.String("requestId", RequestIDFromContext(r.Context())),
				logger.String("playerId", req.PlayerID),
				logger.Error(err),
			)
		}
		writeErr(w, err)
		return
	}
	if key != "" {
		h.deps.Complete(r.Context(), key, rec)
	}
	writeJSON(w, http.StatusOK, submitResponse{Message: submitMessage, Player: toPlayer(rec)})
}

func toPlayer(rec model.PlayerRecord) types.Player {
	p := types.Player{
		PlayerID: rec.PlayerID,
		Name:     rec.Name,
		Score:    rec.Score,
	}
	if !rec.CreatedAt.IsZero() {
		p.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return p
}
