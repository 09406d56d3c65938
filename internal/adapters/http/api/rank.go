package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	RankOf(ctx context.Context, playerID string) (model.Standing, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /leaderboard/rank/{playerId} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	playerID := strings.TrimSpace(r.PathValue("playerId"))
	if playerID == "" {
		writeErr(w, NewKind(op, ErrBadRequest))
		return
	}
	st, err := h.deps.RankOf(r.Context(), playerID)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.Standing{Player: toPlayer(st.Record), Rank: st.Rank})
}
