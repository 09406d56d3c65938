package api

import (
	"context"
	"net/http"

	"github.com/okian/leaderboard/internal/domain/model"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Top(ctx context.Context, n int) ([]model.Standing, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps         LeaderboardDependencies
	defaultLimit int
	maxLimit     int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, defaultLimit, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:         deps,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// HandleGetTop handles GET /leaderboard/top?limit=N requests.
func (h *LeaderboardHandler) HandleGetTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_top"
	n := parseLimit(r.URL.Query().Get("limit"), h.defaultLimit, h.maxLimit)
	standings, err := h.deps.Top(r.Context(), n)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	entries := make([]Entry, 0, len(standings))
	for _, st := range standings {
		entries = append(entries, Entry{
			Rank:     st.Rank,
			PlayerID: st.Record.PlayerID,
			Name:     st.Record.Name,
			Score:    st.Record.Score,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}
