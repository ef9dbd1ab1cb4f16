package api

import (
	"net/http"

	"github.com/alphabot-ai/stumble/internal/engine"
	"github.com/alphabot-ai/stumble/internal/store"
)

type LeaderboardResponse struct {
	Board      string              `json:"board"`
	Ranking    string              `json:"ranking"`
	Page       int                 `json:"page"`
	TotalRows  int                 `json:"total_rows"`
	TotalPages int                 `json:"total_pages"`
	Sites      []*store.RankedSite `json:"sites,omitempty"`
	Tags       []*store.RankedTag  `json:"tags,omitempty"`
	Users      []*store.RankedUser `json:"users,omitempty"`
}

// Leaderboard handles GET /api/leaderboard?sites=likes, ?tags=random or
// ?users=siteAdds. Without any of them the users board is ranked by points.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	board := engine.BoardUsers
	for _, b := range []engine.Board{engine.BoardSites, engine.BoardTags, engine.BoardUsers} {
		if q.Has(string(b)) {
			board = b
			break
		}
	}
	page := queryInt(r, "page", 0)

	lb, err := h.engine.Leaderboard(r.Context(), board, store.Ranking(q.Get(string(board))), page)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Board:      string(lb.Board),
		Ranking:    string(lb.Ranking),
		Page:       max(page, 0),
		TotalRows:  lb.Total,
		TotalPages: lb.Pages,
		Sites:      lb.Sites,
		Tags:       lb.Tags,
		Users:      lb.Users,
	})
}
