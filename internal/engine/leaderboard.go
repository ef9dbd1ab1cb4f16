package engine

import (
	"context"

	"github.com/alphabot-ai/stumble/internal/store"
)

// Board names a leaderboard.
type Board string

const (
	BoardSites Board = "sites"
	BoardTags  Board = "tags"
	BoardUsers Board = "users"
)

type boardSpec struct {
	limit    int
	rankings []store.Ranking // the first is the default
}

var boards = map[Board]boardSpec{
	BoardSites: {limit: 10, rankings: []store.Ranking{store.RankViews, store.RankLikes, store.RankControversial}},
	BoardTags:  {limit: 50, rankings: []store.Ranking{store.RankMostUsed, store.RankRandom}},
	BoardUsers: {limit: 50, rankings: []store.Ranking{store.RankPoints, store.RankSiteAdds}},
}

// Leaderboard is one page of a ranked board. Only the list matching Board is
// set.
type Leaderboard struct {
	Board   Board
	Ranking store.Ranking
	Total   int
	Pages   int
	Sites   []*store.RankedSite
	Tags    []*store.RankedTag
	Users   []*store.RankedUser
}

// Leaderboard returns page of board ordered by ranking. An empty ranking
// picks the board's default.
func (e *Engine) Leaderboard(ctx context.Context, board Board, ranking store.Ranking, page int) (*Leaderboard, error) {
	spec, ok := boards[board]
	if !ok {
		return nil, validationErr("unknown leaderboard %q", board)
	}
	if ranking == "" {
		ranking = spec.rankings[0]
	}
	known := false
	for _, r := range spec.rankings {
		if r == ranking {
			known = true
			break
		}
	}
	if !known {
		return nil, validationErr("%s cannot be ranked by %q", board, ranking)
	}

	p := e.page(page, spec.limit)
	lb := &Leaderboard{Board: board, Ranking: ranking}

	var err error
	switch board {
	case BoardSites:
		lb.Sites, lb.Total, err = e.store.TopSites(ctx, ranking, p)
	case BoardTags:
		lb.Tags, lb.Total, err = e.store.TopTags(ctx, ranking, p)
	case BoardUsers:
		lb.Users, lb.Total, err = e.store.TopUsers(ctx, ranking, p)
	}
	if err != nil {
		return nil, storeErr("leaderboard", err)
	}

	lb.Pages = (lb.Total + p.Limit - 1) / p.Limit
	return lb, nil
}
