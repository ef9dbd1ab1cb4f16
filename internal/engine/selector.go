package engine

import (
	"context"

	"github.com/alphabot-ai/stumble/internal/store"
)

// MaxProposals bounds the anti-repetition loop. The last proposal is always
// accepted.
const MaxProposals = 16

// AcceptProposal decides whether a drawn site is served. proposal counts the
// draws already rejected in this request.
func AcceptProposal(priorViews int, anonymous bool, proposal int) bool {
	if priorViews == 0 {
		return true
	}
	if anonymous && proposal >= 1 {
		return true
	}
	return proposal >= min(15, 5*priorViews)
}

type siteSource interface {
	DrawSite(ctx context.Context, filter store.TagFilter) (*store.Site, error)
	GetSiteViews(ctx context.Context, userID, siteID int64) (int, error)
}

// Selector draws sites weighted by power and damps repeats of sites the user
// has already seen.
type Selector struct {
	store siteSource
}

func NewSelector(s siteSource) *Selector {
	return &Selector{store: s}
}

// Pick returns a site matching filter, or nil when nothing qualifies.
func (s *Selector) Pick(ctx context.Context, userID int64, filter store.TagFilter) (*store.Site, error) {
	anonymous := userID == store.AnonymousUserID

	for proposal := 0; ; proposal++ {
		site, err := s.store.DrawSite(ctx, filter)
		if err != nil {
			return nil, storeErr("draw site", err)
		}
		if site == nil {
			return nil, nil
		}
		if proposal >= MaxProposals-1 {
			return site, nil
		}

		views, err := s.store.GetSiteViews(ctx, userID, site.ID)
		if err != nil {
			return nil, storeErr("site views", err)
		}
		if AcceptProposal(views, anonymous, proposal) {
			return site, nil
		}
	}
}
