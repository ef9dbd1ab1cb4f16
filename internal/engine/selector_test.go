package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/alphabot-ai/stumble/internal/store"
)

type fakeSource struct {
	sites []*store.Site
	views map[int64]int
	draws int
	err   error
}

func (f *fakeSource) DrawSite(ctx context.Context, filter store.TagFilter) (*store.Site, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sites) == 0 {
		return nil, nil
	}
	site := f.sites[f.draws%len(f.sites)]
	f.draws++
	return site, nil
}

func (f *fakeSource) GetSiteViews(ctx context.Context, userID, siteID int64) (int, error) {
	return f.views[siteID], nil
}

func TestAcceptProposal(t *testing.T) {
	tests := []struct {
		views     int
		anonymous bool
		proposal  int
		want      bool
	}{
		{0, false, 0, true},
		{0, true, 0, true},
		{1, true, 0, false},
		{1, true, 1, true},
		{1, false, 4, false},
		{1, false, 5, true},
		{2, false, 9, false},
		{2, false, 10, true},
		{3, false, 14, false},
		{3, false, 15, true},
		{50, false, 14, false},
		{50, false, 15, true},
	}

	for _, tt := range tests {
		got := AcceptProposal(tt.views, tt.anonymous, tt.proposal)
		if got != tt.want {
			t.Errorf("AcceptProposal(%d, %v, %d) = %v, want %v", tt.views, tt.anonymous, tt.proposal, got, tt.want)
		}
	}
}

func TestPickUnseenOnFirstDraw(t *testing.T) {
	src := &fakeSource{sites: []*store.Site{{ID: 1}}, views: map[int64]int{}}
	sel := NewSelector(src)

	for i := 0; i < 10; i++ {
		src.draws = 0
		site, err := sel.Pick(context.Background(), 7, store.TagFilter{})
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if site == nil || site.ID != 1 || src.draws != 1 {
			t.Fatalf("expected site 1 on the first draw, got %+v after %d draws", site, src.draws)
		}
	}
}

func TestPickTerminatesOnSingleSite(t *testing.T) {
	src := &fakeSource{sites: []*store.Site{{ID: 1}}, views: map[int64]int{1: 1000}}

	site, err := NewSelector(src).Pick(context.Background(), 7, store.TagFilter{})
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	if site == nil || site.ID != 1 {
		t.Fatalf("expected the only site, got %+v", site)
	}
	if src.draws != MaxProposals {
		t.Errorf("expected %d draws, got %d", MaxProposals, src.draws)
	}
}

func TestPickAnonymousToleratesOneRepeat(t *testing.T) {
	src := &fakeSource{sites: []*store.Site{{ID: 1}}, views: map[int64]int{1: 40}}

	site, err := NewSelector(src).Pick(context.Background(), store.AnonymousUserID, store.TagFilter{})
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	if site == nil || src.draws != 2 {
		t.Errorf("expected acceptance on the second draw, got %d draws", src.draws)
	}
}

func TestPickRedrawsToUnseenSite(t *testing.T) {
	seen := &store.Site{ID: 1}
	fresh := &store.Site{ID: 2}
	src := &fakeSource{sites: []*store.Site{seen, fresh}, views: map[int64]int{1: 3}}

	site, err := NewSelector(src).Pick(context.Background(), 7, store.TagFilter{})
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	if site != fresh {
		t.Errorf("expected the unseen site, got %+v", site)
	}
}

func TestPickEmpty(t *testing.T) {
	site, err := NewSelector(&fakeSource{}).Pick(context.Background(), 7, store.TagFilter{})
	if err != nil || site != nil {
		t.Errorf("expected nil site and no error, got %+v, %v", site, err)
	}
}

func TestPickStoreError(t *testing.T) {
	src := &fakeSource{err: errors.New("disk on fire")}

	_, err := NewSelector(src).Pick(context.Background(), 7, store.TagFilter{})
	if !errors.Is(err, ErrInternal) {
		t.Errorf("expected ErrInternal, got %v", err)
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "draw site" {
		t.Errorf("expected StoreError for draw site, got %v", err)
	}
}
