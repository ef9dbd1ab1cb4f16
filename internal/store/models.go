package store

import "time"

// AnonymousUserID identifies visitors without an account. Their site views
// share one bucket.
const AnonymousUserID int64 = 0

type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Hashword         string    `json:"-"`
	TotalPoints      int       `json:"total_points"`
	CurrentPoints    int       `json:"current_points"`
	Approvals        int       `json:"approvals"`
	LastViewedSiteID int64     `json:"last_viewed_site_id,omitempty"`
	RatedLastSite    bool      `json:"rated_last_site"`
	FlaggedLastSite  bool      `json:"flagged_last_site"`
	CreatedAt        time.Time `json:"created_at"`
}

type Site struct {
	ID          int64     `json:"id"`
	Address     string    `json:"address"`
	SubmittedBy int64     `json:"submitted_by,omitempty"`
	Likes       int       `json:"likes"`
	Dislikes    int       `json:"dislikes"`
	Views       int       `json:"views"`
	Power       float64   `json:"power"`
	Enabled     bool      `json:"enabled"`
	Protected   bool      `json:"protected"`
	ModQueued   bool      `json:"mod_queued"`
	CreatedAt   time.Time `json:"created_at"`
}

type Category struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Bridge associates a site with a category. Count is how many times the tag
// was applied; Score sums the point totals of the users who applied it.
type Bridge struct {
	ID         int64  `json:"id"`
	SiteID     int64  `json:"site_id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name,omitempty"`
	Count      int    `json:"count"`
	Score      int    `json:"score"`
}

type Ban struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	KindID     int64      `json:"ban_kind_id"`
	Name       string     `json:"name"`
	Expiration *time.Time `json:"expiration_date,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	BannedBy   int64      `json:"banned_by,omitempty"`
}

type BanKind struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type FlagKind struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"-"`
}

type FlagEvent struct {
	ID        int64     `json:"id"`
	SiteID    int64     `json:"site_id"`
	RaisedBy  int64     `json:"raised_by"`
	KindID    int64     `json:"flag_kind_id"`
	Comment   string    `json:"comment,omitempty"`
	Queued    bool      `json:"queued"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Rating values stored with a site rating. Fake ratings keep an empty value.
type Rating string

const (
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

type TagSuggestion struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// TagFilter restricts selection to sites whose eligible tags contain every
// And name, at least one Or name, and no Not name.
type TagFilter struct {
	And []string
	Or  []string
	Not []string
}

func (f TagFilter) Empty() bool {
	return len(f.And) == 0 && len(f.Or) == 0 && len(f.Not) == 0
}

// Page describes a LIMIT/OFFSET window.
type Page struct {
	Limit  int
	Offset int
}

type QueuedSite struct {
	Site
	Tags []string `json:"tags"`
}

type QueuedFlag struct {
	FlagEvent
	Address  string `json:"address"`
	KindName string `json:"flag_kind"`
}

// Ranking orders a leaderboard.
type Ranking string

const (
	RankViews         Ranking = "views"
	RankLikes         Ranking = "likes"
	RankControversial Ranking = "controversial"
	RankMostUsed      Ranking = "used"
	RankRandom        Ranking = "random"
	RankPoints        Ranking = "points"
	RankSiteAdds      Ranking = "siteAdds"
)

type RankedSite struct {
	Address  string `json:"address"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
	Views    int    `json:"views"`
}

type RankedTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type RankedUser struct {
	Username string `json:"username"`
	Points   int    `json:"points"`
	SiteAdds int    `json:"site_adds"`
}
