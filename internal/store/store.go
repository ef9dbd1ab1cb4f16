package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrNotFound is returned by deletes and updates that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientPoints is returned by DeductPoints when the balance is too low.
	ErrInsufficientPoints = errors.New("insufficient points")
)

// ReputationStore covers users, bans and roles.
type ReputationStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	AddPoints(ctx context.Context, userID int64, delta int) error
	DeductPoints(ctx context.Context, userID int64, amount int) error
	AdjustSubmitterPoints(ctx context.Context, siteID int64, delta int) error
	ClaimRating(ctx context.Context, userID, siteID int64) (bool, error)
	ClaimFlag(ctx context.Context, userID, siteID int64) (bool, error)

	ListActiveBans(ctx context.Context, userID int64, now time.Time) ([]*Ban, error)
	GetBanKind(ctx context.Context, id int64) (*BanKind, error)
	CreateBan(ctx context.Context, ban *Ban) error

	GetRole(ctx context.Context, id int64) (*Role, error)
	ListUserRoles(ctx context.Context, userID int64) ([]*Role, error)
	GrantRole(ctx context.Context, userID, roleID int64) error
	RevokeRole(ctx context.Context, userID, roleID int64) error

	TopUsers(ctx context.Context, by Ranking, page Page) ([]*RankedUser, int, error)
}

// CatalogStore covers sites, categories, bridges, views, ratings and flags.
type CatalogStore interface {
	CreateSite(ctx context.Context, site *Site, tags []string, weight int) error
	GetSite(ctx context.Context, id int64) (*Site, error)
	DrawSite(ctx context.Context, filter TagFilter) (*Site, error)
	SetSiteState(ctx context.Context, id int64, enabled, modQueued bool) error
	SetSiteEnabled(ctx context.Context, id int64, enabled bool) error
	SetSiteProtected(ctx context.Context, id int64, protected bool) error

	ApplyTag(ctx context.Context, siteID int64, name string, createdBy int64, weight int) (*Bridge, error)
	SiteTags(ctx context.Context, siteID int64, eligibleOnly bool) ([]string, error)
	SiteBridges(ctx context.Context, siteID int64) ([]*Bridge, error)
	RemoveBridge(ctx context.Context, bridgeID int64) error
	DisableCategory(ctx context.Context, id int64) error
	TagAutocomplete(ctx context.Context, prefix string, limit int) ([]TagSuggestion, error)
	RandomTags(ctx context.Context, limit int) ([]string, error)

	GetSiteViews(ctx context.Context, userID, siteID int64) (int, error)
	RecordSiteView(ctx context.Context, userID, siteID int64, points int) error
	MarkViewed(ctx context.Context, userID, siteID int64) error
	CountSiteView(ctx context.Context, userID, siteID int64, points int) error

	AddRating(ctx context.Context, userID, siteID int64, rating Rating, weight int) error
	AddFakeRating(ctx context.Context, userID, siteID int64) error

	ListFlagKinds(ctx context.Context) ([]*FlagKind, error)
	GetFlagKind(ctx context.Context, id int64) (*FlagKind, error)
	CreateFlagEvent(ctx context.Context, flag *FlagEvent) error
	GetFlagEvent(ctx context.Context, id int64) (*FlagEvent, error)
	SetFlagState(ctx context.Context, id int64, queued, enabled bool) error

	SiteModQueue(ctx context.Context, page Page) ([]*QueuedSite, int, error)
	FlagModQueue(ctx context.Context, page Page) ([]*QueuedFlag, int, error)

	TopSites(ctx context.Context, by Ranking, page Page) ([]*RankedSite, int, error)
	TopTags(ctx context.Context, by Ranking, page Page) ([]*RankedTag, int, error)

	ApproveSubmission(ctx context.Context, siteID int64) error
	RecordModeration(ctx context.Context, adminID int64, action string, targetID int64) error
}

// Store defines the interface for data persistence
type Store interface {
	ReputationStore
	CatalogStore

	// Lifecycle
	Close() error
}
