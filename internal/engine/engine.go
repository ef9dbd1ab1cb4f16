package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/alphabot-ai/stumble/internal/store"
	"github.com/alphabot-ai/stumble/internal/worker"
)

const (
	DefaultSubmissionCost = 50

	// MinFlagPoints is the total_points a flagger must exceed for the flag
	// to be recorded.
	MinFlagPoints = 25

	autocompleteLimit = 3
	maxPageLimit      = 100
)

type Options struct {
	SubmissionCost   int
	LegacyPageOffset bool
	Roller           Roller
	// Queue receives deferred writes. When nil they run inline.
	Queue *worker.Queue
}

// Engine implements selection, rewards, moderation and the ban overlay on
// top of a Store.
type Engine struct {
	store    store.Store
	gate     *Gate
	selector *Selector
	roller   Roller
	queue    *worker.Queue

	validate  *validator.Validate
	sanitizer *bluemonday.Policy

	submissionCost   int
	legacyPageOffset bool
}

func New(s store.Store, opts Options) *Engine {
	if opts.Roller == nil {
		opts.Roller = DefaultRoller
	}
	if opts.SubmissionCost <= 0 {
		opts.SubmissionCost = DefaultSubmissionCost
	}

	return &Engine{
		store:            s,
		gate:             NewGate(s),
		selector:         NewSelector(s),
		roller:           opts.Roller,
		queue:            opts.Queue,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		sanitizer:        bluemonday.StrictPolicy(),
		submissionCost:   opts.SubmissionCost,
		legacyPageOffset: opts.LegacyPageOffset,
	}
}

// Gate exposes the ban gate for callers that want a verdict without acting.
func (e *Engine) Gate() *Gate {
	return e.gate
}

// later runs fn on the deferred queue, or inline when there is no queue or
// it refuses the task. Errors never reach the caller.
func (e *Engine) later(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if e.queue != nil {
		err := e.queue.Submit(ctx, worker.Task{Name: name, Run: fn})
		if err == nil {
			return
		}
		log.Printf("engine: %s not queued (%v), running inline", name, err)
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		log.Printf("engine: %s failed: %v", name, err)
	}
}

func (e *Engine) user(ctx context.Context, id int64) (*store.User, error) {
	user, err := e.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if user == nil {
		return nil, notFoundErr("user")
	}
	return user, nil
}

// User returns the account with id.
func (e *Engine) User(ctx context.Context, id int64) (*store.User, error) {
	return e.user(ctx, id)
}

// Selection

// Discovery is a served site and the points the view earned.
type Discovery struct {
	Site   *store.Site
	Points int
}

// SelectSite draws a site for userID honouring the tag filters. It returns nil
// when no site qualifies.
func (e *Engine) SelectSite(ctx context.Context, userID int64, and, or, not []string) (*store.Site, error) {
	return e.selector.Pick(ctx, userID, store.TagFilter{
		And: cleanTags(and),
		Or:  cleanTags(or),
		Not: cleanTags(not),
	})
}

// RecordView credits a view of siteID to userID and returns the points it
// earned. It also moves the user's last viewed site.
func (e *Engine) RecordView(ctx context.Context, userID, siteID int64) (int, error) {
	site, err := e.store.GetSite(ctx, siteID)
	if err != nil {
		return 0, storeErr("get site", err)
	}
	if site == nil {
		return 0, notFoundErr("site")
	}

	points, err := e.viewReward(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := e.store.RecordSiteView(ctx, userID, siteID, points); err != nil {
		return 0, storeErr("record view", err)
	}
	return points, nil
}

func (e *Engine) viewReward(ctx context.Context, userID int64) (int, error) {
	if userID == store.AnonymousUserID {
		return 0, nil
	}
	user, err := e.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	return ViewReward(e.roller, user.TotalPoints), nil
}

// Discover selects a site, computes the view reward and moves the user's last
// viewed site. View counters and the reward are written on the deferred
// queue. Unknown users are served as anonymous.
func (e *Engine) Discover(ctx context.Context, userID int64, and, or, not []string) (*Discovery, error) {
	var user *store.User
	if userID != store.AnonymousUserID {
		var err error
		if user, err = e.store.GetUser(ctx, userID); err != nil {
			return nil, storeErr("get user", err)
		}
		if user == nil {
			userID = store.AnonymousUserID
		}
	}

	site, err := e.SelectSite(ctx, userID, and, or, not)
	if err != nil || site == nil {
		return nil, err
	}

	points := 0
	if user != nil {
		points = ViewReward(e.roller, user.TotalPoints)
	}

	// Rating, tagging and flagging read the last viewed site, so it moves
	// before the response. Only the counters wait.
	if err := e.store.MarkViewed(ctx, userID, site.ID); err != nil {
		return nil, storeErr("mark viewed", err)
	}
	e.later(ctx, "count view", func(ctx context.Context) error {
		return e.store.CountSiteView(ctx, userID, site.ID, points)
	})

	return &Discovery{Site: site, Points: points}, nil
}

// Submission

type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusPublished SubmissionStatus = "published"
)

type Submission struct {
	SiteID int64
	Status SubmissionStatus
}

type submitInput struct {
	Address string   `validate:"required,max=3072"`
	Tags    []string `validate:"min=3,dive,required,max=768"`
}

const (
	maxAddressLen = 3072
	minSubmitTags = 3
)

// SubmitSite spends the submission cost and adds the normalized address to
// the catalog with at least three distinct tags. Trusted submitters publish
// immediately; others wait for moderation. The cost is never refunded.
func (e *Engine) SubmitSite(ctx context.Context, userID int64, address string, tags []string) (*Submission, error) {
	shadow, err := e.gate.check(ctx, userID, ActionSubmit)
	if err != nil {
		return nil, err
	}

	in := submitInput{Address: strings.TrimSpace(address), Tags: trimTags(tags)}
	if err := e.validate.Struct(in); err != nil {
		return nil, validationErr("%s", describe(err))
	}
	normalized, ok := NormalizeAddress(in.Address)
	if !ok {
		return nil, validationErr("address must be an http or https URL")
	}
	if len(normalized) > maxAddressLen {
		return nil, validationErr("address exceeds %d", maxAddressLen)
	}
	in.Address = normalized
	if in.Tags = cleanTags(in.Tags); len(in.Tags) < minSubmitTags {
		return nil, validationErr("tags needs at least %d distinct entries", minSubmitTags)
	}

	user, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CurrentPoints < e.submissionCost {
		return nil, stateErr("submitting costs %d points", e.submissionCost)
	}
	if err := e.store.DeductPoints(ctx, user.ID, e.submissionCost); err != nil {
		if errors.Is(err, store.ErrInsufficientPoints) {
			return nil, stateErr("submitting costs %d points", e.submissionCost)
		}
		return nil, storeErr("deduct points", err)
	}

	if shadow {
		return &Submission{Status: StatusPending}, nil
	}

	trusted := user.Approvals >= 2
	site := &store.Site{
		Address:     in.Address,
		SubmittedBy: user.ID,
		Enabled:     trusted,
		ModQueued:   !trusted,
	}
	if err := e.store.CreateSite(ctx, site, in.Tags, user.TotalPoints); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, conflictErr("site already exists")
		}
		return nil, storeErr("create site", err)
	}

	status := StatusPending
	if trusted {
		status = StatusPublished
	}
	return &Submission{SiteID: site.ID, Status: status}, nil
}

// Tagging

type tagInput struct {
	Tags []string `validate:"min=1,max=12,dive,required,max=768"`
}

// ApplyTags tags the user's last viewed site and returns the bonus earned.
func (e *Engine) ApplyTags(ctx context.Context, userID int64, tags []string) (int, error) {
	shadow, err := e.gate.check(ctx, userID, ActionTag)
	if err != nil {
		return 0, err
	}

	user, err := e.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.LastViewedSiteID == 0 {
		return 0, stateErr("no site viewed")
	}

	in := tagInput{Tags: trimTags(tags)}
	if err := e.validate.Struct(in); err != nil {
		return 0, validationErr("%s", describe(err))
	}
	in.Tags = cleanTags(in.Tags)

	bonus := 0
	if shadow {
		for range in.Tags {
			bonus += ShadowTagReward(e.roller)
		}
	} else {
		for _, tag := range in.Tags {
			bridge, err := e.store.ApplyTag(ctx, user.LastViewedSiteID, tag, user.ID, user.TotalPoints)
			if err != nil {
				return 0, storeErr("apply tag", err)
			}
			bonus += TagReward(e.roller, bridge.Count)
		}
	}

	e.credit(ctx, user.ID, bonus)
	return bonus, nil
}

func (e *Engine) credit(ctx context.Context, userID int64, points int) {
	if points <= 0 {
		return
	}
	e.later(ctx, "credit points", func(ctx context.Context) error {
		return e.store.AddPoints(ctx, userID, points)
	})
}

// Rating

// RateSite records a like or dislike of the last viewed site. Each view can
// be rated once.
func (e *Engine) RateSite(ctx context.Context, userID int64, rating store.Rating) (int, error) {
	shadow, err := e.gate.check(ctx, userID, ActionRate)
	if err != nil {
		return 0, err
	}

	if rating != store.RatingLike && rating != store.RatingDislike {
		return 0, validationErr("rating must be like or dislike")
	}

	user, err := e.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.LastViewedSiteID == 0 || user.RatedLastSite {
		return 0, stateErr("no unrated site viewed")
	}

	site, err := e.store.GetSite(ctx, user.LastViewedSiteID)
	if err != nil {
		return 0, storeErr("get site", err)
	}
	if site == nil {
		return 0, notFoundErr("site")
	}

	claimed, err := e.store.ClaimRating(ctx, user.ID, site.ID)
	if err != nil {
		return 0, storeErr("claim rating", err)
	}
	if !claimed {
		return 0, stateErr("no unrated site viewed")
	}

	rater, submitter := RatingReward(e.roller, rating, site.Likes, site.Dislikes)

	if shadow {
		if err := e.store.AddFakeRating(ctx, user.ID, site.ID); err != nil {
			return 0, storeErr("fake rating", err)
		}
	} else {
		if err := e.store.AddRating(ctx, user.ID, site.ID, rating, user.TotalPoints); err != nil {
			return 0, storeErr("add rating", err)
		}
		e.later(ctx, "submitter points", func(ctx context.Context) error {
			return e.store.AdjustSubmitterPoints(ctx, site.ID, submitter)
		})
	}

	e.credit(ctx, user.ID, rater)
	return rater, nil
}

// Flagging

type flagInput struct {
	Kind    int64  `validate:"required,gt=0"`
	Comment string `validate:"max=256"`
}

// FlagSite reports the last viewed site. Flags from low-point or shadow
// banned users are accepted but not recorded.
func (e *Engine) FlagSite(ctx context.Context, userID, kindID int64, comment string) error {
	shadow, err := e.gate.check(ctx, userID, ActionFlag)
	if err != nil {
		return err
	}

	in := flagInput{Kind: kindID, Comment: strings.TrimSpace(comment)}
	if err := e.validate.Struct(in); err != nil {
		return validationErr("%s", describe(err))
	}

	user, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	if user.LastViewedSiteID == 0 || user.FlaggedLastSite {
		return stateErr("no unflagged site viewed")
	}

	kind, err := e.store.GetFlagKind(ctx, in.Kind)
	if err != nil {
		return storeErr("get flag kind", err)
	}
	if kind == nil || !kind.Enabled {
		return validationErr("unknown flag kind")
	}

	claimed, err := e.store.ClaimFlag(ctx, user.ID, user.LastViewedSiteID)
	if err != nil {
		return storeErr("claim flag", err)
	}
	if !claimed {
		return stateErr("no unflagged site viewed")
	}

	if shadow || user.TotalPoints <= MinFlagPoints {
		return nil
	}

	site, err := e.store.GetSite(ctx, user.LastViewedSiteID)
	if err != nil {
		return storeErr("get site", err)
	}
	if site == nil {
		return nil
	}

	flag := &store.FlagEvent{
		SiteID:   site.ID,
		RaisedBy: user.ID,
		KindID:   kind.ID,
		Comment:  e.sanitizer.Sanitize(in.Comment),
		Queued:   true,
		Enabled:  true,
	}
	if err := e.store.CreateFlagEvent(ctx, flag); err != nil {
		return storeErr("create flag", err)
	}
	return nil
}

// Roles and bans

// GrantRole gives targetID the role. Granting a held role is a conflict.
func (e *Engine) GrantRole(ctx context.Context, adminID, targetID, roleID int64) error {
	if err := e.requireRole(ctx, adminID, adminRole); err != nil {
		return err
	}
	if _, err := e.roleTarget(ctx, targetID, roleID); err != nil {
		return err
	}

	if err := e.store.GrantRole(ctx, targetID, roleID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return conflictErr("role already granted")
		}
		return storeErr("grant role", err)
	}

	return e.audit(ctx, adminID, "grantRole", targetID)
}

// RevokeRole removes the role from targetID. Revoking a role the user lacks
// is a state error.
func (e *Engine) RevokeRole(ctx context.Context, adminID, targetID, roleID int64) error {
	if err := e.requireRole(ctx, adminID, adminRole); err != nil {
		return err
	}
	role, err := e.roleTarget(ctx, targetID, roleID)
	if err != nil {
		return err
	}

	roles, err := e.store.ListUserRoles(ctx, targetID)
	if err != nil {
		return storeErr("list roles", err)
	}
	held := false
	for _, r := range roles {
		if r.ID == role.ID {
			held = true
			break
		}
	}
	if !held {
		return stateErr("user does not hold role %s", role.Name)
	}

	if err := e.store.RevokeRole(ctx, targetID, roleID); err != nil {
		return storeErr("revoke role", err)
	}

	return e.audit(ctx, adminID, "revokeRole", targetID)
}

func (e *Engine) roleTarget(ctx context.Context, targetID, roleID int64) (*store.Role, error) {
	if _, err := e.user(ctx, targetID); err != nil {
		return nil, err
	}
	role, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, storeErr("get role", err)
	}
	if role == nil {
		return nil, notFoundErr("role")
	}
	return role, nil
}

// UserRoles lists the roles held by userID.
func (e *Engine) UserRoles(ctx context.Context, userID int64) ([]*store.Role, error) {
	roles, err := e.store.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, storeErr("list roles", err)
	}
	return roles, nil
}

type banInput struct {
	Reason string `validate:"max=1024"`
}

// BanUser records a ban of the given kind. A nil expiration never expires.
func (e *Engine) BanUser(ctx context.Context, adminID, targetID, kindID int64, expires *time.Time, reason string) error {
	if err := e.requireRole(ctx, adminID, adminRole); err != nil {
		return err
	}

	in := banInput{Reason: strings.TrimSpace(reason)}
	if err := e.validate.Struct(in); err != nil {
		return validationErr("%s", describe(err))
	}
	if expires != nil && !expires.After(time.Now()) {
		return validationErr("expiration must be in the future")
	}

	if _, err := e.user(ctx, targetID); err != nil {
		return err
	}
	kind, err := e.store.GetBanKind(ctx, kindID)
	if err != nil {
		return storeErr("get ban kind", err)
	}
	if kind == nil {
		return notFoundErr("ban kind")
	}

	ban := &store.Ban{
		UserID:     targetID,
		KindID:     kind.ID,
		Expiration: expires,
		Reason:     e.sanitizer.Sanitize(in.Reason),
		BannedBy:   adminID,
	}
	if err := e.store.CreateBan(ctx, ban); err != nil {
		return storeErr("create ban", err)
	}

	return e.audit(ctx, adminID, "ban", targetID)
}

func (e *Engine) audit(ctx context.Context, adminID int64, action string, targetID int64) error {
	if err := e.store.RecordModeration(ctx, adminID, action, targetID); err != nil {
		return storeErr("record moderation", err)
	}
	return nil
}

// Reads

// TagAutocomplete suggests up to three enabled tags starting with prefix.
func (e *Engine) TagAutocomplete(ctx context.Context, prefix string) ([]store.TagSuggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, validationErr("tag prefix is required")
	}
	out, err := e.store.TagAutocomplete(ctx, prefix, autocompleteLimit)
	if err != nil {
		return nil, storeErr("autocomplete", err)
	}
	return out, nil
}

func (e *Engine) RandomTags(ctx context.Context, n int) ([]string, error) {
	tags, err := e.store.RandomTags(ctx, n)
	if err != nil {
		return nil, storeErr("random tags", err)
	}
	return tags, nil
}

func (e *Engine) FlagKinds(ctx context.Context) ([]*store.FlagKind, error) {
	kinds, err := e.store.ListFlagKinds(ctx)
	if err != nil {
		return nil, storeErr("flag kinds", err)
	}
	return kinds, nil
}

// SiteModQueue lists pending submissions for an admin.
func (e *Engine) SiteModQueue(ctx context.Context, adminID int64, page, limit int) ([]*store.QueuedSite, int, error) {
	if err := e.requireRole(ctx, adminID, adminRole); err != nil {
		return nil, 0, err
	}
	queue, total, err := e.store.SiteModQueue(ctx, e.page(page, limit))
	if err != nil {
		return nil, 0, storeErr("site queue", err)
	}
	return queue, total, nil
}

// FlagModQueue lists queued flags for an admin.
func (e *Engine) FlagModQueue(ctx context.Context, adminID int64, page, limit int) ([]*store.QueuedFlag, int, error) {
	if err := e.requireRole(ctx, adminID, adminRole); err != nil {
		return nil, 0, err
	}
	queue, total, err := e.store.FlagModQueue(ctx, e.page(page, limit))
	if err != nil {
		return nil, 0, storeErr("flag queue", err)
	}
	return queue, total, nil
}

// SiteBridges lists a site's tags with their bridge ids, for removeTag.
func (e *Engine) SiteBridges(ctx context.Context, adminID, siteID int64) ([]*store.Bridge, error) {
	if err := e.requireRole(ctx, adminID, adminRole); err != nil {
		return nil, err
	}
	bridges, err := e.store.SiteBridges(ctx, siteID)
	if err != nil {
		return nil, storeErr("site bridges", err)
	}
	return bridges, nil
}

func (e *Engine) page(page, limit int) store.Page {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page < 0 {
		page = 0
	}
	return store.Page{Limit: limit, Offset: PageOffset(page, limit, e.legacyPageOffset)}
}

// PageOffset converts a zero-based page to a row offset. The legacy form
// adds page to keep old clients' paging stable.
func PageOffset(page, limit int, legacy bool) int {
	if legacy {
		return page*limit + page
	}
	return page * limit
}

// trimTags trims every name but keeps blanks and repeats so the raw list can
// be validated.
func trimTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = strings.TrimSpace(tag)
	}
	return out
}

// cleanTags trims names and drops empty and repeated entries.
func cleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// describe turns validator errors into a short client message.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.StructField())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
