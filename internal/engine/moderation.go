package engine

import (
	"context"
	"errors"

	"github.com/alphabot-ai/stumble/internal/store"
)

// Decision is an admin moderation action.
type Decision string

const (
	ApproveSite Decision = "approveSite"
	DismissSite Decision = "dismissSite"
	ApproveFlag Decision = "approveFlag"
	DismissFlag Decision = "dismissFlag"
	EnableSite  Decision = "enable"
	DisableSite Decision = "disable"
	ProtectSite Decision = "protect"
	Unprotect   Decision = "unprotect"
	RemoveTag   Decision = "removeTag"
	DisableTag  Decision = "disableTag"
)

const adminRole = "admin"

// ModState is the moderation-relevant state of a site or a flag. Flags use
// Queued and Enabled only.
type ModState struct {
	Queued    bool
	Enabled   bool
	Protected bool
}

// Transition returns the state a site or flag moves to under kind, or an
// ErrState error when the move is illegal.
func Transition(kind Decision, st ModState) (ModState, error) {
	switch kind {
	case ApproveSite:
		if !st.Queued || st.Enabled {
			return st, stateErr("site is not pending")
		}
		st.Queued, st.Enabled = false, true
	case DismissSite:
		if !st.Queued {
			return st, stateErr("site is not pending")
		}
		if st.Protected {
			return st, stateErr("site is protected")
		}
		st.Queued, st.Enabled = false, false
	case ApproveFlag:
		if !st.Queued {
			return st, stateErr("flag is not queued")
		}
		st.Queued = false
	case DismissFlag:
		if !st.Queued {
			return st, stateErr("flag is not queued")
		}
		st.Queued, st.Enabled = false, false
	case EnableSite:
		st.Enabled = true
	case DisableSite:
		if st.Protected {
			return st, stateErr("site is protected")
		}
		st.Enabled = false
	case ProtectSite:
		st.Protected = true
	case Unprotect:
		st.Protected = false
	default:
		return st, validationErr("unknown decision %q", kind)
	}
	return st, nil
}

func (d Decision) valid() bool {
	switch d {
	case ApproveSite, DismissSite, ApproveFlag, DismissFlag,
		EnableSite, DisableSite, ProtectSite, Unprotect, RemoveTag, DisableTag:
		return true
	}
	return false
}

// requireRole fails with ErrUnauthorized unless userID holds role.
func (e *Engine) requireRole(ctx context.Context, userID int64, role string) error {
	roles, err := e.store.ListUserRoles(ctx, userID)
	if err != nil {
		return storeErr("list roles", err)
	}
	for _, r := range roles {
		if r.Name == role {
			return nil
		}
	}
	return ErrUnauthorized
}

// ModerationDecision applies an admin decision to a site, flag, bridge or
// category and records it in the moderation log.
func (e *Engine) ModerationDecision(ctx context.Context, adminID int64, kind Decision, targetID int64) error {
	if err := e.requireRole(ctx, adminID, adminRole); err != nil {
		return err
	}
	if !kind.valid() {
		return validationErr("unknown decision %q", kind)
	}
	if targetID <= 0 {
		return validationErr("target id is required")
	}

	var err error
	switch kind {
	case ApproveFlag, DismissFlag:
		err = e.decideFlag(ctx, kind, targetID)
	case RemoveTag:
		err = targetErr("remove tag", e.store.RemoveBridge(ctx, targetID))
	case DisableTag:
		err = targetErr("disable tag", e.store.DisableCategory(ctx, targetID))
	default:
		err = e.decideSite(ctx, kind, targetID)
	}
	if err != nil {
		return err
	}

	if err := e.store.RecordModeration(ctx, adminID, string(kind), targetID); err != nil {
		return storeErr("record moderation", err)
	}
	return nil
}

func (e *Engine) decideSite(ctx context.Context, kind Decision, siteID int64) error {
	site, err := e.store.GetSite(ctx, siteID)
	if err != nil {
		return storeErr("get site", err)
	}
	if site == nil {
		return notFoundErr("site")
	}

	next, err := Transition(kind, ModState{Queued: site.ModQueued, Enabled: site.Enabled, Protected: site.Protected})
	if err != nil {
		return err
	}

	switch kind {
	case ApproveSite:
		err = e.store.ApproveSubmission(ctx, siteID)
	case DismissSite:
		err = e.store.SetSiteState(ctx, siteID, next.Enabled, next.Queued)
	case ProtectSite, Unprotect:
		err = e.store.SetSiteProtected(ctx, siteID, next.Protected)
	default:
		err = e.store.SetSiteEnabled(ctx, siteID, next.Enabled)
	}
	if err != nil {
		return storeErr(string(kind), err)
	}
	return nil
}

func (e *Engine) decideFlag(ctx context.Context, kind Decision, flagID int64) error {
	flag, err := e.store.GetFlagEvent(ctx, flagID)
	if err != nil {
		return storeErr("get flag", err)
	}
	if flag == nil {
		return notFoundErr("flag")
	}

	next, err := Transition(kind, ModState{Queued: flag.Queued, Enabled: flag.Enabled})
	if err != nil {
		return err
	}
	if err := e.store.SetFlagState(ctx, flagID, next.Queued, next.Enabled); err != nil {
		return storeErr(string(kind), err)
	}
	return nil
}

// targetErr maps a write that matched no row to ErrNotFound.
func targetErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFoundErr(op + " target")
	}
	return storeErr(op, err)
}
