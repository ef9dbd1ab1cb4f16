package engine

import (
	"context"
	"time"

	"github.com/alphabot-ai/stumble/internal/store"
)

// Action names a mutating operation guarded by bans.
type Action string

const (
	ActionSubmit Action = "submit site"
	ActionTag    Action = "tag site"
	ActionRate   Action = "rate site"
	ActionFlag   Action = "flag site"
)

const (
	totalBan       = "total ban"
	totalShadowBan = "total shadow ban"
)

type Verdict int

const (
	Allowed Verdict = iota
	Blocked
	ShadowBlocked
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case Blocked:
		return "blocked"
	case ShadowBlocked:
		return "shadow blocked"
	}
	return "unknown"
}

// Gate evaluates a user's active bans against an action.
type Gate struct {
	store store.ReputationStore
	now   func() time.Time
}

func NewGate(s store.ReputationStore) *Gate {
	return &Gate{store: s, now: time.Now}
}

// Evaluate returns the verdict for userID performing action. For Blocked the
// matching ban is returned too. A hard ban always wins over a shadow ban.
func (g *Gate) Evaluate(ctx context.Context, userID int64, action Action) (Verdict, *store.Ban, error) {
	switch action {
	case ActionSubmit, ActionTag, ActionRate, ActionFlag:
	default:
		panic("engine: unknown ban action " + string(action))
	}

	bans, err := g.store.ListActiveBans(ctx, userID, g.now())
	if err != nil {
		return Allowed, nil, storeErr("list bans", err)
	}

	active := make(map[string]*store.Ban, len(bans))
	for _, ban := range bans {
		if _, ok := active[ban.Name]; !ok {
			active[ban.Name] = ban
		}
	}

	if ban, ok := active[string(action)+" ban"]; ok {
		return Blocked, ban, nil
	}
	if ban, ok := active[totalBan]; ok {
		return Blocked, ban, nil
	}

	_, shadow := active[string(action)+" shadow ban"]
	_, total := active[totalShadowBan]
	if shadow || total {
		return ShadowBlocked, nil, nil
	}

	return Allowed, nil, nil
}

// check runs Evaluate and turns a hard block into a BannedError. It reports
// whether the caller must simulate the action.
func (g *Gate) check(ctx context.Context, userID int64, action Action) (shadow bool, err error) {
	verdict, ban, err := g.Evaluate(ctx, userID, action)
	if err != nil {
		return false, err
	}
	switch verdict {
	case Blocked:
		return false, &BannedError{Ban: ban}
	case ShadowBlocked:
		return true, nil
	}
	return false, nil
}
