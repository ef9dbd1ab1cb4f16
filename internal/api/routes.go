package api

import "net/http"

// Register attaches the JSON API to mux
func (h *Handler) Register(mux *http.ServeMux) {
	// Accounts
	mux.HandleFunc("POST /api/accounts/signup", h.Signup)
	mux.HandleFunc("POST /api/accounts/login", h.Login)
	mux.HandleFunc("GET /api/me", h.RequireAuth(h.Me))

	// Discovery
	mux.HandleFunc("GET /api/sites/random", h.OptionalAuth(h.RandomSite))
	mux.HandleFunc("GET /api/flags", h.FlagKinds)
	mux.HandleFunc("GET /api/tags/random", h.RandomTags)
	mux.HandleFunc("GET /api/tags/autocomplete", h.TagAutocomplete)
	mux.HandleFunc("GET /api/leaderboard", h.Leaderboard)

	// Contributions
	mux.HandleFunc("POST /api/sites", h.RequireAuth(h.SubmitSite))
	mux.HandleFunc("POST /api/sites/tags", h.RequireAuth(h.TagSite))
	mux.HandleFunc("POST /api/sites/rating", h.RequireAuth(h.RateSite))
	mux.HandleFunc("POST /api/sites/flags", h.RequireAuth(h.FlagSite))

	// Admin routes (role checked by the engine)
	mux.HandleFunc("POST /api/admin/moderation", h.RequireAuth(h.Moderate))
	mux.HandleFunc("POST /api/admin/roles/grant", h.RequireAuth(h.GrantRole))
	mux.HandleFunc("POST /api/admin/roles/revoke", h.RequireAuth(h.RevokeRole))
	mux.HandleFunc("POST /api/admin/bans", h.RequireAuth(h.Ban))
	mux.HandleFunc("GET /api/admin/queue/sites", h.RequireAuth(h.SiteQueue))
	mux.HandleFunc("GET /api/admin/queue/flags", h.RequireAuth(h.FlagQueue))
	mux.HandleFunc("GET /api/admin/sites/{id}/tags", h.RequireAuth(h.SiteBridges))
}
