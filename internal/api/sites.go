package api

import (
	"net/http"
	"strings"

	"github.com/alphabot-ai/stumble/internal/store"
)

type RandomSiteResponse struct {
	SiteID       int64  `json:"site_id"`
	Address      string `json:"address"`
	PointsEarned int    `json:"points_earned"`
}

type SubmitSiteRequest struct {
	Address string   `json:"address"`
	Tags    []string `json:"tags"`
}

type SubmitSiteResponse struct {
	Status string `json:"status"`
	SiteID int64  `json:"site_id,omitempty"`
}

type TagSiteRequest struct {
	Tags []string `json:"tags"`
}

type RateSiteRequest struct {
	Rating string `json:"rating"`
}

type FlagSiteRequest struct {
	Flag    int64  `json:"flag"`
	Comment string `json:"comment"`
}

type PointsResponse struct {
	PointBonus int `json:"point_bonus"`
}

// RandomSite handles GET /api/sites/random
func (h *Handler) RandomSite(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	found, err := h.engine.Discover(r.Context(), userID,
		queryList(r, "and"), queryList(r, "or"), queryList(r, "not"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if found == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, RandomSiteResponse{
		SiteID:       found.Site.ID,
		Address:      found.Site.Address,
		PointsEarned: found.Points,
	})
}

// SubmitSite handles POST /api/sites
func (h *Handler) SubmitSite(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter := h.checkRateLimit(w, r, "submit", h.cfg.SubmitRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req SubmitSiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	sub, err := h.engine.SubmitSite(r.Context(), userID, req.Address, req.Tags)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitSiteResponse{Status: string(sub.Status), SiteID: sub.SiteID})
}

// TagSite handles POST /api/sites/tags
func (h *Handler) TagSite(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter := h.checkRateLimit(w, r, "tag", h.cfg.TagRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req TagSiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	bonus, err := h.engine.ApplyTags(r.Context(), userID, req.Tags)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PointsResponse{PointBonus: bonus})
}

// RateSite handles POST /api/sites/rating
func (h *Handler) RateSite(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter := h.checkRateLimit(w, r, "rate", h.cfg.RateRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req RateSiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	bonus, err := h.engine.RateSite(r.Context(), userID, store.Rating(strings.ToLower(req.Rating)))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PointsResponse{PointBonus: bonus})
}

// FlagSite handles POST /api/sites/flags
func (h *Handler) FlagSite(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter := h.checkRateLimit(w, r, "flag", h.cfg.FlagRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req FlagSiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	if err := h.engine.FlagSite(r.Context(), userID, req.Flag, req.Comment); err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// FlagKinds handles GET /api/flags
func (h *Handler) FlagKinds(w http.ResponseWriter, r *http.Request) {
	kinds, err := h.engine.FlagKinds(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flags": kinds})
}
