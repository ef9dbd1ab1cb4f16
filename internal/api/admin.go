package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/alphabot-ai/stumble/internal/engine"
)

type ModerationRequest struct {
	Kind     string `json:"kind"`
	TargetID int64  `json:"target_id"`
}

type RoleRequest struct {
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

type BanRequest struct {
	UserID    int64      `json:"user_id"`
	BanKindID int64      `json:"ban_kind_id"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason"`
}

type QueueResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
}

// Moderate handles POST /api/admin/moderation
func (h *Handler) Moderate(w http.ResponseWriter, r *http.Request) {
	var req ModerationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetID <= 0 {
		writeError(w, http.StatusBadRequest, "target_id is required")
		return
	}

	adminID, _ := UserIDFromContext(r.Context())
	if err := h.engine.ModerationDecision(r.Context(), adminID, engine.Decision(req.Kind), req.TargetID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// GrantRole handles POST /api/admin/roles/grant
func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.engine.GrantRole)
}

// RevokeRole handles POST /api/admin/roles/revoke
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.engine.RevokeRole)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, adminID, targetID, roleID int64) error) {
	var req RoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID <= 0 || req.RoleID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and role_id are required")
		return
	}

	adminID, _ := UserIDFromContext(r.Context())
	if err := apply(r.Context(), adminID, req.UserID, req.RoleID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Ban handles POST /api/admin/bans
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	var req BanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID <= 0 || req.BanKindID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and ban_kind_id are required")
		return
	}

	adminID, _ := UserIDFromContext(r.Context())
	if err := h.engine.BanUser(r.Context(), adminID, req.UserID, req.BanKindID, req.ExpiresAt, req.Reason); err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, OKResponse{OK: true})
}

// SiteQueue handles GET /api/admin/queue/sites
func (h *Handler) SiteQueue(w http.ResponseWriter, r *http.Request) {
	adminID, _ := UserIDFromContext(r.Context())
	page := queryInt(r, "page", 0)

	items, total, err := h.engine.SiteModQueue(r.Context(), adminID, page, queryInt(r, "limit", 20))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueueResponse{Items: items, Total: total, Page: page})
}

// FlagQueue handles GET /api/admin/queue/flags
func (h *Handler) FlagQueue(w http.ResponseWriter, r *http.Request) {
	adminID, _ := UserIDFromContext(r.Context())
	page := queryInt(r, "page", 0)

	items, total, err := h.engine.FlagModQueue(r.Context(), adminID, page, queryInt(r, "limit", 20))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueueResponse{Items: items, Total: total, Page: page})
}

// SiteBridges handles GET /api/admin/sites/{id}/tags
func (h *Handler) SiteBridges(w http.ResponseWriter, r *http.Request) {
	siteID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || siteID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}

	adminID, _ := UserIDFromContext(r.Context())
	bridges, err := h.engine.SiteBridges(r.Context(), adminID, siteID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tags": bridges})
}
