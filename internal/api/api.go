package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/stumble/internal/auth"
	"github.com/alphabot-ai/stumble/internal/config"
	"github.com/alphabot-ai/stumble/internal/engine"
	"github.com/alphabot-ai/stumble/internal/ratelimit"
)

// Handler holds dependencies for API handlers
type Handler struct {
	engine  *engine.Engine
	auth    *auth.Service
	limiter ratelimit.Limiter
	cfg     *config.Config
}

// NewHandler creates a new API handler
func NewHandler(e *engine.Engine, authSvc *auth.Service, limiter ratelimit.Limiter, cfg *config.Config) *Handler {
	return &Handler{
		engine:  e,
		auth:    authSvc,
		limiter: limiter,
		cfg:     cfg,
	}
}

// Response helpers

type ErrorResponse struct {
	Error      string     `json:"error"`
	RetryAfter int        `json:"retry_after,omitempty"`
	Banned     *BanDetail `json:"banned,omitempty"`
}

// BanDetail tells a blocked user which ban applies and until when.
type BanDetail struct {
	Name   string     `json:"name"`
	Date   *time.Time `json:"date,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "rate limit exceeded",
		RetryAfter: retryAfter,
	})
}

// writeEngineError maps engine errors to status codes. Store failures are
// logged and reported without detail.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var banned *engine.BannedError
	switch {
	case errors.As(err, &banned):
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error: "banned",
			Banned: &BanDetail{
				Name:   banned.Ban.Name,
				Date:   banned.Ban.Expiration,
				Reason: banned.Ban.Reason,
			},
		})
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrUnauthorized), errors.Is(err, engine.ErrState):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("api: %s %s [%s]: %v", r.Method, r.URL.Path, RequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Request helpers

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (h *Handler) getClientIP(r *http.Request) string {
	// Check X-Forwarded-For first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	// Check X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func (h *Handler) getToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// checkRateLimit counts the request against the caller's user id when signed
// in, otherwise against the client IP. Limiter failures let the request through.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) (bool, int) {
	subject := "ip:" + h.getClientIP(r)
	if userID, ok := UserIDFromContext(r.Context()); ok {
		subject = "user:" + strconv.FormatInt(userID, 10)
	}
	key := ratelimit.Key(action, subject)

	ctx := r.Context()
	allowed, err := h.limiter.Allow(ctx, key, limit, h.cfg.RateLimitWindow)
	if err != nil {
		log.Printf("api: rate limiter: %v", err)
		return true, 0
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	if remaining, err := h.limiter.Remaining(ctx, key, limit); err == nil {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	if allowed {
		return true, 0
	}

	retryAfter, err := h.limiter.RetryAfter(ctx, key)
	if err != nil {
		retryAfter = h.cfg.RateLimitWindow
	}
	return false, int(retryAfter.Seconds()) + 1
}

// queryList reads a filter parameter given either repeated or comma separated.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
