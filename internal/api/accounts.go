package api

import (
	"errors"
	"net/http"

	"github.com/alphabot-ai/stumble/internal/auth"
	"github.com/alphabot-ai/stumble/internal/store"
)

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

type MeResponse struct {
	*store.User
	Roles []string `json:"roles"`
}

// Signup handles POST /api/accounts/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter := h.checkRateLimit(w, r, "signup", h.cfg.SignupRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := h.auth.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrUsernameTaken):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeEngineError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, TokenResponse{Token: token, User: user})
}

// Login handles POST /api/accounts/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter := h.checkRateLimit(w, r, "login", h.cfg.SignupRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token, User: user})
}

// Me handles GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	user, err := h.engine.User(r.Context(), userID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	roles, err := h.engine.UserRoles(r.Context(), userID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	writeJSON(w, http.StatusOK, MeResponse{User: user, Roles: names})
}
