package web

import (
	"embed"
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/alphabot-ai/stumble/internal/config"
	"github.com/alphabot-ai/stumble/internal/engine"
	"github.com/alphabot-ai/stumble/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

const homeTagCount = 3

// Handler holds dependencies for web handlers
type Handler struct {
	engine    *engine.Engine
	cfg       *config.Config
	templates map[string]*template.Template
}

// NewHandler creates a new web handler
func NewHandler(e *engine.Engine, cfg *config.Config) (*Handler, error) {
	templates := make(map[string]*template.Template)

	base, err := template.ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, err
	}

	pages := []string{"home.html"}
	for _, page := range pages {
		// Clone base for each page to avoid block conflicts
		tmpl, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.ParseFS(templateFS, "templates/"+page); err != nil {
			return nil, err
		}
		templates[page] = tmpl
	}

	return &Handler{
		engine:    e,
		cfg:       cfg,
		templates: templates,
	}, nil
}

// HomeData is the data for the home page template
type HomeData struct {
	Tags    []string
	Notice  string
	BaseURL string
}

// Home handles GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.renderHome(w, r, http.StatusOK, "")
}

func (h *Handler) renderHome(w http.ResponseWriter, r *http.Request, status int, notice string) {
	tags, err := h.engine.RandomTags(r.Context(), homeTagCount)
	if err != nil {
		log.Printf("web: random tags: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Content negotiation
	if wantsJSON(r) {
		writeJSON(w, status, map[string]any{
			"tags":   tags,
			"notice": notice,
		})
		return
	}

	data := HomeData{
		Tags:    tags,
		Notice:  notice,
		BaseURL: h.cfg.BaseURL,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates["home.html"].ExecuteTemplate(w, "base", data); err != nil {
		log.Printf("Template error: %v", err)
	}
}

// Stumble handles GET /stumble. It sends anonymous visitors straight to a
// random site matching the optional and/or/not filters.
func (h *Handler) Stumble(w http.ResponseWriter, r *http.Request) {
	found, err := h.engine.Discover(r.Context(), store.AnonymousUserID,
		splitParam(r, "and"), splitParam(r, "or"), splitParam(r, "not"))
	if err != nil {
		log.Printf("web: stumble: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if found == nil {
		h.renderHome(w, r, http.StatusNotFound, "Nothing matches those tags yet.")
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"site_id": found.Site.ID,
			"address": found.Site.Address,
		})
		return
	}

	http.Redirect(w, r, found.Site.Address, http.StatusFound)
}

// Helper functions

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "application/json" || r.URL.Query().Get("format") == "json"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// splitParam reads a comma separated query parameter
func splitParam(r *http.Request, name string) []string {
	var out []string
	for _, part := range strings.Split(r.URL.Query().Get(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
