package api

import "net/http"

const randomTagCount = 3

// RandomTags handles GET /api/tags/random
func (h *Handler) RandomTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.engine.RandomTags(r.Context(), randomTagCount)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// TagAutocomplete handles GET /api/tags/autocomplete?tag=
func (h *Handler) TagAutocomplete(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.engine.TagAutocomplete(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if len(suggestions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": suggestions})
}
