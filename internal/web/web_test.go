package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/alphabot-ai/stumble/internal/config"
	"github.com/alphabot-ai/stumble/internal/engine"
	"github.com/alphabot-ai/stumble/internal/store"
)

func setupTestHandler(t *testing.T) (*Handler, *store.SQLiteStore, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "stumble-web-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	sqliteStore, err := store.NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	cfg := &config.Config{
		BaseURL: "http://localhost:8080",
	}

	handler, err := NewHandler(engine.New(sqliteStore, engine.Options{}), cfg)
	if err != nil {
		sqliteStore.Close()
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create handler: %v", err)
	}

	cleanup := func() {
		sqliteStore.Close()
		os.Remove(tmpFile.Name())
	}

	return handler, sqliteStore, cleanup
}

func createSite(t *testing.T, s *store.SQLiteStore, address string, tags ...string) *store.Site {
	t.Helper()

	site := &store.Site{Address: address, Enabled: true}
	if err := s.CreateSite(context.Background(), site, tags, 1000); err != nil {
		t.Fatalf("failed to create site: %v", err)
	}
	return site
}

func TestNewHandler(t *testing.T) {
	handler, _, cleanup := setupTestHandler(t)
	defer cleanup()

	if handler == nil {
		t.Fatal("handler should not be nil")
	}
	if len(handler.templates) != 1 {
		t.Errorf("expected 1 template, got %d", len(handler.templates))
	}
}

func TestHome(t *testing.T) {
	handler, sqliteStore, cleanup := setupTestHandler(t)
	defer cleanup()

	createSite(t, sqliteStore, "https://a.example", "astronomy", "birds", "cooking")

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantInBody []string
	}{
		{
			name:       "home page",
			path:       "/",
			wantStatus: http.StatusOK,
			wantInBody: []string{"stumble", "Stumble", "astronomy", "birds", "cooking", "/stumble?or=birds"},
		},
		{
			name:       "404 for other paths",
			path:       "/notfound",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.Home(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			body := rec.Body.String()
			for _, want := range tt.wantInBody {
				if !strings.Contains(body, want) {
					t.Errorf("body should contain %q", want)
				}
			}
		})
	}
}

func TestHomeJSON(t *testing.T) {
	handler, _, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	handler.Home(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}

	if !strings.Contains(rec.Body.String(), `"tags"`) {
		t.Error("JSON response should contain tags key")
	}
}

func TestStumble(t *testing.T) {
	handler, sqliteStore, cleanup := setupTestHandler(t)
	defer cleanup()

	site := createSite(t, sqliteStore, "https://a.example/page", "news", "tech", "go")

	tests := []struct {
		name         string
		query        string
		wantStatus   int
		wantLocation string
	}{
		{"no filter", "", http.StatusFound, site.Address},
		{"matching filter", "?and=news,%20go", http.StatusFound, site.Address},
		{"excluded", "?not=tech", http.StatusNotFound, ""},
		{"unknown tag", "?or=cats", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stumble"+tt.query, nil)
			rec := httptest.NewRecorder()

			handler.Stumble(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
			if tt.wantStatus == http.StatusNotFound && !strings.Contains(rec.Body.String(), "Nothing matches") {
				t.Error("body should explain the empty result")
			}
		})
	}

	fetched, _ := sqliteStore.GetSite(context.Background(), site.ID)
	if fetched.Views != 2 {
		t.Errorf("views = %d, want 2", fetched.Views)
	}
}

func TestStumbleJSON(t *testing.T) {
	handler, sqliteStore, cleanup := setupTestHandler(t)
	defer cleanup()

	createSite(t, sqliteStore, "https://a.example", "news", "tech", "go")

	req := httptest.NewRequest(http.MethodGet, "/stumble?format=json", nil)
	rec := httptest.NewRecorder()

	handler.Stumble(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"address":"https://a.example"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		query  string
		want   bool
	}{
		{"no header", "", "", false},
		{"html accept", "text/html", "", false},
		{"json accept", "application/json", "", true},
		{"json query param", "", "format=json", true},
		{"mixed", "text/html", "format=json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/"
			if tt.query != "" {
				url += "?" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}

			got := wantsJSON(req)
			if got != tt.want {
				t.Errorf("wantsJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}
