package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphabot-ai/stumble/internal/api"
	"github.com/alphabot-ai/stumble/internal/auth"
	"github.com/alphabot-ai/stumble/internal/config"
	"github.com/alphabot-ai/stumble/internal/engine"
	"github.com/alphabot-ai/stumble/internal/ratelimit"
	"github.com/alphabot-ai/stumble/internal/store"
	"github.com/alphabot-ai/stumble/internal/web"
	"github.com/alphabot-ai/stumble/internal/worker"
)

func main() {
	cfg := config.Load()

	// Initialize store
	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer sqliteStore.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize services
	limiter, err := newLimiter(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}

	queue := worker.NewQueue(cfg.QueueWorkers, cfg.QueueSize, cfg.QueueTaskTimeout)

	eng := engine.New(sqliteStore, engine.Options{
		SubmissionCost:   cfg.SubmissionCost,
		LegacyPageOffset: cfg.LegacyPageOffset,
		Queue:            queue,
	})
	authService := auth.NewService(sqliteStore, cfg.JWTSecret, cfg.TokenTTL, cfg.BcryptCost)

	// Initialize handlers
	apiHandler := api.NewHandler(eng, authService, limiter, cfg)
	webHandler, err := web.NewHandler(eng, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize web handler: %v", err)
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	apiHandler.Register(mux)

	// Web routes
	mux.HandleFunc("GET /", webHandler.Home)
	mux.HandleFunc("GET /stumble", webHandler.Stumble)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("Starting stumble on %s", addr)

	handler := api.LogRequests(api.CORS(cfg.CORSOrigins, mux))

	// Create server with timeouts
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Flush deferred view and point writes before the store closes
	if err := queue.Close(shutdownCtx); err != nil {
		log.Printf("Deferred writes not flushed: %v", err)
	}

	log.Println("Server stopped")
}

// newLimiter shares limits through Redis when REDIS_URL is set and keeps
// them in memory otherwise.
func newLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, error) {
	if cfg.RedisURL == "" {
		limiter := ratelimit.NewMemoryLimiter()
		limiter.StartCleanup(ctx, 5*time.Minute)
		return limiter, nil
	}

	limiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := limiter.Ping(pingCtx); err != nil {
		limiter.Close()
		return nil, err
	}
	log.Println("Rate limits shared through Redis")
	return limiter, nil
}
