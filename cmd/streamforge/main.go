// StreamForge serves streamed assistant turns over HTTP, WebSocket and NATS.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sfhttp "github.com/Strob0t/StreamForge/internal/adapter/http"
	"github.com/Strob0t/StreamForge/internal/adapter/litellm"
	sfnats "github.com/Strob0t/StreamForge/internal/adapter/nats"
	sfotel "github.com/Strob0t/StreamForge/internal/adapter/otel"
	"github.com/Strob0t/StreamForge/internal/adapter/postgres"
	"github.com/Strob0t/StreamForge/internal/adapter/ristretto"
	"github.com/Strob0t/StreamForge/internal/adapter/ws"
	"github.com/Strob0t/StreamForge/internal/config"
	"github.com/Strob0t/StreamForge/internal/logger"
	"github.com/Strob0t/StreamForge/internal/port/emitter"
	"github.com/Strob0t/StreamForge/internal/port/historystore"
	"github.com/Strob0t/StreamForge/internal/port/tokenizer"
	"github.com/Strob0t/StreamForge/internal/resilience"
	"github.com/Strob0t/StreamForge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"default_model", cfg.Stream.DefaultModel,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := sfotel.Setup(ctx, cfg.Otel.Endpoint, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown failed", "error", err)
		}
	}()

	// --- Storage ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	var store historystore.Store = postgres.NewHistoryStore(pool)

	// --- Event sinks ---
	hub := ws.NewHub()
	sinks := emitter.Multi{hub}

	if cfg.NATS.URL != "" {
		publisher, err := sfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher)
	} else {
		slog.Info("nats disabled, no url configured")
	}

	// --- Token counting ---
	cache, err := ristretto.NewTokenCountCache(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("token cache: %w", err)
	}
	defer cache.Close()

	var provider tokenizer.Provider
	if cfg.Tokenizer.URL != "" {
		llm := litellm.NewProvider(cfg.Tokenizer.URL, cfg.Tokenizer.MasterKey)
		llm.SetBreaker(resilience.NewBreaker(5, 30*time.Second))
		provider = llm
	} else {
		slog.Info("tokenizer disabled, using approximate counts")
	}
	tokens := service.NewTokenCounter(provider, cfg.Tokenizer.Model, cache)

	// --- Turn player ---
	player := service.NewPlayer(store, sinks, tokens, service.NewRouter(), cfg.Stream.DefaultModel)

	// --- HTTP ---
	handlers := &sfhttp.Handlers{
		Player:     player,
		Store:      store,
		ChunkChars: cfg.Stream.ChunkChars,
		ChunkDelay: cfg.Stream.ChunkDelay,
	}

	r := chi.NewRouter()
	r.Use(sfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sfhttp.Logger)
	r.Use(sfotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(cfg, hub))
	r.Get("/ws", hub.HandleWS)
	handlers.Routes(r)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports service health and the live WebSocket client count.
func healthHandler(cfg *config.Config, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status      string `json:"status"`
		NATS        string `json:"nats"`
		Connections int    `json:"ws_connections"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:      "ok",
			NATS:        cfg.NATS.URL,
			Connections: hub.ConnectionCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
