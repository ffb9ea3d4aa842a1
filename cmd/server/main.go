// Word-problem tutor server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mathtutor/internal/api"
	"github.com/ashureev/mathtutor/internal/config"
	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/live"
	"github.com/ashureev/mathtutor/internal/middleware"
	"github.com/ashureev/mathtutor/internal/problembank"
	"github.com/ashureev/mathtutor/internal/session"
	"github.com/ashureev/mathtutor/internal/store"
	"github.com/ashureev/mathtutor/internal/tutor"
	"github.com/ashureev/mathtutor/internal/tutor/anthropic"
	"github.com/ashureev/mathtutor/internal/tutor/openai"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"default_backend", cfg.Tutor.DefaultBackend,
	)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	seed, err := problembank.Load(cfg.ProblemBankPath)
	if err != nil {
		slog.Error("Failed to load problem bank", "path", cfg.ProblemBankPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Problem bank loaded", "problems", len(seed))

	// Initialize services.
	httpc := tutor.NewHTTPClient()
	claude := anthropic.New(cfg.Tutor.AnthropicBaseURL, cfg.Tutor.AnthropicModel, httpc)
	chatgpt := openai.New(cfg.Tutor.OpenAIBaseURL, cfg.Tutor.OpenAIModel, httpc)
	gateway := tutor.NewGateway(cfg.Tutor.MaxTokens, logger).
		Register(domain.BackendClaude, claude).
		Register(domain.BackendChatGPT, chatgpt)
	slog.Info("Tutor backends registered",
		"claude_model", claude.Model(),
		"chatgpt_model", chatgpt.Model(),
		"max_tokens", gateway.MaxTokens(),
	)

	sessions := session.NewManager(cfg.Tutor.DefaultBackend, seed)
	service := tutor.NewService(sessions, gateway, repo, logger)
	hub := live.NewHub(sessions.Snapshot, cfg.AllowedOrigins(), logger)

	// Initialize handlers.
	handler := api.NewHandler(repo, sessions, service, gateway, hub, cfg)
	defer handler.Close()
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Everything else carries an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.SecureCookies))
		handler.RegisterRoutes(r)
		r.Get("/ws/session", hub.ServeHTTP)
	})

	// WebSocket subscribers are long-lived, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background workers.
	sessions.StartReaper(ctx, cfg.SessionTTL, cfg.ReaperInterval, hub.CloseSession)
	store.StartRetentionWorker(ctx, repo, cfg.UserRetention, store.RetentionInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
