// Voice task dialogue server
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

	"github.com/ashureev/voicetask/internal/api"
	"github.com/ashureev/voicetask/internal/config"
	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/dialogue"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/extract"
	"github.com/ashureev/voicetask/internal/identity"
	"github.com/ashureev/voicetask/internal/middleware"
	"github.com/ashureev/voicetask/internal/roster"
	"github.com/ashureev/voicetask/internal/session"
	"github.com/ashureev/voicetask/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "timezone", cfg.TaskTimezone)

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("Failed to load task time zone", "error", err)
		os.Exit(1)
	}

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

	var defaultRoster []domain.Child
	if cfg.RosterPath != "" {
		defaultRoster, err = roster.Load(cfg.RosterPath)
		if err != nil {
			slog.Error("Failed to load default roster", "error", err)
			os.Exit(1)
		}
		slog.Info("Default roster loaded", "path", cfg.RosterPath, "children", len(defaultRoster))
	}

	extractor, closeExtractor := newExtractor(cfg, logger)
	defer closeExtractor()

	sessions := session.NewStore(cfg.Session.TTL)
	engine := dialogue.NewEngine(sessions, extractor, dates.New(loc),
		dialogue.WithTaskSink(repo),
		dialogue.WithTurnLog(repo),
		dialogue.WithExtractTimeout(cfg.Extractor.Timeout),
		dialogue.WithMaxConcurrentExtractions(int64(cfg.Extractor.MaxConcurrent)),
		dialogue.WithDefaultRoster(defaultRoster),
	)

	// Initialize handlers.
	baseHandler := api.NewHandler(engine, repo, cfg.DebugEndpoints)
	voiceHandler := api.NewVoiceHandler(baseHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))
	r.Use(identity.Middleware())

	voiceHandler.RegisterRoutes(r)
	if cfg.DebugEndpoints {
		slog.Info("Debug endpoints enabled")
	}

	// Create server.
	// Websocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerDone := session.StartTTLWorker(ctx, sessions, session.SweepConfig{
		Interval:      cfg.Session.SweepInterval,
		TurnRetention: cfg.Session.TurnLogRetention,
		Pruner:        repo,
	})

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	baseHandler.Connections().CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	<-workerDone

	slog.Info("Server stopped successfully")
}

// newExtractor picks the slot extractor: gRPC, then LLM, then local rules.
// A gRPC endpoint that cannot be reached falls back to rules.
func newExtractor(cfg *config.Config, logger *slog.Logger) (extract.Extractor, func()) {
	noop := func() {}

	switch cfg.ExtractorKind() {
	case config.ExtractorGRPC:
		slog.Info("Connecting to extraction service via gRPC", "address", cfg.Extractor.GrpcAddr)
		grpcCfg := extract.DefaultGrpcClientConfig(cfg.Extractor.GrpcAddr)
		grpcCfg.RequestTimeout = cfg.Extractor.Timeout
		client, err := extract.NewGrpcClient(grpcCfg, logger)
		if err != nil {
			slog.Warn("Failed to connect to extraction service, using rule-based extractor", "error", err)
			return extract.RuleExtractor{}, noop
		}
		return client, client.Close

	case config.ExtractorLLM:
		slog.Info("Using LLM extractor", "base_url", cfg.Extractor.LLMBaseURL, "model", cfg.Extractor.LLMModel)
		return extract.NewLLMClient(extract.LLMConfig{
			BaseURL: cfg.Extractor.LLMBaseURL,
			APIKey:  cfg.Extractor.LLMAPIKey,
			Model:   cfg.Extractor.LLMModel,
			Timeout: cfg.Extractor.Timeout,
		}), noop

	default:
		slog.Info("Using rule-based extractor")
		return extract.RuleExtractor{}, noop
	}
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
