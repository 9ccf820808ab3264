// Friend - companion chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/friendchat/internal/ai"
	"github.com/ashureev/friendchat/internal/api"
	"github.com/ashureev/friendchat/internal/app"
	"github.com/ashureev/friendchat/internal/chat"
	"github.com/ashureev/friendchat/internal/config"
	"github.com/ashureev/friendchat/internal/convlog"
	"github.com/ashureev/friendchat/internal/daily"
	"github.com/ashureev/friendchat/internal/events"
	"github.com/ashureev/friendchat/internal/i18n"
	"github.com/ashureev/friendchat/internal/middleware"
	"github.com/ashureev/friendchat/internal/sessions"
	"github.com/ashureev/friendchat/internal/store"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("Invalid timezone", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "locale", cfg.Locale, "timezone", loc.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage.
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

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	sessionRepo, err := sessions.Open(ctx, repo, logger)
	if err != nil {
		slog.Error("Failed to load sessions", "error", err)
		os.Exit(1)
	}

	// AI boundary.
	gemini, err := ai.NewGemini(ctx, ai.GeminiConfig{
		APIKey:         cfg.GeminiAPIKey,
		TextModel:      cfg.TextModel,
		ImageModel:     cfg.ImageModel,
		RequestTimeout: cfg.AIRequestTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize AI client", "error", err)
		os.Exit(1)
	}
	defer gemini.Close()

	msgs, err := i18n.New(cfg.Locale)
	if err != nil {
		slog.Error("Failed to load messages", "locale", cfg.Locale, "error", err)
		os.Exit(1)
	}

	conversationLogger, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	hub := events.NewHub(cfg.FrontendURL, cfg.IsDevelopment(), logger)
	defer hub.Close()

	// Services.
	reconciler := daily.NewReconciler(sessionRepo, gemini,
		daily.WithLocation(loc),
		daily.WithLogger(logger),
	)

	controller := chat.New(sessionRepo, gemini, msgs, chat.Config{
		Location:            loc,
		FollowUpDelay:       cfg.FollowUpDelay,
		TriviaFollowUpDelay: cfg.TriviaFollowUpDelay,
		BackgroundTimeout:   chat.DefaultConfig().BackgroundTimeout,
		MemoryExtraction:    cfg.MemoryExtractionEnabled,
		WebSearch:           cfg.WebSearchEnabled,
	},
		chat.WithLogger(logger),
		chat.WithPublisher(hub),
		chat.WithConversationLog(conversationLogger),
		chat.WithDayRoller(reconciler),
	)

	application := app.New(app.Deps{
		Sessions:   sessionRepo,
		Chat:       controller,
		Reconciler: reconciler,
		Messages:   msgs,
		Events:     hub,
		Logger:     logger,
	}, app.WithCheckInterval(cfg.DailyCheckInterval))
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		slog.Error("Failed to start application", "error", err)
		os.Exit(1)
	}
	slog.Info("Daily worker started", "interval", cfg.DailyCheckInterval)

	handler := api.NewHandler(application, repo, gemini, api.Options{
		MaxRequestBodySize: cfg.MaxRequestBodyBytes,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
	})
	defer handler.Close()

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	handler.RegisterRoutes(r)

	// WebSocket endpoint for view updates.
	r.Get("/ws/events", hub.ServeHTTP)

	// Note: streamed replies require long-lived responses (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
