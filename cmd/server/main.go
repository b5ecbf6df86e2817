// FretCoach - AI practice coach server
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

	"github.com/fretcoach/coach-server/internal/api"
	"github.com/fretcoach/coach-server/internal/coach"
	"github.com/fretcoach/coach-server/internal/completion"
	"github.com/fretcoach/coach-server/internal/config"
	"github.com/fretcoach/coach-server/internal/convlog"
	"github.com/fretcoach/coach-server/internal/identity"
	"github.com/fretcoach/coach-server/internal/metrics"
	"github.com/fretcoach/coach-server/internal/middleware"
	"github.com/fretcoach/coach-server/internal/plan"
	"github.com/fretcoach/coach-server/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "db_path", cfg.DBPath)

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

	m := metrics.New()

	conversationLogger, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
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

	registry := plan.NewRegistry(
		plan.WithTTL(cfg.Plans.TTL),
		plan.WithMaxPending(cfg.Plans.MaxPending),
	)

	// Completion service is optional at startup; chat routes are disabled without it.
	completer, closeCompleter := connectCompletion(cfg.Completion, logger, m)
	defer closeCompleter()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(identity.Middleware(cfg.DefaultUserID))

	// Public routes.
	api.NewHealthHandler(repo).RegisterHealth(r)
	api.NewSessionsHandler(repo, cfg.MaxRequestBodyBytes).RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	if completer != nil {
		svc, err := coach.New(coach.Deps{
			Sessions:  repo,
			Plans:     repo,
			Completer: completer,
			Registry:  registry,
			Generator: plan.NewGenerator(registry),
			Metrics:   m,
			ConvLog:   conversationLogger,
			Logger:    logger,
		})
		if err != nil {
			slog.Error("Failed to initialize coach", "error", err)
			os.Exit(1)
		}

		limiter := api.NewUserLimiter(cfg.ChatRateLimit.PerSecond, cfg.ChatRateLimit.Burst)
		chatHandler := api.NewChatHandler(svc, limiter, cfg.MaxRequestBodyBytes, logger)
		chatHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/coach", api.NewCoachSocket(chatHandler, cfg.CORSAllowedOrigins).ServeHTTP)
	} else {
		slog.Info("Coach chat disabled (completion service unavailable)")
	}

	// Note: completions are unbounded unless COMPLETION_TIMEOUT is set, so
	// there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start pending plan sweeper.
	plan.StartSweeper(ctx, registry, cfg.Plans.SweepInterval, func(_, remaining int) {
		m.SetPendingPlans(remaining)
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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// connectCompletion dials the primary completion service and the optional
// fallback. It returns a nil Completer when the primary is unreachable.
func connectCompletion(cfg config.CompletionConfig, logger *slog.Logger, m *metrics.Metrics) (completion.Completer, func()) {
	dial := func(addr string) (*completion.GrpcClient, error) {
		c := completion.DefaultGrpcClientConfig(addr)
		c.ConnectTimeout = cfg.ConnectTimeout
		c.RequestTimeout = cfg.Timeout
		return completion.NewGrpcClient(c, logger)
	}

	slog.Info("Attempting to connect to completion service via gRPC", "address", cfg.Addr)
	primary, err := dial(cfg.Addr)
	if err != nil {
		slog.Warn("Failed to connect to completion service, coach chat will be disabled", "error", err)
		return nil, func() {}
	}
	closers := []func(){primary.Close}

	var secondary completion.Completer
	if cfg.FallbackAddr != "" {
		fallback, err := dial(cfg.FallbackAddr)
		if err != nil {
			slog.Warn("Failed to connect to fallback completion service", "address", cfg.FallbackAddr, "error", err)
		} else {
			secondary = fallback
			closers = append(closers, fallback.Close)
		}
	}

	return completion.NewFallback(primary, secondary, logger, m.CompletionFellBack), func() {
		for _, c := range closers {
			c()
		}
	}
}
