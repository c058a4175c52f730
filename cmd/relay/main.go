package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/chatforge/realtime-console/internal/adapters/primary/http"
	mw "github.com/chatforge/realtime-console/internal/adapters/primary/http/middleware"
	"github.com/chatforge/realtime-console/internal/adapters/primary/websocket"
	"github.com/chatforge/realtime-console/internal/adapters/secondary/postgres"
	"github.com/chatforge/realtime-console/internal/auth"
	"github.com/chatforge/realtime-console/internal/config"
	"github.com/chatforge/realtime-console/internal/core/ports"
	"github.com/chatforge/realtime-console/internal/core/services"
	"github.com/chatforge/realtime-console/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateRelay(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name + "-relay",
		Environment: cfg.App.Environment,
	})

	logger.Info("starting relay",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	// 3. Initialize the envelope archive and widget directory. Without a
	// database the relay still runs: widgets live in memory and history is
	// unavailable.
	ctx := context.Background()

	var (
		pool      *pgxpool.Pool
		archive   ports.EnvelopeArchive
		directory ports.WidgetDirectory
	)

	if cfg.Database.URL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			logger.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
		poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
		poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		logger.Info("database connection established")

		archive = postgres.NewEnvelopeArchive(pool)
		directory = postgres.NewWidgetRepository(pool)
	} else {
		logger.Warn("no DATABASE_URL configured, running with in-memory widget directory")
		directory = services.NewMemoryWidgetDirectory()
	}

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	responder := services.NewResponderService()
	hub := websocket.NewHub(logger)
	go hub.Run()

	// 5. Initialize Rate Limiters
	generalRateLimiter := mw.NewRateLimiter(mw.DefaultRateLimiterConfig())
	tokenRateLimiter := mw.NewRateLimiter(mw.AuthRateLimiterConfig())

	// 6. Dependency Injection (Wiring the Hexagon)
	errorHandler := httpAdapter.NewErrorHandler(logger)

	widgetHandler := httpAdapter.NewWidgetHandler(directory, tokenManager, errorHandler, logger)
	feedHandler := httpAdapter.NewFeedHandler(hub, archive, errorHandler, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, tokenManager, responder, archive, cfg, logger)

	// A nil *pgxpool.Pool must not end up inside the HealthChecker interface.
	var healthDB httpAdapter.HealthChecker
	if pool != nil {
		healthDB = pool
	}
	healthHandler := httpAdapter.NewHealthHandler(healthDB, cfg.App.Version)

	// 7. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(generalRateLimiter.Middleware)

	// Health check endpoints (outside /api/v1 for standard probe paths)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/live", healthHandler.HandleLiveness)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Widget registration and token minting with stricter rate limiting
		r.Group(func(r chi.Router) {
			r.Use(tokenRateLimiter.Middleware)
			r.Post("/widgets", widgetHandler.HandleRegister)
			r.Post("/widgets/token", widgetHandler.HandleMintToken)
		})

		// WebSocket route (Authentication is handled inside the handler)
		r.Get("/ws", wsHandler.ServeHTTP)

		// Protected feed and history routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokenManager))
			r.Post("/feed/processing", feedHandler.HandleProcessingUpdate)
			r.Post("/feed/deployment", feedHandler.HandleDeploymentStatus)
			r.Post("/feed/analytics", feedHandler.HandleAnalyticsUpdate)
			r.Post("/feed/notification", feedHandler.HandleNotification)
			r.Get("/sessions/{sessionID}/history", feedHandler.HandleSessionHistory)
		})
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Relay.Port,
		Handler:      r,
		ReadTimeout:  cfg.Relay.ReadTimeout,
		WriteTimeout: cfg.Relay.WriteTimeout,
		IdleTimeout:  cfg.Relay.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("relay listening", "port", cfg.Relay.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
	defer cancel()

	// Graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("relay shutdown complete")
}

// corsOrigins widens to any origin in development so local dashboards can
// talk to the relay without configuration.
func corsOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || len(cfg.Relay.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	origins := make([]string, 0, len(cfg.Relay.AllowedOrigins))
	for _, origin := range cfg.Relay.AllowedOrigins {
		origins = append(origins, "https://"+origin)
	}
	return origins
}
