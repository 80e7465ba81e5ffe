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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/andersonlima/membergate/backend/internal/auth"
	"github.com/andersonlima/membergate/backend/internal/config"
	"github.com/andersonlima/membergate/backend/internal/content"
	"github.com/andersonlima/membergate/backend/internal/engagement"
	"github.com/andersonlima/membergate/backend/internal/events"
	"github.com/andersonlima/membergate/backend/internal/health"
	"github.com/andersonlima/membergate/backend/internal/logger"
	"github.com/andersonlima/membergate/backend/internal/lookup"
	"github.com/andersonlima/membergate/backend/internal/metrics"
	authmw "github.com/andersonlima/membergate/backend/internal/middleware"
	"github.com/andersonlima/membergate/backend/internal/notification"
	"github.com/andersonlima/membergate/backend/internal/repository"
	"github.com/andersonlima/membergate/backend/internal/sanitizer"
	"github.com/andersonlima/membergate/backend/internal/scheduler"
	"github.com/andersonlima/membergate/backend/internal/security"
	"github.com/andersonlima/membergate/backend/internal/session"
	"github.com/andersonlima/membergate/backend/internal/sse"
	"github.com/andersonlima/membergate/backend/internal/storage"
)

var version = "dev"

func main() {
	// Load configuration
	cfg := config.Load()

	if cfg.JWT.AccessSecret == "" {
		log.Fatal("JWT_ACCESS_SECRET environment variable is required")
	}
	if cfg.JWT.RefreshSecret == "" {
		log.Fatal("JWT_REFRESH_SECRET environment variable is required")
	}

	slogger := logger.New(logger.DefaultConfig())

	// Setup database connections
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	sqlxDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database via sqlx: %v", err)
	}
	defer sqlxDB.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	contentRepo := repository.NewContentRepository(dbPool)
	notificationRepo := repository.NewNotificationRepository(dbPool)
	engagementRepo := repository.NewEngagementRepository(dbPool)
	securityLogRepo := repository.NewSecurityLogRepo(sqlxDB)

	// Event bus with a replay buffer for SSE reconnects
	bus := events.NewEventBus(events.NewEventStore(1000))

	// Initialize services
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       cfg.JWT.AccessSecret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		AccessTokenExpiry:  cfg.JWT.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.JWT.RefreshTokenExpiry,
		Issuer:             cfg.JWT.Issuer,
	})

	geoClient := lookup.NewHTTPGeoClient(lookup.HTTPGeoClientConfig{
		Endpoint:       cfg.Geo.Endpoint,
		Timeout:        cfg.Geo.Timeout,
		RequestsPerMin: cfg.Geo.RequestsPerMin,
	}, slogger)

	sessionManager := session.NewManager(session.ManagerConfig{
		Users:       userRepo,
		Sessions:    sessionRepo,
		SecurityLog: securityLogRepo,
		Hasher:      auth.NewPasswordHasher(),
		Tokens:      tokenService,
		Geo:         geoClient,
		Bus:         bus,
		Admin:       cfg.Admin,
		IPThreshold: cfg.Access.SuspiciousIPThreshold,
		Logger:      slogger,
	})

	notifier := notification.NewService(notificationRepo, bus, slogger)
	contentService := content.NewService(contentRepo, userRepo, sanitizer.NewHTMLSanitizer(), bus, slogger)
	engagementService := engagement.NewService(engagementRepo, contentRepo, userRepo, slogger)
	securityService := security.NewService(securityLogRepo, sessionRepo, userRepo, slogger)

	sched := scheduler.NewScheduler(userRepo, contentRepo, notifier, bus, cfg.Scheduler, slogger)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Initialize handlers
	sessionHandler := session.NewHandler(sessionManager, slogger)
	contentHandler := content.NewHandler(contentService, slogger)
	engagementHandler := engagement.NewHandler(engagementService, slogger)
	notificationHandler := notification.NewHandler(notifier, slogger)
	securityHandler := security.NewHandler(securityService, slogger)
	streamHandler := sse.NewStreamHandler(tokenService, bus, sse.DefaultConfig(), slogger)
	healthHandler := health.NewHandler(health.Config{
		DBPool:    dbPool,
		Scheduler: sched,
		Version:   version,
	})

	var materialHandler *storage.MaterialHandler
	storageService, err := storage.NewStorageService(&cfg.Storage)
	if err != nil {
		slogger.Warn("Object storage unavailable, lesson material downloads disabled", "error", err)
	} else {
		materialHandler = storage.NewMaterialHandler(contentRepo, userRepo, storageService, slogger)
	}

	// Initialize middleware
	authMiddleware := authmw.NewAuthMiddleware(tokenService)
	loginLimiter := authmw.NewLoginRateLimiter(10)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(authmw.StructuredLogger(slogger))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// login and refresh, rate limited per IP
		r.Group(func(r chi.Router) {
			r.Use(loginLimiter.Limit)
			sessionHandler.RegisterAuthRoutes(r)
		})

		// SSE stream authenticates inside the handler so EventSource
		// clients can pass the token as a query parameter
		streamHandler.RegisterRoutes(r)

		// authenticated member routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			sessionHandler.RegisterSessionRoutes(r)
			contentHandler.RegisterRoutes(r)
			engagementHandler.RegisterRoutes(r)
			notificationHandler.RegisterRoutes(r)
			if materialHandler != nil {
				materialHandler.RegisterRoutes(r)
			}

			r.Route("/admin", func(r chi.Router) {
				r.Use(authMiddleware.RequireAdmin)

				contentHandler.RegisterAdminRoutes(r)
				sessionHandler.RegisterAdminRoutes(r)
				securityHandler.RegisterRoutes(r)
				if materialHandler != nil {
					materialHandler.RegisterAdminRoutes(r)
				}
			})
		})
	})

	// Create server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slogger.Info("Starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("Shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slogger.Info("Server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
