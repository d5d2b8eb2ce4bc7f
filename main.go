package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/handlers"
	"github.com/onurcolak/broadcast-dispatch-service/internal/audit"
	"github.com/onurcolak/broadcast-dispatch-service/internal/dispatcher"
	"github.com/onurcolak/broadcast-dispatch-service/internal/maintenance"
	"github.com/onurcolak/broadcast-dispatch-service/internal/middlewares"
	"github.com/onurcolak/broadcast-dispatch-service/internal/progress"
	"github.com/onurcolak/broadcast-dispatch-service/internal/queue"
	"github.com/onurcolak/broadcast-dispatch-service/internal/repository"
	"github.com/onurcolak/broadcast-dispatch-service/internal/scheduler"
	"github.com/onurcolak/broadcast-dispatch-service/internal/segment"
	"github.com/onurcolak/broadcast-dispatch-service/internal/service"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/database"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/redis"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/telegram"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/validator"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/webhook"
	"github.com/onurcolak/broadcast-dispatch-service/routes"

	_ "github.com/onurcolak/broadcast-dispatch-service/docs" // swagger docs
)

// @title Broadcast Dispatch Service API
// @version 1.0
// @description Segmented broadcast messaging with resumable, rate-limited dispatch
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email onur.colak@useinsider.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// Load config
	cfg := environments.Load()

	logger.Init(cfg.Log)
	defer func() { _ = logger.Close() }()

	// Hard-fail if required secrets are missing
	if cfg.Auth.BroadcastsAPIKey == "" {
		logger.Fatalf("BROADCASTS_API_KEY is required but not set")
	}
	if cfg.Auth.SchedulerAPIKey == "" {
		logger.Fatalf("SCHEDULER_API_KEY is required but not set")
	}

	// Init DB
	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis; only the valkey queue needs it
	var redisClient *redis.Client
	if cfg.Queue.Driver == "valkey" || cfg.Queue.Driver == "redis" || os.Getenv("REDIS_REQUIRED") == "true" {
		redisClient, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Valkey: %v", err)
		}
	}

	dispatchQueue, err := queue.New(cfg.Queue, redisClient, cfg.Dispatch.Workers)
	if err != nil {
		logger.Fatalf("Failed to initialize dispatch queue: %v", err)
	}
	logger.Infof("Dispatch queue driver: %s", cfg.Queue.Driver)

	// Initialize transport
	var transport dispatcher.Transport
	switch cfg.Transport.Driver {
	case "webhook":
		webhookClient := webhook.NewWebhookClient(cfg.Webhook)
		logger.Infof("Webhook transport configured: %s", webhookClient.GetURL())
		transport = webhookClient
	default:
		bot, err := telegram.New(cfg.Telegram, cfg.Dispatch.SendTimeout)
		if err != nil {
			logger.Fatalf("Failed to initialize Telegram transport: %v", err)
		}
		transport = bot
	}

	// Initialize repositories
	broadcastRepo := repository.NewBroadcastRepository(db)
	logRepo := repository.NewLogRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize services
	auditSink := audit.NewSink(logRepo)
	alerter := webhook.NewAlerter(cfg.Alert.WebhookURL)
	maint := maintenance.NewService(broadcastRepo, auditSink)

	broadcastService := service.NewBroadcastService(
		broadcastRepo,
		logRepo,
		segment.NewSegmenter(userRepo),
		dispatchQueue,
		maint,
		auditSink,
		cfg.Dispatch,
	)
	progressPublisher := progress.NewPublisher(broadcastRepo, cfg.Progress)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start dispatcher workers
	pool := dispatcher.NewPool(
		dispatcher.New(broadcastRepo, transport, auditSink, alerter, cfg.Dispatch),
		dispatchQueue,
		cfg.Dispatch.Workers,
	)
	if err := pool.Start(ctx); err != nil {
		logger.Fatalf("Failed to start dispatcher: %v", err)
	}

	// Initialize reconciler and housekeeping
	sched := scheduler.NewScheduler(
		broadcastRepo,
		dispatchQueue,
		maint,
		alerter,
		cfg.Maintenance.ReconcileInterval,
		cfg.Maintenance.StaleAfter,
		cfg.Alert.FailureThreshold,
	)
	housekeeper := scheduler.NewHousekeeper(maint, cfg.Maintenance)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient, broadcastRepo, cfg.Queue)
	broadcastHandler := handlers.NewBroadcastHandler(broadcastService, progressPublisher)
	schedulerHandler := handlers.NewSchedulerHandler(sched, ctx, cfg)

	// Auto-start reconciler
	if os.Getenv("AUTO_START_SCHEDULER") != "false" {
		logger.Infof("Auto-starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}
	if err := housekeeper.Start(ctx); err != nil {
		logger.Fatalf("Failed to start housekeeping: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middlewares.Metrics())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			middlewares.APIKeyHeader,
			middlewares.ActorHeader,
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, broadcastHandler, schedulerHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context: workers pause their running jobs, SSE streams end
	cancel()

	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		if err := sched.Stop(); err != nil {
			logger.Errorf("Error stopping scheduler: %v", err)
		}
	}
	housekeeper.Stop()

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Wait for workers to record their last outcomes
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Dispatch.SendTimeout + 5*time.Second):
		logger.Warnf("Dispatcher stop timeout, forcing shutdown")
	}

	if err := dispatchQueue.Close(); err != nil {
		logger.Errorf("Error closing dispatch queue: %v", err)
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
