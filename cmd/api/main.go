package main

// @title GrowthLab Experiments API
// @version 1.0
// @description Experiment assignment and variant-configuration engine for the GrowthLab personal-development platform.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey AdminToken
// @in header
// @name X-Admin-Token

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanlanch/growthlab/config"
	"github.com/jordanlanch/growthlab/pkg/api/handlers"
	"github.com/jordanlanch/growthlab/pkg/cache"
	"github.com/jordanlanch/growthlab/pkg/database"
	"github.com/jordanlanch/growthlab/pkg/experiment"
	"github.com/jordanlanch/growthlab/pkg/experiment/memory"
	"github.com/jordanlanch/growthlab/pkg/experiment/postgres"
	"github.com/jordanlanch/growthlab/pkg/jobs"
	"github.com/jordanlanch/growthlab/pkg/logger"
	"github.com/jordanlanch/growthlab/pkg/metrics"
	custommw "github.com/jordanlanch/growthlab/pkg/middleware"
)

func main() {
	cfg := config.Load()
	appLog := logger.New(cfg.LogLevel, cfg.LogFormat)
	appLog.Info("configuration loaded", "environment", cfg.APIEnvironment)

	// Sentry error tracking (optional)
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			AttachStacktrace: true,
		})
		if err != nil {
			appLog.Warn("failed to initialize sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Assignment store
	var store experiment.Store
	switch cfg.StoreBackend {
	case "memory":
		appLog.Warn("using in-memory store; assignments will not survive restarts")
		store = memory.NewStore()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		db, err := database.NewClient(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()

		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}

		store = postgres.NewStore(db)
	}

	// Definition cache (optional)
	var cacheClient *cache.Client
	if cfg.RedisURL != "" {
		var err error
		cacheClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer cacheClient.Close()
		appLog.Info("definition cache enabled", "ttl", cfg.DefinitionCacheTTL)
	}

	catalog := experiment.DefaultCatalog()
	service := experiment.NewService(store, catalog, cacheClient, cfg.DefinitionCacheTTL, appLog)

	prometheusMetrics := metrics.New()

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(custommw.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(custommw.SecurityHeaders(custommw.SecurityHeadersConfig{}))
	e.Use(prometheusMetrics.Middleware())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}

	rateLimiter := custommw.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	e.Use(rateLimiter.RateLimitMiddleware())

	// Handlers
	experimentHandler := handlers.NewExperimentHandler(service, prometheusMetrics, appLog)
	adminHandler := handlers.NewAdminHandler(service)

	// Routes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	v1.GET("/experiments/assignment", experimentHandler.GetAssignment)
	v1.POST("/experiments/conversions", experimentHandler.RecordConversion)

	admin := v1.Group("/admin", custommw.RequireAdminToken(cfg.AdminToken))
	admin.GET("/experiments", adminHandler.ListExperiments)
	admin.POST("/experiments", adminHandler.CreateExperiment)
	admin.GET("/experiments/:key/results", adminHandler.GetResults)
	admin.PATCH("/experiments/:key/active", adminHandler.SetActive)

	// Scheduled jobs
	if cfg.EnableExpiryJob {
		cronManager := jobs.NewCronManager(store, service, appLog)
		if err := cronManager.SetupJobs(); err != nil {
			log.Fatalf("failed to set up cron jobs: %v", err)
		}
		cronManager.Start()
		defer cronManager.Stop()
	}

	// Start server
	go func() {
		addr := cfg.APIHost + ":" + cfg.APIPort
		appLog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLog.Error("server stopped", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		appLog.Error("forced shutdown", "error", err)
	}
}
