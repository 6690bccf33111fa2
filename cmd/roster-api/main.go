package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/care-roster-api/api/swagger"
	"github.com/noah-isme/care-roster-api/internal/handler"
	"github.com/noah-isme/care-roster-api/internal/middleware"
	"github.com/noah-isme/care-roster-api/internal/models"
	"github.com/noah-isme/care-roster-api/internal/repository"
	"github.com/noah-isme/care-roster-api/internal/roster"
	"github.com/noah-isme/care-roster-api/internal/service"
	"github.com/noah-isme/care-roster-api/pkg/cache"
	"github.com/noah-isme/care-roster-api/pkg/config"
	"github.com/noah-isme/care-roster-api/pkg/database"
	"github.com/noah-isme/care-roster-api/pkg/jobs"
	"github.com/noah-isme/care-roster-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/care-roster-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/care-roster-api/pkg/middleware/requestid"
	"github.com/noah-isme/care-roster-api/pkg/storage"
)

// @title Care Roster API
// @version 1.0.0
// @description Monthly day/night caregiver rosters with cross-patient conflict checks
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, plan cache disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	metrics := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, redisClient != nil)

	patientRepo := repository.NewPatientRepository(db)
	workerRepo := repository.NewWorkerRepository(db)
	planRepo := repository.NewCarePlanRepository(db)

	engine := roster.New(roster.Config{
		DayShiftHours:     cfg.Roster.DayShiftHours,
		NightShiftHours:   cfg.Roster.NightShiftHours,
		Tolerance:         cfg.Roster.QuotaTolerance,
		SpreadCapFraction: cfg.Roster.SpreadCapFraction,
		MaxRepairPasses:   cfg.Roster.MaxRepairPasses,
	})
	validate := validator.New()

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})
	rosterSvc := service.NewRosterService(patientRepo, workerRepo, planRepo, cacheSvc, db, engine, validate, metrics, logr, service.RosterServiceConfig{
		ProposalTTL: cfg.Roster.ProposalTTL,
		CacheTTL:    cfg.Cache.TTL,
	})
	metrics.RegisterProposalsHeld(rosterSvc.ProposalsHeld)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "dir", cfg.Exports.StorageDir, "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	batchStore := service.NewBatchStatusStore(cfg.Batch.StatusTTL)
	batchWorker := service.NewBatchWorker(batchStore, rosterSvc, exportStore, signer, metrics, logr, service.BatchWorkerConfig{
		MaxRetries:   cfg.Batch.Retries,
		DownloadPath: cfg.APIPrefix + "/rosters/exports/download",
	})
	queue := jobs.NewQueue("roster-batches", batchWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Batch.Workers,
		BufferSize: cfg.Batch.BufferSize,
		MaxRetries: cfg.Batch.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnFailure:  batchWorker.OnFailure,
	})
	queue.Start(ctx)
	defer queue.Stop()
	metrics.RegisterQueueDepth(queue.Pending)

	batchSvc := service.NewBatchService(batchStore, queue, exportStore, signer, validate, logr, service.BatchServiceConfig{
		ExportTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})
	batchSvc.StartCleanup(ctx)

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	registerRoutes(r, cfg, routeDeps{
		auth:    authSvc,
		rosters: handler.NewRosterHandler(rosterSvc),
		batches: handler.NewBatchHandler(batchSvc),
		metrics: handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}

type routeDeps struct {
	auth    middleware.TokenValidator
	rosters *handler.RosterHandler
	batches *handler.BatchHandler
	metrics *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, deps routeDeps) {
	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// Signed download links carry their own token.
	api.GET("/rosters/exports/download", deps.batches.Download)

	planners := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator, models.RoleViewer)

	rosters := api.Group("/rosters", middleware.JWT(deps.auth))
	rosters.POST("/generate", planners, deps.rosters.Generate)
	rosters.POST("/validate", anyRole, deps.rosters.Validate)
	rosters.POST("/save", planners, deps.rosters.Save)
	rosters.GET("", anyRole, deps.rosters.List)
	rosters.POST("/batch", planners, deps.batches.Submit)
	rosters.GET("/batch/:id", anyRole, deps.batches.Status)
	rosters.GET("/:patientId/:year/:month", anyRole, deps.rosters.Get)
	rosters.GET("/:patientId/:year/:month/export", anyRole, deps.rosters.Export)
	rosters.DELETE("/:patientId/:year/:month", middleware.RequireRoles(models.RoleAdmin), deps.rosters.Delete)
}
