package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tc-schedule-api/api/swagger"
	"github.com/noah-isme/tc-schedule-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tc-schedule-api/internal/middleware"
	"github.com/noah-isme/tc-schedule-api/internal/repository"
	"github.com/noah-isme/tc-schedule-api/internal/service"
	"github.com/noah-isme/tc-schedule-api/pkg/cache"
	"github.com/noah-isme/tc-schedule-api/pkg/config"
	"github.com/noah-isme/tc-schedule-api/pkg/database"
	"github.com/noah-isme/tc-schedule-api/pkg/jobs"
	"github.com/noah-isme/tc-schedule-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tc-schedule-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tc-schedule-api/pkg/middleware/requestid"
)

// @title Training Center Scheduling API
// @version 1.0.0
// @description Student and teacher request workflows with scheduling conflict checks
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, advisory caching disabled", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Requests.SuggestionCacheTTL, logr, redisClient != nil)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	audit := service.NewAuditDispatcher(repository.NewAuditRepository(db), jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
		Logger:     logr.Named("audit"),
	})
	audit.Start(ctx)

	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))
	api.GET("/metrics/summary", internalmiddleware.RequireStaff(), metricsHandler.Summary)

	if cfg.Requests.Enabled {
		registerRequestRoutes(api, buildRequestHandlers(db, cfg, cacheSvc, metrics, audit, logr))
		logr.Info("request workflow routes mounted", zap.String("prefix", cfg.APIPrefix))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	audit.Stop()
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis client", zap.Error(err))
	}
}
