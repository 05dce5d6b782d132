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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/ooak-quotation-api/api/swagger"
	"github.com/noah-isme/ooak-quotation-api/internal/handler"
	"github.com/noah-isme/ooak-quotation-api/internal/middleware"
	"github.com/noah-isme/ooak-quotation-api/internal/models"
	"github.com/noah-isme/ooak-quotation-api/internal/repository"
	"github.com/noah-isme/ooak-quotation-api/internal/service"
	"github.com/noah-isme/ooak-quotation-api/pkg/cache"
	"github.com/noah-isme/ooak-quotation-api/pkg/config"
	"github.com/noah-isme/ooak-quotation-api/pkg/database"
	"github.com/noah-isme/ooak-quotation-api/pkg/export"
	"github.com/noah-isme/ooak-quotation-api/pkg/logger"
	"github.com/noah-isme/ooak-quotation-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/ooak-quotation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ooak-quotation-api/pkg/middleware/requestid"
)

// @title OOAK Quotation API
// @version 1.0.0
// @description Quotation workflow engine: stage transitions, overdue detection and notifications.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Summary.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, summary cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Summary.CacheTTL, logr, cfg.Summary.CacheEnabled)

	quotationRepo := repository.NewQuotationRepository(db)
	approvalRepo := repository.NewQuotationApprovalRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	notificationOpts := []service.NotificationServiceOption{service.WithNotificationMetrics(metricsSvc)}
	if cfg.NATS.Enabled {
		conn, err := messaging.NewNATS(cfg.NATS, logr)
		if err != nil {
			logr.Warn("nats unavailable, notification push disabled", zap.Error(err))
		} else {
			defer conn.Close()
			publisher := service.NewNotificationPublisher(conn, cfg.NATS.SubjectPrefix, cfg.NATS.PublishWorkers, cfg.NATS.PublishRetries, logr)
			publisher.Start(ctx)
			defer publisher.Stop()
			notificationOpts = append(notificationOpts, service.WithNotificationPush(publisher))
		}
	}
	notificationSvc := service.NewNotificationService(notificationRepo, cfg.Workflow.NotificationTTL, logr, notificationOpts...)

	resolver := service.NewStageEntryResolver(approvalRepo, logr)
	overdueSvc := service.NewOverdueService(quotationRepo, resolver, notificationSvc, notificationSvc, logr,
		service.WithDefaultRecipient(cfg.Workflow.DefaultRecipient),
		service.WithOverdueMetrics(metricsSvc),
		service.WithOverdueAudit(auditRepo),
	)
	quotationSvc := service.NewQuotationService(quotationRepo, approvalRepo, auditRepo, validator.New(), logr,
		service.WithQuotationNotifier(notificationSvc),
		service.WithApproverRecipient(cfg.Workflow.ApproverRecipient),
		service.WithQuotationCache(cacheSvc, cfg.Summary.CacheTTL),
		service.WithQuotationMetrics(metricsSvc),
	)
	exportSvc := service.NewExportService(overdueSvc, logr, export.NewCSVExporter(export.WithByteOrderMark()), export.NewPDFExporter())
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var scheduler *service.OverdueScheduler
	if cfg.Workflow.ScanEnabled {
		scheduler = service.NewOverdueScheduler(overdueSvc, cfg.Workflow.ScanInterval, cfg.Workflow.ScanTimeout, logr)
		scheduler.Start(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	quotationHandler := handler.NewQuotationHandler(quotationSvc)
	overdueHandler := handler.NewOverdueHandler(overdueSvc, exportSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	quotations := api.Group("/quotations")
	quotations.GET("", quotationHandler.List)
	quotations.POST("", quotationHandler.Create)
	quotations.GET("/summary", quotationHandler.Summary)
	quotations.GET("/:id", quotationHandler.Get)
	quotations.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), quotationHandler.Delete)
	quotations.POST("/:id/events", quotationHandler.ApplyEvent)
	quotations.GET("/:id/approvals", quotationHandler.Approvals)

	workflow := api.Group("/workflow/overdue")
	workflow.GET("", overdueHandler.List)
	workflow.POST("/scan", middleware.RequireRoles(models.RoleAdmin, models.RoleSalesHead), overdueHandler.Scan)
	workflow.GET("/export",
		middleware.Audit(auditRepo, models.AuditActionOverdueExport, "overdue_report", logr),
		overdueHandler.Export,
	)

	notifications := api.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

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
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Wait()
	}
}
