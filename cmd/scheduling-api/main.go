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

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/cura-emr/scheduling-api/api/swagger"
	"github.com/cura-emr/scheduling-api/internal/handler"
	"github.com/cura-emr/scheduling-api/internal/middleware"
	"github.com/cura-emr/scheduling-api/internal/repository"
	"github.com/cura-emr/scheduling-api/internal/service"
	"github.com/cura-emr/scheduling-api/pkg/cache"
	"github.com/cura-emr/scheduling-api/pkg/config"
	"github.com/cura-emr/scheduling-api/pkg/database"
	"github.com/cura-emr/scheduling-api/pkg/jobs"
	"github.com/cura-emr/scheduling-api/pkg/logger"
	corsmiddleware "github.com/cura-emr/scheduling-api/pkg/middleware/cors"
	reqidmiddleware "github.com/cura-emr/scheduling-api/pkg/middleware/requestid"
	"github.com/cura-emr/scheduling-api/pkg/storage"
)

// @title Clinic Scheduling API
// @version 1.0.0
// @description Appointment scheduling core: shifts, availability, conflict-guarded booking and slot recommendations
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduling.AvailabilityCacheTTL, logr, cfg.Scheduling.CacheEnabled && redisClient != nil)

	appointmentRepo := repository.NewAppointmentRepository(db, cfg.Scheduling.BookingLockTimeout, logr)
	shiftRepo := repository.NewShiftRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	notificationQueue := jobs.NewQueue("notifications", notificationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationSvc.AttachQueue(notificationQueue)

	resolver := service.NewShiftResolver(shiftRepo, shiftRepo)
	availabilitySvc := service.NewAvailabilityService(resolver, appointmentRepo, cacheSvc, logr)
	availabilitySvc.AttachProviderDirectory(shiftRepo)
	shiftSvc := service.NewShiftService(shiftRepo, availabilitySvc, nil, logr)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, availabilitySvc, notificationSvc, logr)
	bookingSvc := service.NewBookingService(appointmentRepo, availabilitySvc, notificationSvc, metricsSvc, logr, service.BookingConfig{
		RejectPastBookings: cfg.Scheduling.RejectPastBookings,
	})
	advisorSvc := service.NewAdvisorService(availabilitySvc, appointmentRepo, appointmentSvc, nil, metricsSvc, logr, service.AdvisorServiceConfig{
		RescheduleWindowDays: cfg.Advisor.RescheduleWindow,
	})

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(appointmentSvc, fileStore, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, nil, nil)
	}

	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc, bookingSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	shiftHandler := handler.NewShiftHandler(shiftSvc)
	advisorHandler := handler.NewAdvisorHandler(advisorSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/appointments", appointmentHandler.List)
		api.POST("/appointments", appointmentHandler.Book)
		api.GET("/appointments/:id", appointmentHandler.Get)
		api.POST("/appointments/:id/cancel", appointmentHandler.Cancel)
		api.POST("/appointments/:id/reschedule", appointmentHandler.Reschedule)

		api.GET("/notifications", notificationHandler.List)

		api.GET("/providers/:id/availability", availabilityHandler.Day)
		api.GET("/providers/:id/availability/check", availabilityHandler.Check)
		api.GET("/availability/providers", availabilityHandler.ListProviders)

		api.GET("/providers/:id/shifts", shiftHandler.ListCustom)
		api.PUT("/providers/:id/shifts", shiftHandler.UpsertCustom)
		api.DELETE("/providers/:id/shifts/:date", shiftHandler.DeleteCustom)
		api.GET("/providers/:id/shifts/default", shiftHandler.GetDefault)
		api.PUT("/providers/:id/shifts/default", shiftHandler.UpsertDefault)

		if cfg.Advisor.Enabled {
			api.GET("/advisor/slots", advisorHandler.Recommend)
			api.POST("/advisor/conflicts", advisorHandler.Conflicts)
			api.POST("/appointments/:id/auto-reschedule", advisorHandler.AutoReschedule)
		}

		if exportSvc != nil {
			exportHandler := handler.NewExportHandler(exportSvc)
			api.POST("/providers/:id/daysheet", exportHandler.DaySheet)
			api.GET("/exports/:token", exportHandler.Download)
		}

		api.GET("/metrics/snapshot", metricsHandler.Snapshot)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notificationQueue.Start(rootCtx)

	// reminder sweep
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case now := <-ticker.C:
				if _, err := notificationSvc.DispatchDue(rootCtx, now); err != nil {
					logr.Sugar().Warnw("reminder dispatch failed", "error", err)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	cancel()
	notificationQueue.Stop()
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
