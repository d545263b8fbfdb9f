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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/wanderdesk/wanderdesk-api/api/swagger"
	"github.com/wanderdesk/wanderdesk-api/internal/handler"
	"github.com/wanderdesk/wanderdesk-api/internal/middleware"
	"github.com/wanderdesk/wanderdesk-api/internal/migration"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	"github.com/wanderdesk/wanderdesk-api/internal/repository"
	"github.com/wanderdesk/wanderdesk-api/internal/service"
	rediscache "github.com/wanderdesk/wanderdesk-api/pkg/cache"
	"github.com/wanderdesk/wanderdesk-api/pkg/config"
	"github.com/wanderdesk/wanderdesk-api/pkg/database"
	"github.com/wanderdesk/wanderdesk-api/pkg/idempotency"
	"github.com/wanderdesk/wanderdesk-api/pkg/jobs"
	"github.com/wanderdesk/wanderdesk-api/pkg/logger"
	corsmiddleware "github.com/wanderdesk/wanderdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/wanderdesk/wanderdesk-api/pkg/middleware/requestid"
)

// @title WanderDesk API
// @version 1.0.0
// @description Travel agency back office with workflow automation
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migration.Up(db); err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
		logr.Info("database migrations applied")
	}

	// Redis is optional: without it the run summary cache is skipped and the
	// idempotency store falls back to memory.
	var redisClient *redis.Client
	if client, err := rediscache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without it", "error", err)
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	tripRepo := repository.NewTripRepository(db)
	travelerRepo := repository.NewTravelerRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	executionRepo := repository.NewExecutionRepository(db)

	metricsService := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "wanderdesk-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	clientService := service.NewClientService(clientRepo, validate, logr)
	tripService := service.NewTripService(tripRepo, clientRepo, userRepo, travelerRepo, feedbackRepo, validate, logr)
	bookingService := service.NewBookingService(bookingRepo, tripRepo, validate, logr)
	taskService := service.NewTaskService(taskRepo, tripRepo, bookingRepo, userRepo, logr,
		service.WithTaskAudit(userRepo))
	notifyService := service.NewNotifyService(notificationRepo, userRepo, logr,
		service.WithNotifyMetrics(metricsService))
	readinessService := service.NewReadinessService(tripRepo, travelerRepo, bookingRepo, clientRepo, logr)

	automationOpts := []service.AutomationOption{
		service.WithAutomationAudit(userRepo),
		service.WithAutomationMetrics(metricsService),
	}
	if redisClient != nil {
		automationOpts = append(automationOpts,
			service.WithAutomationCache(repository.NewCacheRepository(redisClient, logr)))
	}
	automationService := service.NewAutomationService(
		tripRepo, taskRepo, bookingRepo, notifyService, readinessService,
		service.AutomationConfig{
			QuoteFollowUpDays:    cfg.Automation.QuoteFollowUpDays,
			TaskReminderDays:     cfg.Automation.TaskReminderDays,
			FeedbackReminderDays: cfg.Automation.FeedbackDays,
			CommissionDays:       cfg.Automation.CommissionDays,
			PaymentDeadlineHours: cfg.Automation.PaymentDeadlineHours,
			TravelReadinessHours: cfg.Automation.TravelReadinessHours,
			FinalPaymentDays:     cfg.Automation.FinalPaymentTaskDays,
			PreTravelDays:        cfg.Automation.PreTravelTaskDays,
			BookingPaymentDays:   cfg.Automation.BookingPaymentTaskDays,
		},
		logr, automationOpts...)
	approvalService := service.NewApprovalService(
		approvalRepo, executionRepo, tripRepo, bookingRepo, notifyService, logr,
		service.WithApprovalAudit(userRepo),
		service.WithApprovalMetrics(metricsService))

	var idemStore idempotency.Store
	if cfg.Idempotency.Backend == "redis" && redisClient != nil {
		idemStore = idempotency.NewRedisStore(redisClient, cfg.Idempotency.TTL)
	} else {
		idemStore = idempotency.NewMemoryStore(cfg.Idempotency.TTL, cfg.Idempotency.SweepInterval)
	}

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	clientHandler := handler.NewClientHandler(clientService)
	tripHandler := handler.NewTripHandler(tripService, readinessService)
	bookingHandler := handler.NewBookingHandler(bookingService)
	taskHandler := handler.NewTaskHandler(taskService)
	notificationHandler := handler.NewNotificationHandler(notifyService)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	automationHandler := handler.NewAutomationHandler(automationService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	jwtAuth := middleware.JWT(authService)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	idem := middleware.Idempotency(idemStore, logr)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", jwtAuth, authHandler.Logout)
		auth.POST("/change-password", jwtAuth, authHandler.ChangePassword)
		auth.GET("/me", jwtAuth, authHandler.Me)
	}

	users := api.Group("/users", jwtAuth)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", adminOnly, userHandler.Create)
	}

	clients := api.Group("/clients", jwtAuth)
	{
		clients.GET("", clientHandler.List)
		clients.GET("/:id", clientHandler.Get)
		clients.POST("", idem, clientHandler.Create)
		clients.PUT("/:id", idem, clientHandler.Update)
	}

	trips := api.Group("/trips", jwtAuth)
	{
		trips.GET("", tripHandler.List)
		trips.GET("/:id", tripHandler.Get)
		trips.POST("", idem, tripHandler.Create)
		trips.PUT("/:id", idem, tripHandler.Update)
		trips.POST("/:id/stage", idem, tripHandler.ChangeStage)
		trips.GET("/:id/travelers", tripHandler.ListTravelers)
		trips.POST("/:id/travelers", idem, tripHandler.AddTraveler)
		trips.GET("/:id/feedback", tripHandler.GetFeedback)
		trips.POST("/:id/feedback", idem, tripHandler.RecordFeedback)
		trips.GET("/:id/readiness", tripHandler.Readiness)
	}

	bookings := api.Group("/bookings", jwtAuth)
	{
		bookings.GET("", bookingHandler.List)
		bookings.GET("/:id", bookingHandler.Get)
		bookings.POST("", idem, bookingHandler.Create)
		bookings.PUT("/:id", idem, bookingHandler.Update)
	}

	tasks := api.Group("/tasks", jwtAuth)
	{
		tasks.GET("", taskHandler.List)
		tasks.GET("/:id", taskHandler.Get)
		tasks.POST("", idem, taskHandler.Create)
		tasks.POST("/:id/complete", idem, taskHandler.Complete)
	}

	notifications := api.Group("/notifications", jwtAuth)
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
	}

	if cfg.Approvals.Enabled {
		approvals := api.Group("/approvals", jwtAuth)
		{
			approvals.POST("", idem, approvalHandler.Create)
			approvals.GET("", approvalHandler.List)
			approvals.GET("/:id", approvalHandler.Get)
			approvals.POST("/:id/approve", adminOnly, idem, approvalHandler.Approve)
			approvals.POST("/:id/deny", adminOnly, idem, approvalHandler.Deny)
		}
	}

	automation := api.Group("/automation", jwtAuth, adminOnly)
	{
		automation.POST("/scan/quote-followups", automationHandler.ScanQuoteFollowUps)
		automation.POST("/scan/task-reminders", automationHandler.ScanTaskReminders)
		automation.POST("/scan/feedback", automationHandler.ScanFeedback)
		automation.POST("/scan/commission-followups", automationHandler.ScanCommissions)
		automation.POST("/scan/payment-deadlines", automationHandler.ScanPaymentDeadlines)
		automation.POST("/scan/travel-readiness", automationHandler.ScanTravelReadiness)
		automation.POST("/scan/deadline-tasks", automationHandler.GenerateDeadlineTasks)
		automation.POST("/tasks/reconcile", automationHandler.ReconcileOverdue)
		automation.POST("/run", automationHandler.RunAll)
		automation.GET("/last-run", automationHandler.LastRun)
	}

	api.GET("/metrics/snapshot", jwtAuth, adminOnly, metricsHandler.Snapshot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Automation.Enabled && cfg.Automation.Interval > 0 {
		runner := newAutomationRunner(automationService, cfg.Automation.Interval, logr)
		runner.start(ctx)
		defer runner.stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// automationRunner ticks the full rule sweep on a fixed interval. The sweep
// runs through the job queue so a slow scan cannot stack a second sweep on
// top of itself.
type automationRunner struct {
	automation *service.AutomationService
	interval   time.Duration
	logger     *zap.Logger
	queue      *jobs.Queue
	done       chan struct{}
}

func newAutomationRunner(automation *service.AutomationService, interval time.Duration, logr *zap.Logger) *automationRunner {
	r := &automationRunner{
		automation: automation,
		interval:   interval,
		logger:     logr,
		done:       make(chan struct{}),
	}
	r.queue = jobs.NewQueue("automation", r.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: 1,
		Logger:     logr,
	})
	return r
}

func (r *automationRunner) handle(ctx context.Context, job jobs.Job) error {
	summary, err := r.automation.RunAll(ctx)
	if err != nil {
		return err
	}
	r.logger.Sugar().Infow("automation sweep finished",
		"created", summary.Created,
		"failed", summary.Failed,
		"duration", summary.Duration)
	return nil
}

func (r *automationRunner) start(ctx context.Context) {
	r.queue.Start(ctx)
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				job := jobs.Job{ID: t.UTC().Format(time.RFC3339), Type: "run_all"}
				if err := r.queue.Enqueue(job); err != nil {
					r.logger.Sugar().Warnw("failed to enqueue automation sweep", "error", err)
				}
			}
		}
	}()
	r.logger.Sugar().Infow("automation runner started", "interval", r.interval)
}

func (r *automationRunner) stop() {
	<-r.done
	r.queue.Stop()
}
