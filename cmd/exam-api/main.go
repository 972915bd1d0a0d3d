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

	_ "github.com/noah-isme/sma-exam-api/api/swagger"
	"github.com/noah-isme/sma-exam-api/internal/handler"
	"github.com/noah-isme/sma-exam-api/internal/middleware"
	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/internal/repository"
	"github.com/noah-isme/sma-exam-api/internal/service"
	"github.com/noah-isme/sma-exam-api/pkg/cache"
	"github.com/noah-isme/sma-exam-api/pkg/config"
	"github.com/noah-isme/sma-exam-api/pkg/database"
	"github.com/noah-isme/sma-exam-api/pkg/export"
	"github.com/noah-isme/sma-exam-api/pkg/jobs"
	"github.com/noah-isme/sma-exam-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-exam-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-exam-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-exam-api/pkg/storage"
	"github.com/noah-isme/sma-exam-api/pkg/telemetry"
)

// @title SMA Exam API
// @version 1.0.0
// @description Exam sessions, automated scoring, SLA-bound manual evaluation and subscription quotas.
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

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logr.Warn("tracing disabled", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	tx := database.NewTransactor(db)
	leaser := cache.NewLeaser(redisClient, "exam-api:lease:")

	templateCache := repository.NewCacheRepository(redisClient, "exam-api:cache:")
	templates := service.NewCachedTemplateReader(repository.NewExamTemplateRepository(db), templateCache, cfg.Exam.TemplateCacheTTL, metricsSvc, logr)
	questionRepo := repository.NewQuestionRepository(db)
	examRepo := repository.NewExamInstanceRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	holidayRepo := repository.NewHolidayRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	eventRepo := repository.NewEventRepository(redisClient, cfg.Notifier.Stream, cfg.Notifier.MaxLen)

	calendar, err := service.NewCalendarService(cfg.Calendar, holidayRepo, logr)
	if err != nil {
		logr.Fatal("invalid calendar configuration", zap.Error(err))
	}
	if err := calendar.Refresh(ctx); err != nil {
		logr.Warn("holiday calendar not loaded", zap.Error(err))
	}

	notifier := service.NewNotifierService(eventRepo, jobs.QueueConfig{
		Workers:    cfg.Notifier.Workers,
		BufferSize: cfg.Notifier.BufferSize,
		MaxRetries: cfg.Notifier.MaxRetries,
		RetryDelay: cfg.Notifier.RetryDelay,
		Logger:     logr,
	}, metricsSvc, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	signer := storage.NewSignedURLSigner(cfg.Storage.AnswerSheetBaseURL, cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	entitlementSvc := service.NewEntitlementService(subscriptionRepo, tx, calendar.Location(), validate, metricsSvc, logr)
	ledgerSvc := service.NewAnswerLedgerService(answerRepo, examRepo, tx, cfg.Exam.SubmissionGrace, validate, logr)
	schedulerSvc, err := service.NewEvaluationSchedulerService(service.EvaluationSchedulerDeps{
		Evaluations: evaluationRepo,
		Teachers:    teacherRepo,
		Exams:       examRepo,
		Answers:     answerRepo,
		Calendar:    calendar,
		Signer:      signer,
		Notifier:    notifier,
		Lease:       leaser,
		Tx:          tx,
	}, service.EvaluationSchedulerConfig{
		ScanInterval: cfg.Evaluation.ScanInterval,
		ScanBatch:    cfg.Evaluation.ScanBatch,
		TieBreak:     cfg.Evaluation.TieBreak,
		LeaseTTL:     cfg.Evaluation.LeaseTTL,
	}, validate, metricsSvc, logr)
	if err != nil {
		logr.Fatal("invalid evaluation configuration", zap.Error(err))
	}
	sessionSvc := service.NewExamSessionService(service.ExamSessionDeps{
		Templates:   templates,
		Questions:   questionRepo,
		Exams:       examRepo,
		Ledger:      ledgerSvc,
		Entitlement: entitlementSvc,
		Scheduler:   schedulerSvc,
		Evaluations: evaluationRepo,
		Notifier:    notifier,
		Lease:       leaser,
		Tx:          tx,
	}, service.ExamSessionConfig{
		SubmissionGrace:    cfg.Exam.SubmissionGrace,
		AutoSubmitInterval: cfg.Exam.AutoSubmitInterval,
		AutoSubmitBatch:    cfg.Exam.AutoSubmitBatch,
		LeaseTTL:           cfg.Exam.AutoSubmitInterval,
	}, validate, metricsSvc, logr)
	reportSvc := service.NewSLAReportService(evaluationRepo, export.NewCSVExporter(), export.NewPDFExporter(), calendar.Location(), validate, logr)

	schedulerSvc.Start(ctx)
	sessionSvc.StartAutoSubmit(ctx)

	examHandler := handler.NewExamHandler(sessionSvc, ledgerSvc)
	evaluationHandler := handler.NewEvaluationHandler(schedulerSvc, reportSvc)
	subscriptionHandler := handler.NewSubscriptionHandler(entitlementSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Instrument(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(service.NewTokenVerifier(cfg.JWT)))

	students := middleware.RBAC(models.RoleStudent)
	staff := middleware.RBAC(models.RoleTeacher, models.RoleAdmin)
	admins := middleware.RBAC(models.RoleAdmin)
	everyone := middleware.RBAC(models.RoleStudent, models.RoleTeacher, models.RoleAdmin)

	exams := api.Group("/exams")
	exams.POST("", students, examHandler.Start)
	exams.GET("/:id", everyone, examHandler.Snapshot)
	exams.GET("/:id/status", everyone, examHandler.Status)
	exams.PUT("/:id/answers/:number", students, examHandler.RecordAnswer)
	exams.POST("/:id/submit", students, examHandler.Submit)
	exams.POST("/:id/rescore", admins, examHandler.Rescore)

	evaluations := api.Group("/evaluations")
	evaluations.GET("/breaches", admins, evaluationHandler.Breaches)
	evaluations.GET("/sla-report", admins, evaluationHandler.SLAReport)
	evaluations.GET("/:id", staff, evaluationHandler.Get)
	evaluations.POST("/:id/assign", admins, evaluationHandler.Assign)
	evaluations.PUT("/:id/marks", middleware.RBAC(models.RoleTeacher), evaluationHandler.SubmitMarks)
	evaluations.POST("/:id/complete", middleware.RBAC(models.RoleTeacher), evaluationHandler.Complete)

	api.POST("/subscriptions", admins, subscriptionHandler.Create)
	api.GET("/entitlements/me", students, subscriptionHandler.Entitlement)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown failed", zap.Error(err))
	}
}
