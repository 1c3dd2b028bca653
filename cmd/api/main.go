package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oncotrack-ai/platform/cmd/mainconfig"
	"github.com/oncotrack-ai/platform/internal/api/handlers"
	"github.com/oncotrack-ai/platform/internal/api/router"
	appbootstrap "github.com/oncotrack-ai/platform/internal/app/bootstrap"
	"github.com/oncotrack-ai/platform/internal/compliance"
	appconfig "github.com/oncotrack-ai/platform/internal/config"
	"github.com/oncotrack-ai/platform/internal/notify"
	"github.com/oncotrack-ai/platform/internal/observability/metrics"
	"github.com/oncotrack-ai/platform/internal/results"
	"github.com/oncotrack-ai/platform/internal/tracking"
	trackingworker "github.com/oncotrack-ai/platform/internal/worker/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting oncotrack API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		dbPool = pool
		defer dbPool.Close()
	} else {
		logger.Warn("run persistence disabled (DATABASE_URL not set)")
	}
	var sqlDB *sql.DB
	if dbPool != nil {
		sqlDB = stdlib.OpenDBFromPool(dbPool)
		defer sqlDB.Close()
	}
	var auditSvc *compliance.AuditService
	if sqlDB != nil {
		auditSvc = compliance.NewAuditService(sqlDB)
	}

	var memoryQueue *tracking.MemoryQueue
	var publisher *tracking.Publisher
	if cfg.UseMemoryQueue {
		memoryQueue = tracking.NewMemoryQueue(0)
		publisher = tracking.NewPublisher(memoryQueue, logger)
		logger.Warn("using in-memory queue; runs are lost on restart")
	} else {
		sqsQueue := tracking.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TrackingQueueURL)
		publisher = tracking.NewPublisher(sqsQueue, logger)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	jobStore := tracking.NewJobStore(dynamoClient, cfg.TrackingJobsTable, logger)

	hub := tracking.NewProgressHub()

	trackingHandler := tracking.NewHandler(publisher, jobStore, logger)
	var historyHandler *handlers.HistoryHandler
	if dbPool != nil {
		historyHandler = handlers.NewHistoryHandler(results.NewRepository(dbPool), auditSvc, logger)
	}
	progressHandler := handlers.NewProgressHandler(hub, logger)
	var auditHandler *handlers.AuditHandler
	if auditSvc != nil {
		auditHandler = handlers.NewAuditHandler(auditSvc, logger)
	}

	routerCfg := &router.Config{
		Logger:             logger,
		TrackingHandler:    trackingHandler,
		HistoryHandler:     historyHandler,
		ProgressHandler:    progressHandler,
		AuditHandler:       auditHandler,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: splitList(cfg.CORSAllowedOrigins),
		SubmitRateLimit:    cfg.SubmitRateLimit,
		SubmitBurst:        cfg.SubmitBurst,
	}
	r := router.New(routerCfg)

	// With the in-memory queue the consumer runs inside the API process.
	var inlineWorker *tracking.Worker
	if cfg.UseMemoryQueue {
		extractionMetrics := metrics.NewExtractionMetrics(prometheus.DefaultRegisterer)
		trackingMetrics := metrics.NewTrackingMetrics(prometheus.DefaultRegisterer)

		redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
		extractor, err := appbootstrap.BuildExtractionGateway(ctx, cfg, awsCfg, redisClient, extractionMetrics, logger)
		if err != nil {
			logger.Error("failed to configure extraction gateway", "error", err)
			os.Exit(1)
		}
		tracker := tracking.NewTracker(extractor, trackingMetrics, logger).
			WithWorkers(cfg.WorkerCount).
			WithProgress(hub)

		opts := []trackingworker.ProcessorOption{
			trackingworker.WithAudit(auditSvc),
			trackingworker.WithRecipients(splitList(cfg.NotifyEmails)),
		}
		if dbPool != nil {
			opts = append(opts, trackingworker.WithStore(results.NewRepository(dbPool)))
		}
		if cfg.ResultsBucket != "" {
			opts = append(opts, trackingworker.WithArchiver(results.NewArchiver(s3.NewFromConfig(awsCfg), cfg.ResultsBucket, logger)))
		}
		emailSender := appbootstrap.BuildEmailSender(cfg, awsCfg, logger)
		opts = append(opts, trackingworker.WithNotifier(notify.NewService(emailSender, logger)))

		processor := trackingworker.NewProcessor(tracker, logger, opts...)
		inlineWorker = tracking.NewWorker(memoryQueue, processor, jobStore, logger, tracking.WithWorkerCount(cfg.WorkerCount))
		inlineWorker.Start(ctx)
		logger.Info("inline tracking workers started", "count", cfg.WorkerCount)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if inlineWorker != nil {
		waitCh := make(chan struct{})
		go func() {
			inlineWorker.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-shutdownCtx.Done():
			logger.Error("inline workers shutdown timed out")
		}
	}

	logger.Info("server stopped")
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}
