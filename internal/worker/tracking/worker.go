package trackingworker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/oncotrack-ai/platform/cmd/mainconfig"
	appbootstrap "github.com/oncotrack-ai/platform/internal/app/bootstrap"
	"github.com/oncotrack-ai/platform/internal/compliance"
	appconfig "github.com/oncotrack-ai/platform/internal/config"
	"github.com/oncotrack-ai/platform/internal/notify"
	"github.com/oncotrack-ai/platform/internal/results"
	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// Run starts the async tracking worker and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("tracking worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("tracking worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
	}
	if cfg.TrackingQueueURL == "" {
		return fmt.Errorf("tracking worker requires TRACKING_QUEUE_URL")
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("worker failed to connect to postgres: %w", err)
		}
		dbPool = pool
		defer dbPool.Close()
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

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsConfig)
	queue := tracking.NewSQSQueue(sqsClient, cfg.TrackingQueueURL)
	dynamoClient := dynamodb.NewFromConfig(awsConfig)
	jobStore := tracking.NewJobStore(dynamoClient, cfg.TrackingJobsTable, logger)

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	extractor, err := appbootstrap.BuildExtractionGateway(ctx, cfg, awsConfig, redisClient, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to configure extraction gateway: %w", err)
	}
	tracker := tracking.NewTracker(extractor, nil, logger).WithWorkers(cfg.WorkerCount)

	opts := []ProcessorOption{
		WithAudit(auditSvc),
		WithRecipients(splitEmails(cfg.NotifyEmails)),
	}
	if dbPool != nil {
		opts = append(opts, WithStore(results.NewRepository(dbPool)))
	} else {
		logger.Warn("run persistence disabled (DATABASE_URL not set)")
	}
	if cfg.ResultsBucket != "" {
		opts = append(opts, WithArchiver(results.NewArchiver(s3.NewFromConfig(awsConfig), cfg.ResultsBucket, logger)))
	} else {
		logger.Warn("result archival disabled (RESULTS_BUCKET not set)")
	}
	emailSender := appbootstrap.BuildEmailSender(cfg, awsConfig, logger)
	opts = append(opts, WithNotifier(notify.NewService(emailSender, logger)))

	processor := NewProcessor(tracker, logger, opts...)

	worker := tracking.NewWorker(
		queue,
		processor,
		jobStore,
		logger,
		tracking.WithWorkerCount(cfg.WorkerCount),
	)

	worker.Start(ctx)

	<-ctx.Done()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("tracking worker stopped")
	case <-doneCtx.Done():
		logger.Error("tracking worker shutdown timed out", "error", doneCtx.Err())
	}

	return nil
}

func splitEmails(raw string) []string {
	parts := strings.Split(raw, ",")
	emails := make([]string, 0, len(parts))
	for _, part := range parts {
		if addr := strings.TrimSpace(part); addr != "" {
			emails = append(emails, addr)
		}
	}
	return emails
}
