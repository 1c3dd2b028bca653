package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/oncotrack-ai/platform/cmd/mainconfig"
	appbootstrap "github.com/oncotrack-ai/platform/internal/app/bootstrap"
	"github.com/oncotrack-ai/platform/internal/compliance"
	appconfig "github.com/oncotrack-ai/platform/internal/config"
	"github.com/oncotrack-ai/platform/internal/report"
	"github.com/oncotrack-ai/platform/internal/results"
	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var (
		inputPath   = flag.String("input", "", "CSV or XLSX file with patient_id, date and report columns")
		sheet       = flag.String("sheet", "", "sheet name for XLSX input (defaults to the first sheet)")
		jsonPath    = flag.String("out-json", "lesion_tracking_results.json", "JSON output path")
		summaryPath = flag.String("out-summary", "lesion_tracking_summary.txt", "text summary output path")
		workers     = flag.Int("workers", 0, "patients processed concurrently (defaults to WORKER_COUNT)")
		noDisclaim  = flag.Bool("no-disclaimer", false, "omit the provenance disclaimer from the summary")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: track -input reports.csv [-sheet Sheet1] [-out-json out.json] [-out-summary out.txt]")
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.NewText(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	loader := report.NewLoader(report.ColumnMapping{
		PatientID: cfg.PatientIDColumn,
		Date:      cfg.DateColumn,
		Report:    cfg.ReportColumn,
	}, logger)

	var (
		reports []report.MedicalReport
		err     error
	)
	switch strings.ToLower(filepath.Ext(*inputPath)) {
	case ".xlsx", ".xlsm":
		reports, err = loader.LoadExcel(*inputPath, *sheet)
	default:
		reports, err = loader.LoadCSV(*inputPath)
	}
	if err != nil {
		logger.Error("failed to load reports", "error", err)
		os.Exit(1)
	}
	if len(reports) == 0 {
		logger.Error("no usable reports in input", "path", *inputPath)
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	extractor, err := appbootstrap.BuildExtractionGateway(ctx, cfg, awsCfg, redisClient, nil, logger)
	if err != nil {
		logger.Error("failed to configure extraction gateway", "error", err)
		os.Exit(1)
	}

	tracker := tracking.NewTracker(extractor, nil, logger)
	if *workers > 0 {
		tracker = tracker.WithWorkers(*workers)
	} else {
		tracker = tracker.WithWorkers(cfg.WorkerCount)
	}

	order, timelines := report.PatientTimelines(reports)
	runID := uuid.NewString()
	logger.Info("tracking run started", "run_id", runID, "patients", len(order), "reports", len(reports))

	histories, summary := tracker.TrackAllPatients(ctx, runID, order, timelines)

	text := results.ToSummary(histories)
	if !*noDisclaim {
		disclaimer := compliance.NewDisclaimerService(compliance.DefaultDisclaimerConfig())
		text = disclaimer.Apply(text)
	}

	if err := results.SaveJSON(*jsonPath, runID, histories); err != nil {
		logger.Error("failed to write JSON results", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*summaryPath, []byte(text), 0o644); err != nil {
		logger.Error("failed to write summary", "error", err)
		os.Exit(1)
	}

	fmt.Print(text)
	fmt.Printf("\nRun %s: %d/%d patients completed, %d degraded timepoints\n",
		summary.RunID, summary.Completed, summary.Patients, summary.DegradedTimepoints)
	for _, w := range summary.Warnings {
		if w.Date.IsZero() {
			fmt.Printf("  warning: patient %s: %s\n", w.PatientID, w.Reason)
			continue
		}
		fmt.Printf("  warning: patient %s (%s): %s\n", w.PatientID, w.Date.Format(time.DateOnly), w.Reason)
	}

	if summary.Failed > 0 {
		os.Exit(1)
	}
}
