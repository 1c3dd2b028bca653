package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oncotrack-ai/platform/internal/lesion"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// S3Client interface for S3 operations (allows mocking in tests)
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads finished run artifacts to S3: the full JSON report plus a
// JSONL observation log suitable for downstream analysis.
type Archiver struct {
	s3     S3Client
	bucket string
	logger *logging.Logger
}

// NewArchiver creates an S3-backed archiver.
func NewArchiver(client S3Client, bucket string, logger *logging.Logger) *Archiver {
	if client == nil {
		panic("results: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("results: bucket cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{
		s3:     client,
		bucket: bucket,
		logger: logger,
	}
}

// ArchiveResult reports what was uploaded.
type ArchiveResult struct {
	ReportKey       string
	ObservationsKey string
	Observations    int
}

// observationLine is one JSONL record: a single lesion sighting.
type observationLine struct {
	RunID         string    `json:"run_id"`
	PatientID     string    `json:"patient_id"`
	LesionID      string    `json:"lesion_id"`
	Location      string    `json:"location"`
	SizeCM        *float64  `json:"size_cm,omitempty"`
	TimepointDate time.Time `json:"timepoint_date"`
}

// ArchiveRun uploads the report and observation log for one run.
func (a *Archiver) ArchiveRun(ctx context.Context, runID string, histories []*lesion.PatientLesionHistory) (*ArchiveResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("results: runID required")
	}

	report, err := ToJSON(runID, histories)
	if err != nil {
		return nil, err
	}

	reportKey := fmt.Sprintf("runs/%s/report.json", runID)
	if err := a.put(ctx, reportKey, report, "application/json"); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	count := 0
	enc := json.NewEncoder(&buf)
	for _, history := range histories {
		for _, tp := range history.Timepoints {
			for _, assignment := range tp.Assignments {
				line := observationLine{
					RunID:         runID,
					PatientID:     history.PatientID,
					LesionID:      assignment.LesionID,
					Location:      assignment.Observation.Location,
					SizeCM:        assignment.Observation.SizeCM,
					TimepointDate: assignment.Observation.TimepointDate,
				}
				if err := enc.Encode(line); err != nil {
					return nil, fmt.Errorf("results: encode observation: %w", err)
				}
				count++
			}
		}
	}

	observationsKey := fmt.Sprintf("runs/%s/observations.jsonl", runID)
	if err := a.put(ctx, observationsKey, buf.Bytes(), "application/x-ndjson"); err != nil {
		return nil, err
	}

	a.logger.Info("run archived",
		"run_id", runID,
		"patients", len(histories),
		"observations", count,
		"bucket", a.bucket,
	)

	return &ArchiveResult{
		ReportKey:       reportKey,
		ObservationsKey: observationsKey,
		Observations:    count,
	}, nil
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("results: upload %s failed: %w", key, err)
	}
	return nil
}
