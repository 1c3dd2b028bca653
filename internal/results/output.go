package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oncotrack-ai/platform/internal/lesion"
)

// Report is the top-level JSON document produced by a tracking run.
type Report struct {
	GeneratedAt   time.Time                     `json:"generated_at"`
	RunID         string                        `json:"run_id,omitempty"`
	TotalPatients int                           `json:"total_patients"`
	Patients      []*lesion.PatientLesionHistory `json:"patients"`
}

// ToJSON renders histories as an indented JSON document.
func ToJSON(runID string, histories []*lesion.PatientLesionHistory) ([]byte, error) {
	report := Report{
		GeneratedAt:   time.Now().UTC(),
		RunID:         runID,
		TotalPatients: len(histories),
		Patients:      histories,
	}
	if report.Patients == nil {
		report.Patients = []*lesion.PatientLesionHistory{}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("results: failed to encode report: %w", err)
	}
	return data, nil
}

// ToSummary renders a human-readable progression summary of the run.
func ToSummary(histories []*lesion.PatientLesionHistory) string {
	rule := strings.Repeat("=", 80)

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("LESION TRACKING SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total Patients: %d\n\n", len(histories))

	for _, history := range histories {
		fmt.Fprintf(&b, "Patient: %s\n", history.PatientID)
		fmt.Fprintf(&b, "  Timepoints: %d\n", len(history.Timepoints))

		if len(history.Timepoints) > 0 {
			first := history.Timepoints[0].Date.Format(time.DateOnly)
			last := history.Timepoints[len(history.Timepoints)-1].Date.Format(time.DateOnly)
			fmt.Fprintf(&b, "  Date Range: %s to %s\n", first, last)
		}

		ids := history.AllLesionIDs()
		fmt.Fprintf(&b, "  Unique Lesions: %d\n", len(ids))

		if len(ids) > 0 {
			fmt.Fprintf(&b, "  Lesion IDs: %s\n", strings.Join(ids, ", "))

			for _, lesionID := range ids {
				timeline := history.LesionTimeline(lesionID)
				if len(timeline) == 0 {
					continue
				}
				fmt.Fprintf(&b, "    %s (%s):\n", lesionID, timeline[0].Location)
				for _, obs := range timeline {
					sizeStr := ""
					if obs.SizeCM != nil {
						sizeStr = fmt.Sprintf("%g cm", *obs.SizeCM)
					}
					fmt.Fprintf(&b, "      - %s: %s\n", obs.TimepointDate.Format(time.DateOnly), sizeStr)
				}
			}
		}

		b.WriteString("\n")
	}

	b.WriteString(rule)
	return b.String()
}

// SaveJSON writes the JSON report to path, creating parent directories.
func SaveJSON(path, runID string, histories []*lesion.PatientLesionHistory) error {
	data, err := ToJSON(runID, histories)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// SaveSummary writes the text summary to path, creating parent directories.
func SaveSummary(path string, histories []*lesion.PatientLesionHistory) error {
	return writeFile(path, []byte(ToSummary(histories)))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("results: failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("results: failed to write %s: %w", path, err)
	}
	return nil
}
