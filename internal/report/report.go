package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MedicalReport is a single dated report entry for one patient.
type MedicalReport struct {
	PatientID  string    `json:"patient_id"`
	Date       time.Time `json:"date"`
	ReportText string    `json:"report_text"`
}

// Validate checks the report for empty identifiers or text and trims fields.
func (r *MedicalReport) Validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.ReportText = strings.TrimSpace(r.ReportText)
	if r.PatientID == "" {
		return errors.New("report: patient id cannot be empty")
	}
	if r.ReportText == "" {
		return errors.New("report: report text cannot be empty")
	}
	if r.Date.IsZero() {
		return errors.New("report: date is required")
	}
	return nil
}

// ColumnMapping names the dataset columns holding each field.
type ColumnMapping struct {
	PatientID string
	Date      string
	Report    string
}

// DefaultColumns matches the conventional dataset header.
func DefaultColumns() ColumnMapping {
	return ColumnMapping{PatientID: "patient_id", Date: "date", Report: "report"}
}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate accepts the date formats commonly seen in report exports.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("report: unrecognized date %q", value)
}

// PatientTimelines groups reports by patient, each timeline sorted
// chronologically. Patient order follows first appearance in the input so
// downstream processing stays deterministic.
func PatientTimelines(reports []MedicalReport) ([]string, map[string][]MedicalReport) {
	var order []string
	timelines := make(map[string][]MedicalReport)

	for _, r := range reports {
		if _, seen := timelines[r.PatientID]; !seen {
			order = append(order, r.PatientID)
		}
		timelines[r.PatientID] = append(timelines[r.PatientID], r)
	}

	for _, id := range order {
		tl := timelines[id]
		sort.SliceStable(tl, func(i, j int) bool { return tl[i].Date.Before(tl[j].Date) })
		timelines[id] = tl
	}

	return order, timelines
}
