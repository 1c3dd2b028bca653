package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/oncotrack-ai/platform/pkg/logging"
)

// ErrNoValidReports indicates a dataset yielded zero usable rows.
var ErrNoValidReports = errors.New("report: no valid reports found in dataset")

// Loader reads and validates report datasets. Rows with missing required
// fields are dropped with a warning; rows that fail validation outright
// (bad dates, empty text after trimming) abort the load.
type Loader struct {
	columns ColumnMapping
	logger  *logging.Logger
}

func NewLoader(columns ColumnMapping, logger *logging.Logger) *Loader {
	if columns.PatientID == "" || columns.Date == "" || columns.Report == "" {
		columns = DefaultColumns()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Loader{columns: columns, logger: logger}
}

// LoadCSV reads medical reports from a CSV file.
func (l *Loader) LoadCSV(path string) ([]MedicalReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	defer f.Close()
	return l.ReadCSV(f)
}

// ReadCSV reads medical reports from CSV content.
func (l *Loader) ReadCSV(r io.Reader) ([]MedicalReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("report: read csv header: %w", err)
	}

	idx, err := l.columnIndexes(header)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report: read csv row: %w", err)
		}
		rows = append(rows, record)
	}

	return l.buildReports(rows, idx)
}

// LoadExcel reads medical reports from an XLSX file. An empty sheet name
// selects the first sheet.
func (l *Loader) LoadExcel(path, sheet string) ([]MedicalReport, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("report: %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("report: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoValidReports
	}

	idx, err := l.columnIndexes(rows[0])
	if err != nil {
		return nil, err
	}
	return l.buildReports(rows[1:], idx)
}

type columnIndexes struct {
	patientID int
	date      int
	report    int
}

func (l *Loader) columnIndexes(header []string) (columnIndexes, error) {
	idx := columnIndexes{patientID: -1, date: -1, report: -1}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case l.columns.PatientID:
			idx.patientID = i
		case l.columns.Date:
			idx.date = i
		case l.columns.Report:
			idx.report = i
		}
	}

	var missing []string
	if idx.patientID < 0 {
		missing = append(missing, l.columns.PatientID)
	}
	if idx.date < 0 {
		missing = append(missing, l.columns.Date)
	}
	if idx.report < 0 {
		missing = append(missing, l.columns.Report)
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("report: missing required columns %v, available: %v", missing, header)
	}
	return idx, nil
}

func (l *Loader) buildReports(rows [][]string, idx columnIndexes) ([]MedicalReport, error) {
	var reports []MedicalReport
	dropped := 0

	for i, row := range rows {
		patientID := cell(row, idx.patientID)
		dateStr := cell(row, idx.date)
		text := cell(row, idx.report)

		if strings.TrimSpace(patientID) == "" || strings.TrimSpace(dateStr) == "" || strings.TrimSpace(text) == "" {
			dropped++
			continue
		}

		date, err := ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("report: row %d: %w", i+2, err)
		}

		r := MedicalReport{PatientID: patientID, Date: date, ReportText: text}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("report: row %d: %w", i+2, err)
		}
		reports = append(reports, r)
	}

	if dropped > 0 {
		l.logger.Warn("dropped rows with missing required data", "count", dropped)
	}
	if len(reports) == 0 {
		return nil, ErrNoValidReports
	}

	// Stable sort by patient then date, matching downstream expectations.
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].PatientID != reports[j].PatientID {
			return reports[i].PatientID < reports[j].PatientID
		}
		return reports[i].Date.Before(reports[j].Date)
	})

	return reports, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
