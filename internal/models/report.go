package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType enumerates supported submission report kinds.
type ReportType string

const (
	ReportTypeSummary  ReportType = "summary"
	ReportTypeDetailed ReportType = "detailed"
)

// Valid reports whether t is known.
func (t ReportType) Valid() bool {
	return t == ReportTypeSummary || t == ReportTypeDetailed
}

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid reports whether f is known.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportStatus captures the generation lifecycle.
type ReportStatus string

const (
	ReportStatusGenerating ReportStatus = "generating"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// ReportData is the JSONB payload of a completed report.
type ReportData struct {
	StorageKey      string            `json:"storage_key,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	Size            int64             `json:"size,omitempty"`
	ResponseCount   int               `json:"response_count"`
	Categories      map[string]int    `json:"categories,omitempty"`
	Recommendations map[string]string `json:"recommendations,omitempty"`
}

// Value marshals report data for persistence.
func (d ReportData) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal report data: %w", err)
	}
	return data, nil
}

// Scan unmarshals report data.
func (d *ReportData) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportData", value)
	}
	out := ReportData{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("unmarshal report data: %w", err)
		}
	}
	*d = out
	return nil
}

// SubmissionReport tracks one report derived from a final submission.
type SubmissionReport struct {
	ID           string       `db:"id" json:"id"`
	SubmissionID string       `db:"submission_id" json:"submissionId"`
	ReportType   ReportType   `db:"report_type" json:"reportType"`
	Format       ReportFormat `db:"format" json:"format"`
	Status       ReportStatus `db:"status" json:"status"`
	GeneratedAt  time.Time    `db:"generated_at" json:"generatedAt"`
	Data         *ReportData  `db:"data" json:"data,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"errorMessage,omitempty"`
	RequestedBy  string       `db:"requested_by" json:"requestedBy"`
}
