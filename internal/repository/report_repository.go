package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
)

const reportColumns = `id, submission_id, report_type, format, status, generated_at, data, error_message, requested_by`

// ReportRepository persists submission report metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report row in the generating state.
func (r *ReportRepository) Create(ctx context.Context, report *models.SubmissionReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ReportStatusGenerating
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submission_reports (` + reportColumns + `)
VALUES (:id, :submission_id, :report_type, :format, :status, :generated_at, :data, :error_message, :requested_by)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create submission report: %w", err)
	}
	return nil
}

// GetByID returns a report row by its identifier.
func (r *ReportRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SubmissionReport, error) {
	var report models.SubmissionReport
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &report, `SELECT `+reportColumns+` FROM submission_reports WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("get submission report: %w", err)
	}
	return &report, nil
}

// ListBySubmission returns the reports of a submission, newest first.
func (r *ReportRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.SubmissionReport, error) {
	const query = `SELECT ` + reportColumns + ` FROM submission_reports WHERE submission_id = $1 ORDER BY generated_at DESC, id DESC`
	var reports []models.SubmissionReport
	if err := r.db.SelectContext(ctx, &reports, query, submissionID); err != nil {
		return nil, fmt.Errorf("list submission reports: %w", err)
	}
	return reports, nil
}

// UpdateReportParams defines the mutable fields.
type UpdateReportParams struct {
	Status       *models.ReportStatus
	Data         *models.ReportData
	ErrorMessage *string
	GeneratedAt  *time.Time
	// FromStatus restricts the update to rows currently in that state.
	FromStatus *models.ReportStatus
}

// Update persists the provided changes. It returns sql.ErrNoRows when no row
// matched, including when FromStatus did not hold.
func (r *ReportRepository) Update(ctx context.Context, exec sqlx.ExtContext, id string, params UpdateReportParams) error {
	set := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Data != nil {
		set = append(set, fmt.Sprintf("data = $%d", argPos))
		args = append(args, *params.Data)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.GeneratedAt != nil {
		set = append(set, fmt.Sprintf("generated_at = $%d", argPos))
		args = append(args, *params.GeneratedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE submission_reports SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)
	argPos++
	if params.FromStatus != nil {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *params.FromStatus)
	}

	res, err := pick(r.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update submission report: %w", err)
	}
	return expectOne(res, "update submission report")
}

// SetRecommendation merges one category recommendation into a completed
// report's data in a single statement and returns the stored data. It returns
// sql.ErrNoRows when the report is missing or not completed.
func (r *ReportRepository) SetRecommendation(ctx context.Context, exec sqlx.ExtContext, id, category, text string) (*models.ReportData, error) {
	const query = `UPDATE submission_reports
SET data = jsonb_set(COALESCE(data, '{}'::jsonb), '{recommendations}',
	COALESCE(data->'recommendations', '{}'::jsonb) || jsonb_build_object($2::text, $3::text))
WHERE id = $1 AND status = 'completed'
RETURNING data`
	var data models.ReportData
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &data, query, id, category, text); err != nil {
		return nil, fmt.Errorf("set report recommendation: %w", err)
	}
	return &data, nil
}

// Delete removes a report row.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submission_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission report: %w", err)
	}
	return expectOne(res, "delete submission report")
}

// ListGenerating fetches reports still generating (used for cold start recovery).
func (r *ReportRepository) ListGenerating(ctx context.Context, limit int) ([]models.SubmissionReport, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + reportColumns + ` FROM submission_reports WHERE status = 'generating' ORDER BY generated_at ASC LIMIT $1`
	var reports []models.SubmissionReport
	if err := r.db.SelectContext(ctx, &reports, query, limit); err != nil {
		return nil, fmt.Errorf("list generating reports: %w", err)
	}
	return reports, nil
}
