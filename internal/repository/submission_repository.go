package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
)

const (
	tempSubmissionColumns  = `assessment_id, org_id, content, submitted_at, status, reviewed_at`
	finalSubmissionColumns = `submission_id, org_id, content, submitted_at, status, reviewed_at`
)

// SubmissionRepository persists draft (temp) and final submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindTemp returns the draft submission of an assessment.
func (r *SubmissionRepository) FindTemp(ctx context.Context, exec sqlx.ExtContext, assessmentID string) (*models.TempSubmission, error) {
	var sub models.TempSubmission
	query := `SELECT ` + tempSubmissionColumns + ` FROM temp_submissions WHERE assessment_id = $1`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &sub, query, assessmentID); err != nil {
		return nil, fmt.Errorf("find temp submission: %w", err)
	}
	return &sub, nil
}

// LockTemp loads the draft submission with a row lock held until the transaction ends.
func (r *SubmissionRepository) LockTemp(ctx context.Context, exec sqlx.ExtContext, assessmentID string) (*models.TempSubmission, error) {
	var sub models.TempSubmission
	query := `SELECT ` + tempSubmissionColumns + ` FROM temp_submissions WHERE assessment_id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &sub, query, assessmentID); err != nil {
		return nil, fmt.Errorf("lock temp submission: %w", err)
	}
	return &sub, nil
}

// InsertTemp creates a draft submission.
func (r *SubmissionRepository) InsertTemp(ctx context.Context, exec sqlx.ExtContext, sub *models.TempSubmission) error {
	const query = `INSERT INTO temp_submissions (` + tempSubmissionColumns + `)
VALUES (:assessment_id, :org_id, :content, :submitted_at, :status, :reviewed_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, sub); err != nil {
		return fmt.Errorf("insert temp submission: %w", database.Classify(err))
	}
	return nil
}

// UpdateTempContent replaces the merged content and submission time.
func (r *SubmissionRepository) UpdateTempContent(ctx context.Context, exec sqlx.ExtContext, assessmentID string, content models.SubmissionContent, submittedAt time.Time) error {
	res, err := pick(r.db, exec).ExecContext(ctx,
		`UPDATE temp_submissions SET content = $1, submitted_at = $2 WHERE assessment_id = $3`,
		content, submittedAt, assessmentID)
	if err != nil {
		return fmt.Errorf("update temp submission: %w", err)
	}
	return expectOne(res, "update temp submission")
}

// UpdateTempReview sets review status and timestamp of a draft submission.
func (r *SubmissionRepository) UpdateTempReview(ctx context.Context, exec sqlx.ExtContext, assessmentID string, status models.ReviewStatus, reviewedAt *time.Time) error {
	res, err := pick(r.db, exec).ExecContext(ctx,
		`UPDATE temp_submissions SET status = $1, reviewed_at = $2 WHERE assessment_id = $3`,
		status, reviewedAt, assessmentID)
	if err != nil {
		return fmt.Errorf("review temp submission: %w", err)
	}
	return expectOne(res, "review temp submission")
}

// FinalExists reports whether an assessment already has a final submission.
func (r *SubmissionRepository) FinalExists(ctx context.Context, exec sqlx.ExtContext, assessmentID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM assessment_submissions WHERE submission_id = $1)`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &exists, query, assessmentID); err != nil {
		return false, fmt.Errorf("check final submission: %w", err)
	}
	return exists, nil
}

// InsertFinal creates the final submission. The primary key admits one per assessment;
// a second insert surfaces as database.ErrDuplicate.
func (r *SubmissionRepository) InsertFinal(ctx context.Context, exec sqlx.ExtContext, sub *models.AssessmentSubmission) error {
	const query = `INSERT INTO assessment_submissions (` + finalSubmissionColumns + `)
VALUES (:submission_id, :org_id, :content, :submitted_at, :status, :reviewed_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, sub); err != nil {
		return fmt.Errorf("insert final submission: %w", database.Classify(err))
	}
	return nil
}

// FindFinal returns a final submission.
func (r *SubmissionRepository) FindFinal(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AssessmentSubmission, error) {
	var sub models.AssessmentSubmission
	query := `SELECT ` + finalSubmissionColumns + ` FROM assessment_submissions WHERE submission_id = $1`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &sub, query, id); err != nil {
		return nil, fmt.Errorf("find final submission: %w", err)
	}
	return &sub, nil
}

// ListFinal returns final submissions visible under filter.
func (r *SubmissionRepository) ListFinal(ctx context.Context, filter models.SubmissionFilter) ([]models.AssessmentSubmission, int, error) {
	limit, offset := normalizeLimit(filter.Limit, filter.Offset)
	conditions := []string{}
	args := []interface{}{}
	if filter.OrgIDs != nil {
		if len(filter.OrgIDs) == 0 {
			return []models.AssessmentSubmission{}, 0, nil
		}
		placeholders := make([]string, 0, len(filter.OrgIDs))
		for _, id := range filter.OrgIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, "org_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM assessment_submissions`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count final submissions: %w", err)
	}
	query := `SELECT ` + finalSubmissionColumns + ` FROM assessment_submissions` + where +
		fmt.Sprintf(` ORDER BY submitted_at DESC, submission_id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	var items []models.AssessmentSubmission
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list final submissions: %w", err)
	}
	return items, total, nil
}

// UpdateFinalReview sets review status and timestamp of a final submission.
func (r *SubmissionRepository) UpdateFinalReview(ctx context.Context, exec sqlx.ExtContext, id string, status models.ReviewStatus, reviewedAt *time.Time) error {
	res, err := pick(r.db, exec).ExecContext(ctx,
		`UPDATE assessment_submissions SET status = $1, reviewed_at = $2 WHERE submission_id = $3`,
		status, reviewedAt, id)
	if err != nil {
		return fmt.Errorf("review final submission: %w", err)
	}
	return expectOne(res, "review final submission")
}

// DeleteFinal removes a final submission; its reports cascade.
func (r *SubmissionRepository) DeleteFinal(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM assessment_submissions WHERE submission_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete final submission: %w", err)
	}
	return expectOne(res, "delete final submission")
}
