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

// Status is derived from the presence of a final submission.
const assessmentSelect = `SELECT a.id, a.org_id, a.language, a.name, a.created_by, a.created_at, a.updated_at,
CASE WHEN s.submission_id IS NULL THEN 'draft' ELSE 'submitted' END AS status
FROM assessments a LEFT JOIN assessment_submissions s ON s.submission_id = a.id`

// AssessmentRepository persists assessments.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Create inserts a draft assessment.
func (r *AssessmentRepository) Create(ctx context.Context, a *models.Assessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Status = models.AssessmentStatusDraft
	const query = `INSERT INTO assessments (id, org_id, language, name, created_by, created_at, updated_at)
VALUES (:id, :org_id, :language, :name, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

// FindByID returns an assessment with its derived status.
func (r *AssessmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assessment, error) {
	var a models.Assessment
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &a, assessmentSelect+` WHERE a.id = $1`, id); err != nil {
		return nil, fmt.Errorf("find assessment: %w", err)
	}
	return &a, nil
}

// LockByID locks an assessment row for the rest of the transaction and then
// reads it. The read is a separate statement so that, under READ COMMITTED, it
// sees a final submission committed by whoever held the lock before us.
func (r *AssessmentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assessment, error) {
	q := pick(r.db, exec)
	var locked string
	if err := sqlx.GetContext(ctx, q, &locked, `SELECT id FROM assessments WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, fmt.Errorf("lock assessment: %w", err)
	}
	var a models.Assessment
	if err := sqlx.GetContext(ctx, q, &a, assessmentSelect+` WHERE a.id = $1`, id); err != nil {
		return nil, fmt.Errorf("lock assessment: %w", err)
	}
	return &a, nil
}

// List returns assessments for an organization, optionally by status.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	limit, offset := normalizeLimit(filter.Limit, filter.Offset)
	conditions := []string{"a.org_id = $1"}
	args := []interface{}{filter.OrgID}
	switch filter.Status {
	case models.AssessmentStatusDraft:
		conditions = append(conditions, "s.submission_id IS NULL")
	case models.AssessmentStatusSubmitted:
		conditions = append(conditions, "s.submission_id IS NOT NULL")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM assessments a LEFT JOIN assessment_submissions s ON s.submission_id = a.id` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}

	query := assessmentSelect + where + ` ORDER BY a.created_at DESC, a.id DESC LIMIT $2 OFFSET $3`
	args = append(args, limit, offset)
	var items []models.Assessment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	return items, total, nil
}

// Update applies the provided field changes.
func (r *AssessmentRepository) Update(ctx context.Context, exec sqlx.ExtContext, id string, update models.AssessmentUpdate) error {
	set := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	argPos := 1

	if update.Name != nil {
		set = append(set, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *update.Name)
		argPos++
	}
	if update.Language != nil {
		set = append(set, fmt.Sprintf("language = $%d", argPos))
		args = append(args, *update.Language)
		argPos++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	query := fmt.Sprintf("UPDATE assessments SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)
	res, err := pick(r.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	return expectOne(res, "update assessment")
}

// Touch bumps updated_at after a change to the assessment's responses.
func (r *AssessmentRepository) Touch(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := pick(r.db, exec).ExecContext(ctx, `UPDATE assessments SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch assessment: %w", err)
	}
	return nil
}

// Delete removes an assessment; responses, links and the draft submission cascade.
func (r *AssessmentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	return expectOne(res, "delete assessment")
}
