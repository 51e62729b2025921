package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
)

const responseColumns = `id, assessment_id, revision_id, text, version, created_by, updated_at`

// ResponseRepository persists append-only response versions.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository constructs the repository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// LatestVersion returns the greatest version for (assessment, revision), or 0 when none exists.
func (r *ResponseRepository) LatestVersion(ctx context.Context, exec sqlx.ExtContext, assessmentID, revisionID string) (int, error) {
	var version int
	const query = `SELECT COALESCE(MAX(version), 0) FROM responses WHERE assessment_id = $1 AND revision_id = $2`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &version, query, assessmentID, revisionID); err != nil {
		return 0, fmt.Errorf("latest response version: %w", err)
	}
	return version, nil
}

// Insert appends a response row carrying resp.Version. A concurrent writer that
// claimed the same version surfaces as database.ErrDuplicate.
func (r *ResponseRepository) Insert(ctx context.Context, exec sqlx.ExtContext, resp *models.Response) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.Version <= 0 {
		return fmt.Errorf("insert response: version must be positive")
	}
	resp.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO responses (` + responseColumns + `)
VALUES (:id, :assessment_id, :revision_id, :text, :version, :created_by, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, resp); err != nil {
		return fmt.Errorf("insert response: %w", database.Classify(err))
	}
	return nil
}

// FindByID returns one response row.
func (r *ResponseRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Response, error) {
	var resp models.Response
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &resp, `SELECT `+responseColumns+` FROM responses WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("find response: %w", err)
	}
	return &resp, nil
}

// FindLatest returns the latest response for (assessment, revision).
func (r *ResponseRepository) FindLatest(ctx context.Context, exec sqlx.ExtContext, assessmentID, revisionID string) (*models.Response, error) {
	const query = `SELECT ` + responseColumns + ` FROM responses
WHERE assessment_id = $1 AND revision_id = $2 ORDER BY version DESC LIMIT 1`
	var resp models.Response
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &resp, query, assessmentID, revisionID); err != nil {
		return nil, fmt.Errorf("find latest response: %w", err)
	}
	return &resp, nil
}

// ListLatest returns the latest response per revision for an assessment.
func (r *ResponseRepository) ListLatest(ctx context.Context, exec sqlx.ExtContext, assessmentID string) ([]models.Response, error) {
	const query = `SELECT DISTINCT ON (revision_id) ` + responseColumns + ` FROM responses
WHERE assessment_id = $1 ORDER BY revision_id, version DESC`
	var items []models.Response
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &items, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list latest responses: %w", err)
	}
	return items, nil
}

// ListHistory returns every version for (assessment, revision) in ascending order.
func (r *ResponseRepository) ListHistory(ctx context.Context, assessmentID, revisionID string) ([]models.Response, error) {
	const query = `SELECT ` + responseColumns + ` FROM responses
WHERE assessment_id = $1 AND revision_id = $2 ORDER BY version ASC`
	var items []models.Response
	if err := r.db.SelectContext(ctx, &items, query, assessmentID, revisionID); err != nil {
		return nil, fmt.Errorf("list response history: %w", err)
	}
	return items, nil
}

// Delete removes one response row; its file links cascade.
func (r *ResponseRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM responses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	return expectOne(res, "delete response")
}
