package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
)

// QuestionRepository persists questions and their immutable revisions.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// CreateQuestion inserts a question identity.
func (r *QuestionRepository) CreateQuestion(ctx context.Context, exec sqlx.ExtContext, q *models.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO questions (id, category_id, created_at) VALUES (:id, :category_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, q); err != nil {
		return fmt.Errorf("insert question: %w", database.Classify(err))
	}
	return nil
}

// UpdateCategory moves a question to another category.
func (r *QuestionRepository) UpdateCategory(ctx context.Context, exec sqlx.ExtContext, questionID, categoryID string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `UPDATE questions SET category_id = $1 WHERE id = $2`, categoryID, questionID)
	if err != nil {
		return fmt.Errorf("update question category: %w", database.Classify(err))
	}
	return expectOne(res, "update question category")
}

// InsertRevision appends an immutable revision. There is no update path for revisions.
func (r *QuestionRepository) InsertRevision(ctx context.Context, exec sqlx.ExtContext, rev *models.QuestionRevision) error {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO question_revisions (id, question_id, text, weight, created_at)
VALUES (:id, :question_id, :text, :weight, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, rev); err != nil {
		return fmt.Errorf("insert question revision: %w", database.Classify(err))
	}
	return nil
}

// FindQuestion returns a question with its category name.
func (r *QuestionRepository) FindQuestion(ctx context.Context, exec sqlx.ExtContext, id string) (*models.QuestionWithRevision, error) {
	const query = `SELECT q.id, q.category_id, q.created_at, c.name AS category_name
FROM questions q JOIN category_catalog c ON c.id = q.category_id WHERE q.id = $1`
	var q models.QuestionWithRevision
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &q, query, id); err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}
	return &q, nil
}

// LatestRevision returns the most recent revision of a question.
func (r *QuestionRepository) LatestRevision(ctx context.Context, exec sqlx.ExtContext, questionID string) (*models.QuestionRevision, error) {
	const query = `SELECT id, question_id, text, weight, created_at FROM question_revisions
WHERE question_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var rev models.QuestionRevision
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &rev, query, questionID); err != nil {
		return nil, fmt.Errorf("find latest revision: %w", err)
	}
	return &rev, nil
}

// FindRevision returns a revision by id.
func (r *QuestionRepository) FindRevision(ctx context.Context, id string) (*models.QuestionRevision, error) {
	const query = `SELECT id, question_id, text, weight, created_at FROM question_revisions WHERE id = $1`
	var rev models.QuestionRevision
	if err := r.db.GetContext(ctx, &rev, query, id); err != nil {
		return nil, fmt.Errorf("find revision: %w", err)
	}
	return &rev, nil
}

// ListRevisions returns every revision of a question, newest first.
func (r *QuestionRepository) ListRevisions(ctx context.Context, questionID string) ([]models.QuestionRevision, error) {
	const query = `SELECT id, question_id, text, weight, created_at FROM question_revisions
WHERE question_id = $1 ORDER BY created_at DESC, id DESC`
	var revs []models.QuestionRevision
	if err := r.db.SelectContext(ctx, &revs, query, questionID); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revs, nil
}

type questionRow struct {
	models.Question
	CategoryName string               `db:"category_name"`
	RevisionID   string               `db:"revision_id"`
	Text         models.LocalizedText `db:"text"`
	Weight       float64              `db:"weight"`
	RevisionAt   time.Time            `db:"revision_created_at"`
}

// List returns questions paired with their latest revision.
func (r *QuestionRepository) List(ctx context.Context, filter models.QuestionFilter) ([]models.QuestionWithRevision, int, error) {
	limit, offset := normalizeLimit(filter.Limit, filter.Offset)
	conditions := []string{}
	args := []interface{}{}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("q.category_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM questions q`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	query := `SELECT q.id, q.category_id, q.created_at, c.name AS category_name,
lr.id AS revision_id, lr.text, lr.weight, lr.created_at AS revision_created_at
FROM questions q
JOIN category_catalog c ON c.id = q.category_id
JOIN LATERAL (
  SELECT id, text, weight, created_at FROM question_revisions
  WHERE question_id = q.id ORDER BY created_at DESC, id DESC LIMIT 1
) lr ON TRUE` + where + fmt.Sprintf(` ORDER BY q.created_at ASC, q.id ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var rows []questionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	out := make([]models.QuestionWithRevision, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.QuestionWithRevision{
			Question:     row.Question,
			CategoryName: row.CategoryName,
			Revision: &models.QuestionRevision{
				ID:         row.RevisionID,
				QuestionID: row.ID,
				Text:       row.Text,
				Weight:     row.Weight,
				CreatedAt:  row.RevisionAt,
			},
		})
	}
	return out, total, nil
}

// RevisionReferenced reports whether any response points at the revision.
func (r *QuestionRepository) RevisionReferenced(ctx context.Context, exec sqlx.ExtContext, revisionID string) (bool, error) {
	var referenced bool
	const query = `SELECT EXISTS (SELECT 1 FROM responses WHERE revision_id = $1)`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &referenced, query, revisionID); err != nil {
		return false, fmt.Errorf("check revision references: %w", err)
	}
	return referenced, nil
}

// DeleteRevision removes a revision. A racing response insert surfaces as database.ErrReferenced.
func (r *QuestionRepository) DeleteRevision(ctx context.Context, exec sqlx.ExtContext, revisionID string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM question_revisions WHERE id = $1`, revisionID)
	if err != nil {
		return fmt.Errorf("delete revision: %w", database.Classify(err))
	}
	return expectOne(res, "delete revision")
}

// LockRevision takes a row lock so concurrent response inserts wait for the delete decision.
func (r *QuestionRepository) LockRevision(ctx context.Context, exec sqlx.ExtContext, revisionID string) (*models.QuestionRevision, error) {
	const query = `SELECT id, question_id, text, weight, created_at FROM question_revisions WHERE id = $1 FOR UPDATE`
	var rev models.QuestionRevision
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &rev, query, revisionID); err != nil {
		return nil, fmt.Errorf("lock revision: %w", err)
	}
	return &rev, nil
}

// RevisionCategories resolves revisions to their question's current category.
func (r *QuestionRepository) RevisionCategories(ctx context.Context, exec sqlx.ExtContext, revisionIDs []string) (map[string]models.RevisionCategory, error) {
	out := make(map[string]models.RevisionCategory, len(revisionIDs))
	if len(revisionIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT qr.id AS revision_id, q.id AS question_id, q.category_id, c.name AS category_name
FROM question_revisions qr
JOIN questions q ON q.id = qr.question_id
JOIN category_catalog c ON c.id = q.category_id
WHERE qr.id IN (?)`, revisionIDs)
	if err != nil {
		return nil, fmt.Errorf("build revision category lookup: %w", err)
	}
	var rows []models.RevisionCategory
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("resolve revision categories: %w", err)
	}
	for _, row := range rows {
		out[row.RevisionID] = row
	}
	return out, nil
}
