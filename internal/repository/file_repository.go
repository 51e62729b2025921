package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
)

// FileRepository persists evidence file rows and their response links.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository constructs the repository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a file row.
func (r *FileRepository) Create(ctx context.Context, f *models.File) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	const query = `INSERT INTO files (id, org_id, storage_path, metadata) VALUES (:id, :org_id, :storage_path, :metadata)`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// FindByID returns a file row.
func (r *FileRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.File, error) {
	var f models.File
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &f, `SELECT id, org_id, storage_path, metadata FROM files WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("find file: %w", err)
	}
	return &f, nil
}

// LockByID loads a file and locks it so concurrent attaches wait for a delete decision.
func (r *FileRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.File, error) {
	var f models.File
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &f, `SELECT id, org_id, storage_path, metadata FROM files WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, fmt.Errorf("lock file: %w", err)
	}
	return &f, nil
}

// ReferencingResponses enumerates the responses linked to a file.
func (r *FileRepository) ReferencingResponses(ctx context.Context, exec sqlx.ExtContext, fileID string) ([]string, error) {
	var ids []string
	const query = `SELECT response_id FROM response_files WHERE file_id = $1 ORDER BY response_id`
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &ids, query, fileID); err != nil {
		return nil, fmt.Errorf("list file references: %w", err)
	}
	return ids, nil
}

// Delete removes a file row. Outstanding links surface as database.ErrReferenced.
func (r *FileRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", database.Classify(err))
	}
	return expectOne(res, "delete file")
}

// Link attaches a file to a response. Duplicates surface as database.ErrDuplicate.
func (r *FileRepository) Link(ctx context.Context, exec sqlx.ExtContext, link *models.ResponseFile) error {
	const query = `INSERT INTO response_files (response_id, file_id, created_at) VALUES (:response_id, :file_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, link); err != nil {
		return fmt.Errorf("link file: %w", database.Classify(err))
	}
	return nil
}

// Unlink removes a link; a missing link yields sql.ErrNoRows.
func (r *FileRepository) Unlink(ctx context.Context, exec sqlx.ExtContext, responseID, fileID string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM response_files WHERE response_id = $1 AND file_id = $2`, responseID, fileID)
	if err != nil {
		return fmt.Errorf("unlink file: %w", err)
	}
	return expectOne(res, "unlink file")
}

// ListForResponses returns files linked to any of the given responses.
func (r *FileRepository) ListForResponses(ctx context.Context, exec sqlx.ExtContext, responseIDs []string) ([]models.LinkedFile, error) {
	if len(responseIDs) == 0 {
		return []models.LinkedFile{}, nil
	}
	query, args, err := sqlx.In(`SELECT f.id, f.org_id, f.storage_path, f.metadata, rf.response_id
FROM response_files rf JOIN files f ON f.id = rf.file_id
WHERE rf.response_id IN (?) ORDER BY rf.created_at ASC, f.id ASC`, responseIDs)
	if err != nil {
		return nil, fmt.Errorf("build linked file lookup: %w", err)
	}
	var items []models.LinkedFile
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list linked files: %w", err)
	}
	return items, nil
}
