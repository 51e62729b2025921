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

const categoryColumns = `id, name, description, template_id, is_active, created_at, updated_at`

// CategoryRepository persists the category catalog and organization allocations.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs the repository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// List returns catalog entries ordered by name.
func (r *CategoryRepository) List(ctx context.Context, activeOnly bool) ([]models.CategoryCatalog, error) {
	query := `SELECT ` + categoryColumns + ` FROM category_catalog`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name ASC`
	var items []models.CategoryCatalog
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

// FindByID returns a catalog entry.
func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*models.CategoryCatalog, error) {
	var item models.CategoryCatalog
	query := `SELECT ` + categoryColumns + ` FROM category_catalog WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return &item, nil
}

// Create inserts a catalog entry.
func (r *CategoryRepository) Create(ctx context.Context, item *models.CategoryCatalog) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO category_catalog (id, name, description, template_id, is_active, created_at, updated_at)
VALUES (:id, :name, :description, :template_id, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create category: %w", database.Classify(err))
	}
	return nil
}

// Update persists the mutable catalog fields.
func (r *CategoryRepository) Update(ctx context.Context, item *models.CategoryCatalog) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE category_catalog SET name = :name, description = :description, template_id = :template_id,
is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update category: %w", database.Classify(err))
	}
	return expectOne(res, "update category")
}

// Delete removes a catalog entry. Entries still referenced by questions or organizations fail with database.ErrReferenced.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM category_catalog WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", database.Classify(err))
	}
	return expectOne(res, "delete category")
}

// ListByIDs returns the catalog entries with the given ids.
func (r *CategoryRepository) ListByIDs(ctx context.Context, ids []string) ([]models.CategoryCatalog, error) {
	if len(ids) == 0 {
		return []models.CategoryCatalog{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+categoryColumns+` FROM category_catalog WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build category lookup: %w", err)
	}
	var items []models.CategoryCatalog
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list categories by id: %w", err)
	}
	return items, nil
}

// ListOrganization returns an organization's allocated categories in display order.
func (r *CategoryRepository) ListOrganization(ctx context.Context, orgID string) ([]models.OrganizationCategory, error) {
	const query = `SELECT oc.id, oc.org_id, oc.catalog_id, oc.weight, oc.sort_order, oc.created_at, oc.updated_at, c.name AS category_name
FROM organization_categories oc JOIN category_catalog c ON c.id = oc.catalog_id
WHERE oc.org_id = $1 ORDER BY oc.sort_order ASC, c.name ASC`
	var items []models.OrganizationCategory
	if err := r.db.SelectContext(ctx, &items, query, orgID); err != nil {
		return nil, fmt.Errorf("list organization categories: %w", err)
	}
	return items, nil
}

// ReplaceOrganization swaps an organization's allocation set for items.
func (r *CategoryRepository) ReplaceOrganization(ctx context.Context, exec sqlx.ExtContext, orgID string, items []models.OrganizationCategory) error {
	target := pick(r.db, exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM organization_categories WHERE org_id = $1`, orgID); err != nil {
		return fmt.Errorf("clear organization categories: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	now := time.Now().UTC()
	values := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)*7)
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.OrgID = orgID
		item.CreatedAt = now
		item.UpdatedAt = now
		base := i * 7
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, item.ID, item.OrgID, item.CatalogID, item.Weight, item.SortOrder, item.CreatedAt, item.UpdatedAt)
	}
	query := `INSERT INTO organization_categories (id, org_id, catalog_id, weight, sort_order, created_at, updated_at) VALUES ` +
		strings.Join(values, ", ")
	if _, err := target.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert organization categories: %w", database.Classify(err))
	}
	return nil
}
