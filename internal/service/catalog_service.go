package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

const (
	weightTotal     = 100.0
	weightTolerance = 0.5
)

type categoryStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.CategoryCatalog, error)
	FindByID(ctx context.Context, id string) (*models.CategoryCatalog, error)
	Create(ctx context.Context, item *models.CategoryCatalog) error
	Update(ctx context.Context, item *models.CategoryCatalog) error
	Delete(ctx context.Context, id string) error
	ListByIDs(ctx context.Context, ids []string) ([]models.CategoryCatalog, error)
	ListOrganization(ctx context.Context, orgID string) ([]models.OrganizationCategory, error)
	ReplaceOrganization(ctx context.Context, exec execer, orgID string, items []models.OrganizationCategory) error
}

// CatalogService manages the category catalog and organization allocations.
type CatalogService struct {
	repo      categoryStore
	tx        database.Transactor
	cache     *CatalogCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs the service.
func NewCatalogService(repo categoryStore, tx database.Transactor, cache *CatalogCache, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, tx: tx, cache: cache, validator: newValidator(validate), logger: logger}
}

// ListCategories returns catalog entries, optionally only active ones.
func (s *CatalogService) ListCategories(ctx context.Context, p *models.Principal, activeOnly bool) ([]models.CategoryCatalog, error) {
	if err := permit(p, authz.CatalogRead, authz.Target{}); err != nil {
		return nil, err
	}
	return readThrough(ctx, s.cache, catalogKey(scopeCategories, strconv.FormatBool(activeOnly)), func() ([]models.CategoryCatalog, error) {
		items, err := s.repo.List(ctx, activeOnly)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list categories")
		}
		if items == nil {
			items = []models.CategoryCatalog{}
		}
		return items, nil
	})
}

// GetCategory returns one catalog entry.
func (s *CatalogService) GetCategory(ctx context.Context, p *models.Principal, id string) (*models.CategoryCatalog, error) {
	if err := permit(p, authz.CatalogRead, authz.Target{}); err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "category not found", "failed to load category")
	}
	return item, nil
}

// CreateCategory adds a catalog entry.
func (s *CatalogService) CreateCategory(ctx context.Context, p *models.Principal, req dto.CreateCategoryRequest) (*models.CategoryCatalog, error) {
	if err := permit(p, authz.CatalogWrite, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	item := &models.CategoryCatalog{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		TemplateID:  req.TemplateID,
		IsActive:    true,
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if isDuplicate(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "category name already exists")
		}
		return nil, appErrors.Internal(err, "failed to create category")
	}
	s.invalidate(ctx)
	return item, nil
}

// UpdateCategory changes catalog entry fields.
func (s *CatalogService) UpdateCategory(ctx context.Context, p *models.Principal, id string, req dto.UpdateCategoryRequest) (*models.CategoryCatalog, error) {
	if err := permit(p, authz.CatalogWrite, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "category not found", "failed to load category")
	}
	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		item.Description = req.Description
	}
	if req.TemplateID != nil {
		item.TemplateID = *req.TemplateID
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, item); err != nil {
		if isDuplicate(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "category name already exists")
		}
		return nil, lookupErr(err, "category not found", "failed to update category")
	}
	s.invalidate(ctx)
	return item, nil
}

// DeleteCategory removes a catalog entry that nothing references.
func (s *CatalogService) DeleteCategory(ctx context.Context, p *models.Principal, id string) error {
	if err := permit(p, authz.CatalogWrite, authz.Target{}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if isReferenced(err) {
			return appErrors.Clone(appErrors.ErrInvariant, "category is used by questions or organizations and cannot be deleted")
		}
		return lookupErr(err, "category not found", "failed to delete category")
	}
	s.invalidate(ctx)
	return nil
}

// ListOrganizationCategories returns the categories an organization has elected.
// Any member of the organization may read its allocation.
func (s *CatalogService) ListOrganizationCategories(ctx context.Context, p *models.Principal, orgID string) ([]models.OrganizationCategory, error) {
	if err := permit(p, authz.AssessmentRead, authz.Target{OrgID: orgID}); err != nil {
		return nil, err
	}
	return readThrough(ctx, s.cache, catalogKey(scopeOrg, orgID), func() ([]models.OrganizationCategory, error) {
		items, err := s.repo.ListOrganization(ctx, orgID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list organization categories")
		}
		if items == nil {
			items = []models.OrganizationCategory{}
		}
		return items, nil
	})
}

// AssignOrganizationCategories atomically replaces an organization's allocation set.
func (s *CatalogService) AssignOrganizationCategories(ctx context.Context, p *models.Principal, orgID string, req dto.AssignOrganizationCategoriesRequest) ([]models.OrganizationCategory, error) {
	if err := permit(p, authz.OrgCategoryAssign, authz.Target{OrgID: orgID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}

	seen := make(map[string]struct{}, len(req.Items))
	ids := make([]string, 0, len(req.Items))
	sum := 0.0
	for _, item := range req.Items {
		if _, dup := seen[item.CatalogID]; dup {
			return nil, appErrors.Clone(appErrors.ErrBadInput, "duplicate catalog id in allocation")
		}
		seen[item.CatalogID] = struct{}{}
		ids = append(ids, item.CatalogID)
		sum += item.Weight
	}
	if math.Abs(sum-weightTotal) > weightTolerance {
		return nil, appErrors.Clone(appErrors.ErrBadInput, fmt.Sprintf("category weights must sum to %.0f", weightTotal))
	}

	catalog, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load categories")
	}
	names := make(map[string]string, len(catalog))
	for _, c := range catalog {
		if !c.IsActive {
			return nil, appErrors.Clone(appErrors.ErrBadInput, "category "+c.Name+" is inactive")
		}
		names[c.ID] = c.Name
	}
	if len(names) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
	}

	items := make([]models.OrganizationCategory, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrganizationCategory{
			CatalogID:    item.CatalogID,
			Weight:       item.Weight,
			SortOrder:    item.Order,
			CategoryName: names[item.CatalogID],
		})
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		return s.repo.ReplaceOrganization(ctx, exec, orgID, items)
	})
	if err != nil {
		return nil, passThrough(err, "failed to assign organization categories")
	}
	s.cache.Evict(ctx, scopeOrg)
	s.logger.Info("organization categories assigned", zap.String("org_id", orgID), zap.Int("count", len(items)))
	return items, nil
}

// invalidate drops category listings and every listing that embeds category names.
func (s *CatalogService) invalidate(ctx context.Context) {
	s.cache.Evict(ctx, scopeCategories, scopeOrg, scopeQuestions)
}
