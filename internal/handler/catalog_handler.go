package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/response"
)

type catalogService interface {
	ListCategories(ctx context.Context, p *models.Principal, activeOnly bool) ([]models.CategoryCatalog, error)
	GetCategory(ctx context.Context, p *models.Principal, id string) (*models.CategoryCatalog, error)
	CreateCategory(ctx context.Context, p *models.Principal, req dto.CreateCategoryRequest) (*models.CategoryCatalog, error)
	UpdateCategory(ctx context.Context, p *models.Principal, id string, req dto.UpdateCategoryRequest) (*models.CategoryCatalog, error)
	DeleteCategory(ctx context.Context, p *models.Principal, id string) error
	ListOrganizationCategories(ctx context.Context, p *models.Principal, orgID string) ([]models.OrganizationCategory, error)
	AssignOrganizationCategories(ctx context.Context, p *models.Principal, orgID string, req dto.AssignOrganizationCategoriesRequest) ([]models.OrganizationCategory, error)
}

// CatalogHandler exposes the category catalog and organization allocations.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListCategories godoc
// @Summary List catalog categories
// @Tags Catalog
// @Produce json
// @Param active query bool false "Only active categories"
// @Success 200 {object} response.Envelope
// @Router /catalog/categories [get]
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	items, err := h.service.ListCategories(c.Request.Context(), principalFromContext(c), c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetCategory godoc
// @Summary Get catalog category
// @Tags Catalog
// @Produce json
// @Param id path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Router /catalog/categories/{id} [get]
func (h *CatalogHandler) GetCategory(c *gin.Context) {
	item, err := h.service.GetCategory(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateCategory godoc
// @Summary Create catalog category
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Router /catalog/categories [post]
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req dto.CreateCategoryRequest
	if err := bindJSON(c, &req, "invalid category payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.CreateCategory(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateCategory godoc
// @Summary Update catalog category
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Category ID"
// @Param payload body dto.UpdateCategoryRequest true "Category changes"
// @Success 200 {object} response.Envelope
// @Router /catalog/categories/{id} [patch]
func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	var req dto.UpdateCategoryRequest
	if err := bindJSON(c, &req, "invalid category payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.UpdateCategory(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteCategory godoc
// @Summary Delete catalog category
// @Tags Catalog
// @Param id path string true "Category ID"
// @Success 204
// @Router /catalog/categories/{id} [delete]
func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	if err := h.service.DeleteCategory(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListOrganizationCategories godoc
// @Summary List an organization's categories
// @Tags Catalog
// @Produce json
// @Param orgId path string true "Organization ID"
// @Success 200 {object} response.Envelope
// @Router /organizations/{orgId}/categories [get]
func (h *CatalogHandler) ListOrganizationCategories(c *gin.Context) {
	items, err := h.service.ListOrganizationCategories(c.Request.Context(), principalFromContext(c), c.Param("orgId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// AssignOrganizationCategories godoc
// @Summary Replace an organization's categories
// @Tags Catalog
// @Accept json
// @Produce json
// @Param orgId path string true "Organization ID"
// @Param payload body dto.AssignOrganizationCategoriesRequest true "Allocation"
// @Success 200 {object} response.Envelope
// @Router /organizations/{orgId}/categories [put]
func (h *CatalogHandler) AssignOrganizationCategories(c *gin.Context) {
	var req dto.AssignOrganizationCategoriesRequest
	if err := bindJSON(c, &req, "invalid allocation payload"); err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.AssignOrganizationCategories(c.Request.Context(), principalFromContext(c), c.Param("orgId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
