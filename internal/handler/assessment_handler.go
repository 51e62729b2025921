package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/response"
)

type assessmentService interface {
	Create(ctx context.Context, p *models.Principal, req dto.CreateAssessmentRequest) (*models.Assessment, error)
	Get(ctx context.Context, p *models.Principal, id string) (*models.AssessmentDetail, error)
	List(ctx context.Context, p *models.Principal, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error)
	Update(ctx context.Context, p *models.Principal, id string, req dto.UpdateAssessmentRequest) (*models.Assessment, error)
	Delete(ctx context.Context, p *models.Principal, id string) error
}

type responseService interface {
	CreateOrReplaceMany(ctx context.Context, p *models.Principal, assessmentID string, req dto.CreateResponsesRequest) ([]models.Response, error)
	Get(ctx context.Context, p *models.Principal, id string) (*models.ResponseWithFiles, error)
	List(ctx context.Context, p *models.Principal, assessmentID string) ([]models.ResponseWithFiles, error)
	History(ctx context.Context, p *models.Principal, id string) ([]models.Response, error)
	Update(ctx context.Context, p *models.Principal, id string, req dto.UpdateResponseRequest) (*models.Response, error)
	Delete(ctx context.Context, p *models.Principal, id string) error
}

// AssessmentHandler exposes assessments and their versioned responses.
type AssessmentHandler struct {
	assessments assessmentService
	responses   responseService
}

// NewAssessmentHandler builds a new handler.
func NewAssessmentHandler(assessments assessmentService, responses responseService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments, responses: responses}
}

// Create godoc
// @Summary Create an assessment
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	var req dto.CreateAssessmentRequest
	if err := bindJSON(c, &req, "invalid assessment payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.assessments.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List an organization's assessments
// @Tags Assessments
// @Produce json
// @Param orgId query string true "Organization ID"
// @Param status query string false "draft or submitted"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	limit, offset := pageWindow(c)
	items, page, err := h.assessments.List(c.Request.Context(), principalFromContext(c), models.AssessmentFilter{
		OrgID:  c.Query("orgId"),
		Status: models.AssessmentStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// Get godoc
// @Summary Get an assessment with its latest responses
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	item, err := h.assessments.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update a draft assessment
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.UpdateAssessmentRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assessments/{id} [patch]
func (h *AssessmentHandler) Update(c *gin.Context) {
	var req dto.UpdateAssessmentRequest
	if err := bindJSON(c, &req, "invalid assessment payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.assessments.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a draft assessment
// @Tags Assessments
// @Param id path string true "Assessment ID"
// @Success 204
// @Failure 422 {object} response.Envelope
// @Router /assessments/{id} [delete]
func (h *AssessmentHandler) Delete(c *gin.Context) {
	if err := h.assessments.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateResponses godoc
// @Summary Write a batch of responses
// @Description Each item appends a new version for its question revision.
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.CreateResponsesRequest true "Responses"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assessments/{id}/responses [post]
func (h *AssessmentHandler) CreateResponses(c *gin.Context) {
	var req dto.CreateResponsesRequest
	if err := bindJSON(c, &req, "invalid responses payload"); err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.responses.CreateOrReplaceMany(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, items)
}

// ListResponses godoc
// @Summary List the latest responses of an assessment
// @Tags Responses
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/responses [get]
func (h *AssessmentHandler) ListResponses(c *gin.Context) {
	items, err := h.responses.List(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetResponse godoc
// @Summary Get a response with its files
// @Tags Responses
// @Produce json
// @Param id path string true "Response ID"
// @Success 200 {object} response.Envelope
// @Router /responses/{id} [get]
func (h *AssessmentHandler) GetResponse(c *gin.Context) {
	item, err := h.responses.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ResponseHistory godoc
// @Summary List every version of a response, oldest first
// @Tags Responses
// @Produce json
// @Param id path string true "Response ID"
// @Success 200 {object} response.Envelope
// @Router /responses/{id}/history [get]
func (h *AssessmentHandler) ResponseHistory(c *gin.Context) {
	items, err := h.responses.History(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// UpdateResponse godoc
// @Summary Append a version to a response
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Response ID"
// @Param payload body dto.UpdateResponseRequest true "New text and expected version"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /responses/{id} [put]
func (h *AssessmentHandler) UpdateResponse(c *gin.Context) {
	var req dto.UpdateResponseRequest
	if err := bindJSON(c, &req, "invalid response payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.responses.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteResponse godoc
// @Summary Delete a response and its file links
// @Tags Responses
// @Param id path string true "Response ID"
// @Success 204
// @Router /responses/{id} [delete]
func (h *AssessmentHandler) DeleteResponse(c *gin.Context) {
	if err := h.responses.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
