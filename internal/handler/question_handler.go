package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/response"
)

type questionService interface {
	List(ctx context.Context, p *models.Principal, filter models.QuestionFilter) ([]models.QuestionWithRevision, *models.Pagination, error)
	Get(ctx context.Context, p *models.Principal, questionID, revisionID string) (*models.QuestionWithRevision, error)
	Revisions(ctx context.Context, p *models.Principal, questionID string) ([]models.QuestionRevision, error)
	Create(ctx context.Context, p *models.Principal, req dto.CreateQuestionRequest) (*models.QuestionWithRevision, error)
	Update(ctx context.Context, p *models.Principal, questionID string, req dto.UpdateQuestionRequest) (*models.QuestionWithRevision, error)
	DeleteRevision(ctx context.Context, p *models.Principal, revisionID string) error
}

// QuestionHandler exposes questions and their revisions.
type QuestionHandler struct {
	service questionService
}

// NewQuestionHandler builds a new handler.
func NewQuestionHandler(service questionService) *QuestionHandler {
	return &QuestionHandler{service: service}
}

// List godoc
// @Summary List questions with their latest revision
// @Tags Questions
// @Produce json
// @Param categoryId query string false "Category filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /questions [get]
func (h *QuestionHandler) List(c *gin.Context) {
	limit, offset := pageWindow(c)
	items, page, err := h.service.List(c.Request.Context(), principalFromContext(c), models.QuestionFilter{
		CategoryID: c.Query("categoryId"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// Get godoc
// @Summary Get a question
// @Description Returns the latest revision unless revisionId is given.
// @Tags Questions
// @Produce json
// @Param id path string true "Question ID"
// @Param revisionId query string false "Revision ID"
// @Success 200 {object} response.Envelope
// @Router /questions/{id} [get]
func (h *QuestionHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"), c.Query("revisionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Revisions godoc
// @Summary List revisions of a question
// @Tags Questions
// @Produce json
// @Param id path string true "Question ID"
// @Success 200 {object} response.Envelope
// @Router /questions/{id}/revisions [get]
func (h *QuestionHandler) Revisions(c *gin.Context) {
	items, err := h.service.Revisions(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Create a question
// @Tags Questions
// @Accept json
// @Produce json
// @Param payload body dto.CreateQuestionRequest true "Question payload"
// @Success 201 {object} response.Envelope
// @Router /questions [post]
func (h *QuestionHandler) Create(c *gin.Context) {
	var req dto.CreateQuestionRequest
	if err := bindJSON(c, &req, "invalid question payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Publish a new revision of a question
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path string true "Question ID"
// @Param payload body dto.UpdateQuestionRequest true "Revision payload"
// @Success 200 {object} response.Envelope
// @Router /questions/{id} [put]
func (h *QuestionHandler) Update(c *gin.Context) {
	var req dto.UpdateQuestionRequest
	if err := bindJSON(c, &req, "invalid question payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteRevision godoc
// @Summary Delete an unreferenced revision
// @Tags Questions
// @Param revisionId path string true "Revision ID"
// @Success 204
// @Failure 422 {object} response.Envelope
// @Router /revisions/{revisionId} [delete]
func (h *QuestionHandler) DeleteRevision(c *gin.Context) {
	if err := h.service.DeleteRevision(c.Request.Context(), principalFromContext(c), c.Param("revisionId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
