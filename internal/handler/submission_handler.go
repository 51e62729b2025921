package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/internal/service"
	"github.com/noah-isme/sustainability-assessment-api/pkg/response"
)

type submissionService interface {
	SubmitDraft(ctx context.Context, p *models.Principal, assessmentID string) (*models.TempSubmission, error)
	Finalize(ctx context.Context, p *models.Principal, assessmentID string) (*models.AssessmentSubmission, error)
	Review(ctx context.Context, p *models.Principal, submissionID string, req dto.ReviewRequest) (*models.AssessmentSubmission, error)
	ReviewDraft(ctx context.Context, p *models.Principal, assessmentID string, req dto.ReviewRequest) (*models.TempSubmission, error)
	List(ctx context.Context, p *models.Principal, filter service.SubmissionListFilter) ([]models.AssessmentSubmission, *models.Pagination, error)
	Get(ctx context.Context, p *models.Principal, submissionID string) (*models.AssessmentSubmission, error)
	GetDraft(ctx context.Context, p *models.Principal, assessmentID string) (*models.TempSubmission, error)
	Delete(ctx context.Context, p *models.Principal, submissionID string) error
}

// SubmissionHandler exposes the draft, finalize and review workflow.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler builds a new handler.
func NewSubmissionHandler(svc submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: svc}
}

// SubmitDraft godoc
// @Summary Merge the caller's responses into the draft submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assessments/{id}/submit [post]
func (h *SubmissionHandler) SubmitDraft(c *gin.Context) {
	draft, err := h.service.SubmitDraft(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Finalize godoc
// @Summary Freeze the assessment into a final submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assessments/{id}/finalize [post]
func (h *SubmissionHandler) Finalize(c *gin.Context) {
	sub, err := h.service.Finalize(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

// GetDraft godoc
// @Summary Get the draft submission of an assessment
// @Tags Submissions
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/draft [get]
func (h *SubmissionHandler) GetDraft(c *gin.Context) {
	draft, err := h.service.GetDraft(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// ReviewDraft godoc
// @Summary Set the review status of a draft submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.ReviewRequest true "Review status"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/draft/review [put]
func (h *SubmissionHandler) ReviewDraft(c *gin.Context) {
	var req dto.ReviewRequest
	if err := bindJSON(c, &req, "invalid review payload"); err != nil {
		response.Error(c, err)
		return
	}
	draft, err := h.service.ReviewDraft(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// List godoc
// @Summary List final submissions
// @Tags Submissions
// @Produce json
// @Param orgId query string false "Organization ID"
// @Param status query string false "Review status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	limit, offset := pageWindow(c)
	items, page, err := h.service.List(c.Request.Context(), principalFromContext(c), service.SubmissionListFilter{
		OrgID:  c.Query("orgId"),
		Status: models.ReviewStatus(c.Query("status")),
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
// @Summary Get a final submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Review godoc
// @Summary Set the review status of a final submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewRequest true "Review status"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/review [put]
func (h *SubmissionHandler) Review(c *gin.Context) {
	var req dto.ReviewRequest
	if err := bindJSON(c, &req, "invalid review payload"); err != nil {
		response.Error(c, err)
		return
	}
	sub, err := h.service.Review(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Delete godoc
// @Summary Delete a final submission and reopen its assessment
// @Tags Submissions
// @Param id path string true "Submission ID"
// @Success 204
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
