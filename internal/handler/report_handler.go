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

type reportService interface {
	GenerateReport(ctx context.Context, p *models.Principal, submissionID string, req dto.GenerateReportRequest) (*models.SubmissionReport, error)
	GetReport(ctx context.Context, p *models.Principal, reportID string) (*models.SubmissionReport, error)
	ListReports(ctx context.Context, p *models.Principal, submissionID string) ([]models.SubmissionReport, error)
	DeleteReport(ctx context.Context, p *models.Principal, reportID string) error
	UpdateRecommendation(ctx context.Context, p *models.Principal, reportID string, req dto.RecommendationRequest) (*models.SubmissionReport, error)
	DownloadURL(ctx context.Context, p *models.Principal, reportID string) (*dto.DownloadLinkResponse, error)
	Download(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler exposes submission report endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Generate godoc
// @Summary Queue report generation for a final submission
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.GenerateReportRequest true "Report options"
// @Success 202 {object} response.Envelope
// @Router /submissions/{id}/reports [post]
func (h *ReportHandler) Generate(c *gin.Context) {
	var req dto.GenerateReportRequest
	if err := bindJSON(c, &req, "invalid report payload"); err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.GenerateReport(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, report)
}

// List godoc
// @Summary List reports of a submission
// @Tags Reports
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	items, err := h.service.ListReports(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get report status
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.service.GetReport(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Delete godoc
// @Summary Delete a report and its artifact
// @Tags Reports
// @Param id path string true "Report ID"
// @Success 204
// @Router /reports/{id} [delete]
func (h *ReportHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteReport(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateRecommendation godoc
// @Summary Set a per-category recommendation on a completed report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.RecommendationRequest true "Recommendation"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/recommendations [put]
func (h *ReportHandler) UpdateRecommendation(c *gin.Context) {
	var req dto.RecommendationRequest
	if err := bindJSON(c, &req, "invalid recommendation payload"); err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.UpdateRecommendation(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// DownloadURL godoc
// @Summary Issue a signed report download link
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/download-url [get]
func (h *ReportHandler) DownloadURL(c *gin.Context) {
	link, err := h.service.DownloadURL(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Stream a report artifact through a signed token
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	result, err := h.service.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.Reader.Close() //nolint:errcheck
	serveAttachment(c, result.Filename, result.ContentType, result.Report.GeneratedAt, result.Reader)
}
