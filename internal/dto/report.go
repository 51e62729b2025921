package dto

import (
	"time"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
)

// ReviewRequest captures a review decision for a draft or final submission.
type ReviewRequest struct {
	Status models.ReviewStatus `json:"status" validate:"required,oneof=under_review approved rejected revision_requested"`
}

// GenerateReportRequest captures POST /submissions/:id/reports.
type GenerateReportRequest struct {
	ReportType models.ReportType   `json:"reportType" validate:"required,oneof=summary detailed"`
	Format     models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// RecommendationRequest captures PUT /reports/:id/recommendations.
type RecommendationRequest struct {
	Category string `json:"category" validate:"required,max=120"`
	Text     string `json:"text" validate:"required,max=20000"`
}

// DownloadLinkResponse is returned for signed file and report downloads.
type DownloadLinkResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
