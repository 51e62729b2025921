package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/internal/service"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

type submissionServiceMock struct {
	filter service.SubmissionListFilter
	review dto.ReviewRequest
	err    error
}

func (m *submissionServiceMock) SubmitDraft(_ context.Context, _ *models.Principal, aid string) (*models.TempSubmission, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.TempSubmission{AssessmentID: aid, Status: models.ReviewStatusUnderReview}, nil
}

func (m *submissionServiceMock) Finalize(_ context.Context, _ *models.Principal, _ string) (*models.AssessmentSubmission, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.AssessmentSubmission{SubmissionID: "sub-1", Status: models.ReviewStatusUnderReview}, nil
}

func (m *submissionServiceMock) Review(_ context.Context, _ *models.Principal, id string, req dto.ReviewRequest) (*models.AssessmentSubmission, error) {
	m.review = req
	return &models.AssessmentSubmission{SubmissionID: id, Status: req.Status}, m.err
}

func (m *submissionServiceMock) ReviewDraft(_ context.Context, _ *models.Principal, aid string, req dto.ReviewRequest) (*models.TempSubmission, error) {
	m.review = req
	return &models.TempSubmission{AssessmentID: aid, Status: req.Status}, m.err
}

func (m *submissionServiceMock) List(_ context.Context, _ *models.Principal, filter service.SubmissionListFilter) ([]models.AssessmentSubmission, *models.Pagination, error) {
	m.filter = filter
	return []models.AssessmentSubmission{}, &models.Pagination{Page: 1, PageSize: filter.Limit}, m.err
}

func (m *submissionServiceMock) Get(_ context.Context, _ *models.Principal, id string) (*models.AssessmentSubmission, error) {
	return &models.AssessmentSubmission{SubmissionID: id}, m.err
}

func (m *submissionServiceMock) GetDraft(_ context.Context, _ *models.Principal, aid string) (*models.TempSubmission, error) {
	return &models.TempSubmission{AssessmentID: aid}, m.err
}

func (m *submissionServiceMock) Delete(context.Context, *models.Principal, string) error {
	return m.err
}

func TestSubmissionHandlerFinalizeCreated(t *testing.T) {
	h := NewSubmissionHandler(&submissionServiceMock{})
	c, w := newGinContext(http.MethodPost, "/assessments/a-1/finalize", nil)
	c.Params = gin.Params{{Key: "id", Value: "a-1"}}
	withPrincipal(c, "admin")

	h.Finalize(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"submissionId":"sub-1"`)
}

func TestSubmissionHandlerSubmitErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"category":  {err: appErrors.ErrCategoryNotPermitted, code: http.StatusForbidden},
		"frozen":    {err: appErrors.ErrAlreadySubmitted, code: http.StatusUnprocessableEntity},
		"duplicate": {err: appErrors.ErrAlreadyFinalized, code: http.StatusConflict},
		"unknown":   {err: errors.New("boom"), code: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewSubmissionHandler(&submissionServiceMock{err: tc.err})
			c, w := newGinContext(http.MethodPost, "/assessments/a-1/submit", nil)
			c.Params = gin.Params{{Key: "id", Value: "a-1"}}
			withPrincipal(c, "user")

			h.SubmitDraft(c)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestSubmissionHandlerReviewBindsStatus(t *testing.T) {
	svc := &submissionServiceMock{}
	h := NewSubmissionHandler(svc)
	c, w := newGinContext(http.MethodPut, "/submissions/sub-1/review", []byte(`{"status":"approved"}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	withPrincipal(c, "app-admin")

	h.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ReviewStatusApproved, svc.review.Status)
}

func TestSubmissionHandlerListFilter(t *testing.T) {
	svc := &submissionServiceMock{}
	h := NewSubmissionHandler(svc)
	c, w := newGinContext(http.MethodGet, "/submissions?orgId=org-1&status=approved&limit=10", nil)
	withPrincipal(c, "admin")

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.SubmissionListFilter{OrgID: "org-1", Status: models.ReviewStatusApproved, Limit: 10}, svc.filter)
}
