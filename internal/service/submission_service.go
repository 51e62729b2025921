package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
	"github.com/noah-isme/sustainability-assessment-api/pkg/reqcache"
)

type submissionStore interface {
	FindTemp(ctx context.Context, exec execer, assessmentID string) (*models.TempSubmission, error)
	LockTemp(ctx context.Context, exec execer, assessmentID string) (*models.TempSubmission, error)
	InsertTemp(ctx context.Context, exec execer, sub *models.TempSubmission) error
	UpdateTempContent(ctx context.Context, exec execer, assessmentID string, content models.SubmissionContent, submittedAt time.Time) error
	UpdateTempReview(ctx context.Context, exec execer, assessmentID string, status models.ReviewStatus, reviewedAt *time.Time) error
	FinalExists(ctx context.Context, exec execer, assessmentID string) (bool, error)
	InsertFinal(ctx context.Context, exec execer, sub *models.AssessmentSubmission) error
	FindFinal(ctx context.Context, exec execer, id string) (*models.AssessmentSubmission, error)
	ListFinal(ctx context.Context, filter models.SubmissionFilter) ([]models.AssessmentSubmission, int, error)
	UpdateFinalReview(ctx context.Context, exec execer, id string, status models.ReviewStatus, reviewedAt *time.Time) error
	DeleteFinal(ctx context.Context, exec execer, id string) error
}

// SubmissionListFilter is the caller-facing listing filter.
type SubmissionListFilter struct {
	OrgID  string
	Status models.ReviewStatus
	Limit  int
	Offset int
}

// SubmissionService merges drafts, finalizes submissions and records reviews.
type SubmissionService struct {
	assessments assessmentStore
	responses   responseStore
	revisions   revisionCategoryStore
	files       fileStore
	submissions submissionStore
	tx          database.Transactor
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs the service.
func NewSubmissionService(assessments assessmentStore, responses responseStore, revisions revisionCategoryStore, files fileStore, submissions submissionStore, tx database.Transactor, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		assessments: assessments,
		responses:   responses,
		revisions:   revisions,
		files:       files,
		submissions: submissions,
		tx:          tx,
		metrics:     metrics,
		validator:   newValidator(validate),
		logger:      logger,
		now:         time.Now,
	}
}

// SubmitDraft merges the assessment's latest responses, attributed to p, into the draft submission.
// Entries p contributed earlier for the same revisions are replaced; other users' entries are kept.
func (s *SubmissionService) SubmitDraft(ctx context.Context, p *models.Principal, assessmentID string) (*models.TempSubmission, error) {
	var out *models.TempSubmission
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		a, err := lockAssessment(ctx, s.assessments, exec, assessmentID)
		if err != nil {
			return err
		}
		if err := permit(p, authz.AssessmentSubmit, assessmentTarget(a)); err != nil {
			return err
		}
		latest, err := s.responses.ListLatest(ctx, exec, assessmentID)
		if err != nil {
			return appErrors.Internal(err, "failed to list responses")
		}
		revisionIDs := make([]string, 0, len(latest))
		for _, r := range latest {
			revisionIDs = append(revisionIDs, r.RevisionID)
		}
		refs, err := categoryRefs(ctx, s.revisions, exec, revisionIDs)
		if err != nil {
			return err
		}
		if err := permit(p, authz.AssessmentSubmit, assessmentTarget(a, refs...)); err != nil {
			return err
		}
		withFiles, err := attachFiles(ctx, s.files, exec, latest)
		if err != nil {
			return err
		}
		contribution := make([]models.ContentResponse, 0, len(withFiles))
		for _, r := range withFiles {
			contribution = append(contribution, contentResponse(p.UserID, r))
		}

		now := s.now().UTC()
		header := models.ContentAssessment{ID: a.ID, OrgID: a.OrgID, Name: a.Name, Language: a.Language}
		existing, err := s.submissions.LockTemp(ctx, exec, assessmentID)
		switch {
		case err == nil:
			content := existing.Content
			content.Normalize()
			content.Assessment = header
			content.Merge(contribution)
			if err := s.submissions.UpdateTempContent(ctx, exec, assessmentID, content, now); err != nil {
				return appErrors.Internal(err, "failed to update draft submission")
			}
			existing.Content = content
			existing.SubmittedAt = now
			out = existing
		case errors.Is(err, sql.ErrNoRows):
			content := models.SubmissionContent{Assessment: header}
			content.Merge(contribution)
			content.Normalize()
			sub := &models.TempSubmission{
				AssessmentID: a.ID,
				OrgID:        a.OrgID,
				Content:      content,
				SubmittedAt:  now,
				Status:       models.ReviewStatusUnderReview,
			}
			if err := s.submissions.InsertTemp(ctx, exec, sub); err != nil {
				if isDuplicate(err) {
					return appErrors.Clone(appErrors.ErrConflict, "draft submission was created concurrently")
				}
				return appErrors.Internal(err, "failed to create draft submission")
			}
			out = sub
		default:
			return appErrors.Internal(err, "failed to load draft submission")
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to submit draft")
	}
	s.metrics.IncDraftSubmitted()
	s.logger.Info("draft submitted",
		zap.String("assessment_id", assessmentID),
		zap.String("by", p.UserID),
		zap.Int("entries", len(out.Content.Responses)),
	)
	return out, nil
}

// Finalize freezes the assessment by copying its draft into the final submission.
func (s *SubmissionService) Finalize(ctx context.Context, p *models.Principal, assessmentID string) (*models.AssessmentSubmission, error) {
	var out *models.AssessmentSubmission
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		a, err := lockAssessment(ctx, s.assessments, exec, assessmentID)
		if err != nil {
			return err
		}
		if err := permit(p, authz.AssessmentFinalize, assessmentTarget(a)); err != nil {
			return err
		}
		exists, err := s.submissions.FinalExists(ctx, exec, assessmentID)
		if err != nil {
			return appErrors.Internal(err, "failed to check final submission")
		}
		if exists || a.Submitted() {
			return appErrors.ErrAlreadyFinalized
		}
		draft, err := s.submissions.FindTemp(ctx, exec, assessmentID)
		if err != nil {
			return lookupErr(err, "assessment has no draft submission to finalize", "failed to load draft submission")
		}
		content := draft.Content
		content.Normalize()
		sub := &models.AssessmentSubmission{
			SubmissionID: a.ID,
			OrgID:        a.OrgID,
			Content:      content,
			SubmittedAt:  s.now().UTC(),
			Status:       models.ReviewStatusUnderReview,
		}
		if err := s.submissions.InsertFinal(ctx, exec, sub); err != nil {
			if isDuplicate(err) {
				return appErrors.ErrAlreadyFinalized
			}
			return appErrors.Internal(err, "failed to create final submission")
		}
		out = sub
		return nil
	})
	if err != nil {
		s.metrics.ObserveFinalize(finalizeOutcome(err))
		return nil, passThrough(err, "failed to finalize submission")
	}
	s.metrics.ObserveFinalize("ok")
	reqcache.Forget(ctx, assessmentMemoKey(assessmentID))
	s.logger.Info("submission finalized", zap.String("assessment_id", assessmentID), zap.String("by", p.UserID))
	return out, nil
}

// Review moves a final submission to another review state.
func (s *SubmissionService) Review(ctx context.Context, p *models.Principal, submissionID string, req dto.ReviewRequest) (*models.AssessmentSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	var out *models.AssessmentSubmission
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		sub, err := s.submissions.FindFinal(ctx, exec, submissionID)
		if err != nil {
			return lookupErr(err, "submission not found", "failed to load submission")
		}
		if err := permit(p, authz.SubmissionReview, authz.Target{OrgID: sub.OrgID}); err != nil {
			return err
		}
		reviewedAt := models.ApplyReview(req.Status, s.now())
		if err := s.submissions.UpdateFinalReview(ctx, exec, submissionID, req.Status, reviewedAt); err != nil {
			return lookupErr(err, "submission not found", "failed to review submission")
		}
		sub.Status = req.Status
		sub.ReviewedAt = reviewedAt
		out = sub
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to review submission")
	}
	s.logger.Info("submission reviewed", zap.String("submission_id", submissionID), zap.String("status", string(req.Status)))
	return out, nil
}

// ReviewDraft moves a draft submission to another review state.
func (s *SubmissionService) ReviewDraft(ctx context.Context, p *models.Principal, assessmentID string, req dto.ReviewRequest) (*models.TempSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	var out *models.TempSubmission
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		draft, err := s.submissions.LockTemp(ctx, exec, assessmentID)
		if err != nil {
			return lookupErr(err, "draft submission not found", "failed to load draft submission")
		}
		if err := permit(p, authz.SubmissionReview, authz.Target{OrgID: draft.OrgID}); err != nil {
			return err
		}
		reviewedAt := models.ApplyReview(req.Status, s.now())
		if err := s.submissions.UpdateTempReview(ctx, exec, assessmentID, req.Status, reviewedAt); err != nil {
			return lookupErr(err, "draft submission not found", "failed to review draft submission")
		}
		draft.Status = req.Status
		draft.ReviewedAt = reviewedAt
		out = draft
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to review draft submission")
	}
	return out, nil
}

// List returns final submissions the caller can read.
func (s *SubmissionService) List(ctx context.Context, p *models.Principal, filter SubmissionListFilter) ([]models.AssessmentSubmission, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrBadInput, "unknown review status")
	}
	query := models.SubmissionFilter{Status: filter.Status, Limit: filter.Limit, Offset: filter.Offset}
	switch {
	case filter.OrgID != "":
		if err := permit(p, authz.SubmissionRead, authz.Target{OrgID: filter.OrgID}); err != nil {
			return nil, nil, err
		}
		query.OrgIDs = []string{filter.OrgID}
	case p != nil && p.IsPlatformAdmin():
	default:
		if p == nil {
			return nil, nil, appErrors.ErrForbidden
		}
		query.OrgIDs = p.OrgIDs()
		if query.OrgIDs == nil {
			query.OrgIDs = []string{}
		}
	}
	items, total, err := s.submissions.ListFinal(ctx, query)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list submissions")
	}
	if items == nil {
		items = []models.AssessmentSubmission{}
	}
	return items, models.NewPagination(filter.Limit, filter.Offset, total), nil
}

// Get returns one final submission.
func (s *SubmissionService) Get(ctx context.Context, p *models.Principal, submissionID string) (*models.AssessmentSubmission, error) {
	sub, err := s.submissions.FindFinal(ctx, nil, submissionID)
	if err != nil {
		return nil, lookupErr(err, "submission not found", "failed to load submission")
	}
	if err := permit(p, authz.SubmissionRead, authz.Target{OrgID: sub.OrgID}); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetDraft returns the draft submission of an assessment.
func (s *SubmissionService) GetDraft(ctx context.Context, p *models.Principal, assessmentID string) (*models.TempSubmission, error) {
	draft, err := s.submissions.FindTemp(ctx, nil, assessmentID)
	if err != nil {
		return nil, lookupErr(err, "draft submission not found", "failed to load draft submission")
	}
	if err := permit(p, authz.SubmissionRead, authz.Target{OrgID: draft.OrgID}); err != nil {
		return nil, err
	}
	return draft, nil
}

// Delete removes a final submission, returning its assessment to draft.
func (s *SubmissionService) Delete(ctx context.Context, p *models.Principal, submissionID string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		// Lock the assessment, when it still exists, so writers observe the state change atomically.
		if _, err := s.assessments.LockByID(ctx, exec, submissionID); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to lock assessment")
		}
		sub, err := s.submissions.FindFinal(ctx, exec, submissionID)
		if err != nil {
			return lookupErr(err, "submission not found", "failed to load submission")
		}
		if err := permit(p, authz.SubmissionDelete, authz.Target{OrgID: sub.OrgID}); err != nil {
			return err
		}
		if err := s.submissions.DeleteFinal(ctx, exec, submissionID); err != nil {
			return lookupErr(err, "submission not found", "failed to delete submission")
		}
		return nil
	})
	if err != nil {
		return passThrough(err, "failed to delete submission")
	}
	reqcache.Forget(ctx, assessmentMemoKey(submissionID))
	s.logger.Info("submission deleted", zap.String("submission_id", submissionID), zap.String("by", p.UserID))
	return nil
}

func contentResponse(userID string, r models.ResponseWithFiles) models.ContentResponse {
	files := make([]models.ContentFile, 0, len(r.Files))
	for _, f := range r.Files {
		meta := make(map[string]string, len(f.Metadata.Extra)+2)
		for k, v := range f.Metadata.Extra {
			meta[k] = v
		}
		if f.Metadata.UploadedBy != "" {
			meta["uploaded_by"] = f.Metadata.UploadedBy
		}
		if f.Metadata.Checksum != "" {
			meta["checksum"] = f.Metadata.Checksum
		}
		files = append(files, models.ContentFile{
			FileID:      f.ID,
			Filename:    f.Metadata.Filename,
			Size:        f.Metadata.Size,
			ContentType: f.Metadata.ContentType,
			CreatedAt:   f.Metadata.CreatedAt,
			Metadata:    meta,
		})
	}
	return models.ContentResponse{
		RevisionID: r.RevisionID,
		Response:   r.Text,
		Version:    r.Version,
		UserID:     userID,
		Files:      files,
	}
}

func finalizeOutcome(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrConflict):
		return "conflict"
	case errors.Is(err, appErrors.ErrForbidden), errors.Is(err, appErrors.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}
