package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

type responseStore interface {
	LatestVersion(ctx context.Context, exec execer, assessmentID, revisionID string) (int, error)
	Insert(ctx context.Context, exec execer, resp *models.Response) error
	FindByID(ctx context.Context, exec execer, id string) (*models.Response, error)
	FindLatest(ctx context.Context, exec execer, assessmentID, revisionID string) (*models.Response, error)
	ListLatest(ctx context.Context, exec execer, assessmentID string) ([]models.Response, error)
	ListHistory(ctx context.Context, assessmentID, revisionID string) ([]models.Response, error)
	Delete(ctx context.Context, exec execer, id string) error
}

type revisionCategoryStore interface {
	RevisionCategories(ctx context.Context, exec execer, revisionIDs []string) (map[string]models.RevisionCategory, error)
}

type fileStore interface {
	Create(ctx context.Context, f *models.File) error
	FindByID(ctx context.Context, exec execer, id string) (*models.File, error)
	LockByID(ctx context.Context, exec execer, id string) (*models.File, error)
	ReferencingResponses(ctx context.Context, exec execer, fileID string) ([]string, error)
	Delete(ctx context.Context, exec execer, id string) error
	Link(ctx context.Context, exec execer, link *models.ResponseFile) error
	Unlink(ctx context.Context, exec execer, responseID, fileID string) error
	ListForResponses(ctx context.Context, exec execer, responseIDs []string) ([]models.LinkedFile, error)
}

// ResponseService writes versioned responses inside an assessment.
type ResponseService struct {
	assessments assessmentStore
	responses   responseStore
	revisions   revisionCategoryStore
	files       fileStore
	tx          database.Transactor
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewResponseService constructs the service.
func NewResponseService(assessments assessmentStore, responses responseStore, revisions revisionCategoryStore, files fileStore, tx database.Transactor, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ResponseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseService{
		assessments: assessments,
		responses:   responses,
		revisions:   revisions,
		files:       files,
		tx:          tx,
		metrics:     metrics,
		validator:   newValidator(validate),
		logger:      logger,
	}
}

// categoryRefs resolves the categories of the given revisions. Unknown revisions are BadInput.
func categoryRefs(ctx context.Context, store revisionCategoryStore, exec execer, revisionIDs []string) ([]authz.CategoryRef, error) {
	if len(revisionIDs) == 0 {
		return nil, nil
	}
	found, err := store.RevisionCategories(ctx, exec, revisionIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to resolve question categories")
	}
	refs := make([]authz.CategoryRef, 0, len(revisionIDs))
	seen := make(map[string]struct{}, len(found))
	for _, id := range revisionIDs {
		rc, ok := found[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrBadInput, fmt.Sprintf("question revision %s does not exist", id))
		}
		if _, dup := seen[rc.CategoryID]; dup {
			continue
		}
		seen[rc.CategoryID] = struct{}{}
		refs = append(refs, authz.CategoryRef{ID: rc.CategoryID, Name: rc.CategoryName})
	}
	return refs, nil
}

// attachFiles groups linked files under their responses.
func attachFiles(ctx context.Context, files fileStore, exec execer, responses []models.Response) ([]models.ResponseWithFiles, error) {
	out := make([]models.ResponseWithFiles, 0, len(responses))
	if len(responses) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(responses))
	for _, r := range responses {
		ids = append(ids, r.ID)
	}
	linked, err := files.ListForResponses(ctx, exec, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list response files")
	}
	byResponse := make(map[string][]models.File, len(responses))
	for _, lf := range linked {
		byResponse[lf.ResponseID] = append(byResponse[lf.ResponseID], lf.File)
	}
	for _, r := range responses {
		fs := byResponse[r.ID]
		if fs == nil {
			fs = []models.File{}
		}
		out = append(out, models.ResponseWithFiles{Response: r, Files: fs})
	}
	return out, nil
}

// CreateOrReplaceMany stores each answer as version 1 or as max+1 over the current latest.
func (s *ResponseService) CreateOrReplaceMany(ctx context.Context, p *models.Principal, assessmentID string, req dto.CreateResponsesRequest) ([]models.Response, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	revisionIDs := make([]string, 0, len(req.Responses))
	for _, item := range req.Responses {
		revisionIDs = append(revisionIDs, item.RevisionID)
	}

	var written []models.Response
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		a, err := lockAssessment(ctx, s.assessments, exec, assessmentID)
		if err != nil {
			return err
		}
		if err := permit(p, authz.ResponseWrite, assessmentTarget(a)); err != nil {
			return err
		}
		refs, err := categoryRefs(ctx, s.revisions, exec, revisionIDs)
		if err != nil {
			return err
		}
		if err := permit(p, authz.ResponseWrite, assessmentTarget(a, refs...)); err != nil {
			return err
		}
		written = make([]models.Response, 0, len(req.Responses))
		for _, item := range req.Responses {
			current, err := s.responses.LatestVersion(ctx, exec, assessmentID, item.RevisionID)
			if err != nil {
				return appErrors.Internal(err, "failed to read response version")
			}
			resp := &models.Response{
				AssessmentID: assessmentID,
				RevisionID:   item.RevisionID,
				Text:         item.Text,
				Version:      current + 1,
				CreatedBy:    p.UserID,
			}
			if err := s.responses.Insert(ctx, exec, resp); err != nil {
				return s.insertErr(err)
			}
			written = append(written, *resp)
		}
		if err := s.assessments.Touch(ctx, exec, assessmentID); err != nil {
			return appErrors.Internal(err, "failed to touch assessment")
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to save responses")
	}
	s.metrics.IncResponsesWritten(len(written))
	return written, nil
}

// Get returns one response with its linked files.
func (s *ResponseService) Get(ctx context.Context, p *models.Principal, id string) (*models.ResponseWithFiles, error) {
	resp, err := s.responses.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupErr(err, "response not found", "failed to load response")
	}
	a, err := loadAssessment(ctx, s.assessments, resp.AssessmentID)
	if err != nil {
		return nil, err
	}
	if err := permit(p, authz.ResponseRead, assessmentTarget(a)); err != nil {
		return nil, err
	}
	withFiles, err := attachFiles(ctx, s.files, nil, []models.Response{*resp})
	if err != nil {
		return nil, err
	}
	return &withFiles[0], nil
}

// List returns the latest response per revision for an assessment.
func (s *ResponseService) List(ctx context.Context, p *models.Principal, assessmentID string) ([]models.ResponseWithFiles, error) {
	a, err := loadAssessment(ctx, s.assessments, assessmentID)
	if err != nil {
		return nil, err
	}
	if err := permit(p, authz.ResponseRead, assessmentTarget(a)); err != nil {
		return nil, err
	}
	latest, err := s.responses.ListLatest(ctx, nil, assessmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list responses")
	}
	return attachFiles(ctx, s.files, nil, latest)
}

// History returns every stored version of the response's question, oldest first.
func (s *ResponseService) History(ctx context.Context, p *models.Principal, id string) ([]models.Response, error) {
	resp, err := s.responses.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupErr(err, "response not found", "failed to load response")
	}
	a, err := loadAssessment(ctx, s.assessments, resp.AssessmentID)
	if err != nil {
		return nil, err
	}
	if err := permit(p, authz.ResponseRead, assessmentTarget(a)); err != nil {
		return nil, err
	}
	items, err := s.responses.ListHistory(ctx, resp.AssessmentID, resp.RevisionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list response history")
	}
	return items, nil
}

// Update appends version expectedVersion+1 when expectedVersion is still the latest.
// The row carrying expectedVersion is never modified.
func (s *ResponseService) Update(ctx context.Context, p *models.Principal, id string, req dto.UpdateResponseRequest) (*models.Response, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	var out *models.Response
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		resp, a, err := s.loadForWrite(ctx, p, exec, id, authz.ResponseWrite)
		if err != nil {
			return err
		}
		current, err := s.responses.LatestVersion(ctx, exec, resp.AssessmentID, resp.RevisionID)
		if err != nil {
			return appErrors.Internal(err, "failed to read response version")
		}
		if current != req.ExpectedVersion {
			s.metrics.IncVersionConflict()
			return appErrors.ErrVersionConflict
		}
		next := &models.Response{
			AssessmentID: a.ID,
			RevisionID:   resp.RevisionID,
			Text:         req.Text,
			Version:      current + 1,
			CreatedBy:    p.UserID,
		}
		if err := s.responses.Insert(ctx, exec, next); err != nil {
			return s.insertErr(err)
		}
		if err := s.assessments.Touch(ctx, exec, a.ID); err != nil {
			return appErrors.Internal(err, "failed to touch assessment")
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update response")
	}
	s.metrics.IncResponsesWritten(1)
	return out, nil
}

// Delete removes one response row and its file links.
func (s *ResponseService) Delete(ctx context.Context, p *models.Principal, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		resp, a, err := s.loadForWrite(ctx, p, exec, id, authz.ResponseDelete)
		if err != nil {
			return err
		}
		if err := s.responses.Delete(ctx, exec, resp.ID); err != nil {
			return lookupErr(err, "response not found", "failed to delete response")
		}
		if err := s.assessments.Touch(ctx, exec, a.ID); err != nil {
			return appErrors.Internal(err, "failed to touch assessment")
		}
		return nil
	})
	return passThrough(err, "failed to delete response")
}

// loadForWrite reads a response, locks its assessment and runs the category-aware oracle check.
func (s *ResponseService) loadForWrite(ctx context.Context, p *models.Principal, exec execer, id string, op authz.Operation) (*models.Response, *models.Assessment, error) {
	resp, err := s.responses.FindByID(ctx, exec, id)
	if err != nil {
		return nil, nil, lookupErr(err, "response not found", "failed to load response")
	}
	a, err := lockAssessment(ctx, s.assessments, exec, resp.AssessmentID)
	if err != nil {
		return nil, nil, err
	}
	if err := permit(p, op, assessmentTarget(a)); err != nil {
		return nil, nil, err
	}
	refs, err := categoryRefs(ctx, s.revisions, exec, []string{resp.RevisionID})
	if err != nil {
		return nil, nil, err
	}
	if err := permit(p, op, assessmentTarget(a, refs...)); err != nil {
		return nil, nil, err
	}
	return resp, a, nil
}

func (s *ResponseService) insertErr(err error) error {
	if isDuplicate(err) {
		s.metrics.IncVersionConflict()
		return appErrors.ErrVersionConflict
	}
	if isReferenced(err) {
		return appErrors.Clone(appErrors.ErrBadInput, "question revision does not exist")
	}
	return appErrors.Internal(err, "failed to insert response")
}
