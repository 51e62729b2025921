package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
	"github.com/noah-isme/sustainability-assessment-api/pkg/reqcache"
)

type assessmentStore interface {
	Create(ctx context.Context, a *models.Assessment) error
	FindByID(ctx context.Context, exec execer, id string) (*models.Assessment, error)
	LockByID(ctx context.Context, exec execer, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error)
	Update(ctx context.Context, exec execer, id string, update models.AssessmentUpdate) error
	Touch(ctx context.Context, exec execer, id string) error
	Delete(ctx context.Context, exec execer, id string) error
}

// AssessmentService manages assessments owned by organizations.
type AssessmentService struct {
	assessments assessmentStore
	responses   responseStore
	files       fileStore
	tx          database.Transactor
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssessmentService constructs the service.
func NewAssessmentService(assessments assessmentStore, responses responseStore, files fileStore, tx database.Transactor, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{
		assessments: assessments,
		responses:   responses,
		files:       files,
		tx:          tx,
		validator:   newValidator(validate),
		logger:      logger,
	}
}

func assessmentMemoKey(id string) string { return "assessment:" + id }

// loadAssessment reads an assessment outside any transaction, memoized for the request.
func loadAssessment(ctx context.Context, store assessmentStore, id string) (*models.Assessment, error) {
	a, err := reqcache.Memo(ctx, assessmentMemoKey(id), func(ctx context.Context) (*models.Assessment, error) {
		return store.FindByID(ctx, nil, id)
	})
	if err != nil {
		return nil, lookupErr(err, "assessment not found", "failed to load assessment")
	}
	return a, nil
}

// lockAssessment loads and row-locks an assessment inside a transaction.
func lockAssessment(ctx context.Context, store assessmentStore, exec execer, id string) (*models.Assessment, error) {
	a, err := store.LockByID(ctx, exec, id)
	if err != nil {
		return nil, lookupErr(err, "assessment not found", "failed to load assessment")
	}
	return a, nil
}

// Create starts a draft assessment for an organization.
func (s *AssessmentService) Create(ctx context.Context, p *models.Principal, req dto.CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	if err := permit(p, authz.AssessmentCreate, authz.Target{OrgID: req.OrgID}); err != nil {
		return nil, err
	}
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = models.DefaultLanguage
	}
	a := &models.Assessment{
		OrgID:     req.OrgID,
		Language:  language,
		Name:      strings.TrimSpace(req.Name),
		CreatedBy: p.UserID,
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, appErrors.Internal(err, "failed to create assessment")
	}
	s.logger.Info("assessment created", zap.String("assessment_id", a.ID), zap.String("org_id", a.OrgID))
	return a, nil
}

// Get returns an assessment with its latest responses and their files.
func (s *AssessmentService) Get(ctx context.Context, p *models.Principal, id string) (*models.AssessmentDetail, error) {
	a, err := loadAssessment(ctx, s.assessments, id)
	if err != nil {
		return nil, err
	}
	if err := permit(p, authz.AssessmentRead, assessmentTarget(a)); err != nil {
		return nil, err
	}
	latest, err := s.responses.ListLatest(ctx, nil, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list responses")
	}
	withFiles, err := attachFiles(ctx, s.files, nil, latest)
	if err != nil {
		return nil, err
	}
	return &models.AssessmentDetail{Assessment: *a, Responses: withFiles}, nil
}

// List returns an organization's assessments, optionally filtered by status.
func (s *AssessmentService) List(ctx context.Context, p *models.Principal, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrBadInput, "status must be draft or submitted")
	}
	if err := permit(p, authz.AssessmentRead, authz.Target{OrgID: filter.OrgID}); err != nil {
		return nil, nil, err
	}
	items, total, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list assessments")
	}
	if items == nil {
		items = []models.Assessment{}
	}
	return items, models.NewPagination(filter.Limit, filter.Offset, total), nil
}

// Update changes name or language of a draft assessment.
func (s *AssessmentService) Update(ctx context.Context, p *models.Principal, id string, req dto.UpdateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	var out *models.Assessment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		a, err := lockAssessment(ctx, s.assessments, exec, id)
		if err != nil {
			return err
		}
		if err := permit(p, authz.AssessmentUpdate, assessmentTarget(a)); err != nil {
			return err
		}
		update := models.AssessmentUpdate{Name: req.Name, Language: req.Language}
		if update.Language != nil {
			lang := strings.ToLower(strings.TrimSpace(*update.Language))
			update.Language = &lang
		}
		if err := s.assessments.Update(ctx, exec, id, update); err != nil {
			return lookupErr(err, "assessment not found", "failed to update assessment")
		}
		out, err = s.assessments.FindByID(ctx, exec, id)
		if err != nil {
			return appErrors.Internal(err, "failed to reload assessment")
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update assessment")
	}
	reqcache.Forget(ctx, assessmentMemoKey(id))
	return out, nil
}

// Delete removes a draft assessment with its responses and draft submission.
func (s *AssessmentService) Delete(ctx context.Context, p *models.Principal, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		a, err := lockAssessment(ctx, s.assessments, exec, id)
		if err != nil {
			return err
		}
		if err := permit(p, authz.AssessmentDelete, assessmentTarget(a)); err != nil {
			return err
		}
		if err := s.assessments.Delete(ctx, exec, id); err != nil {
			return lookupErr(err, "assessment not found", "failed to delete assessment")
		}
		return nil
	})
	if err != nil {
		return passThrough(err, "failed to delete assessment")
	}
	reqcache.Forget(ctx, assessmentMemoKey(id))
	s.logger.Info("assessment deleted", zap.String("assessment_id", id), zap.String("by", p.UserID))
	return nil
}
