package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

type questionStore interface {
	CreateQuestion(ctx context.Context, exec execer, q *models.Question) error
	UpdateCategory(ctx context.Context, exec execer, questionID, categoryID string) error
	InsertRevision(ctx context.Context, exec execer, rev *models.QuestionRevision) error
	FindQuestion(ctx context.Context, exec execer, id string) (*models.QuestionWithRevision, error)
	LatestRevision(ctx context.Context, exec execer, questionID string) (*models.QuestionRevision, error)
	FindRevision(ctx context.Context, id string) (*models.QuestionRevision, error)
	ListRevisions(ctx context.Context, questionID string) ([]models.QuestionRevision, error)
	List(ctx context.Context, filter models.QuestionFilter) ([]models.QuestionWithRevision, int, error)
	RevisionReferenced(ctx context.Context, exec execer, revisionID string) (bool, error)
	LockRevision(ctx context.Context, exec execer, revisionID string) (*models.QuestionRevision, error)
	DeleteRevision(ctx context.Context, exec execer, revisionID string) error
	RevisionCategories(ctx context.Context, exec execer, revisionIDs []string) (map[string]models.RevisionCategory, error)
}

// QuestionService manages questions and their immutable revisions.
type QuestionService struct {
	repo      questionStore
	tx        database.Transactor
	cache     *CatalogCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestionService constructs the service.
func NewQuestionService(repo questionStore, tx database.Transactor, cache *CatalogCache, validate *validator.Validate, logger *zap.Logger) *QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionService{repo: repo, tx: tx, cache: cache, validator: newValidator(validate), logger: logger}
}

type questionPage struct {
	Items []models.QuestionWithRevision `json:"items"`
	Total int                           `json:"total"`
}

// List returns questions with their latest revision.
func (s *QuestionService) List(ctx context.Context, p *models.Principal, filter models.QuestionFilter) ([]models.QuestionWithRevision, *models.Pagination, error) {
	if err := permit(p, authz.CatalogRead, authz.Target{}); err != nil {
		return nil, nil, err
	}
	key := catalogKey(scopeQuestions, filter.CategoryID, strconv.Itoa(filter.Limit), strconv.Itoa(filter.Offset))
	page, err := readThrough(ctx, s.cache, key, func() (questionPage, error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return questionPage{}, appErrors.Internal(err, "failed to list questions")
		}
		if items == nil {
			items = []models.QuestionWithRevision{}
		}
		return questionPage{Items: items, Total: total}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return page.Items, models.NewPagination(filter.Limit, filter.Offset, page.Total), nil
}

// Get returns a question with its latest revision, or with revisionID when given.
// A revision that belongs to another question is reported as not found.
func (s *QuestionService) Get(ctx context.Context, p *models.Principal, questionID, revisionID string) (*models.QuestionWithRevision, error) {
	if err := permit(p, authz.CatalogRead, authz.Target{}); err != nil {
		return nil, err
	}
	q, err := s.repo.FindQuestion(ctx, nil, questionID)
	if err != nil {
		return nil, lookupErr(err, "question not found", "failed to load question")
	}
	var rev *models.QuestionRevision
	if revisionID != "" {
		rev, err = s.repo.FindRevision(ctx, revisionID)
		if err != nil {
			return nil, lookupErr(err, "revision not found", "failed to load revision")
		}
		if rev.QuestionID != questionID {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "revision does not belong to question")
		}
	} else {
		rev, err = s.repo.LatestRevision(ctx, nil, questionID)
		if err != nil {
			return nil, lookupErr(err, "question has no revisions", "failed to load revision")
		}
	}
	q.Revision = rev
	return q, nil
}

// Revisions lists every revision of a question, newest first.
func (s *QuestionService) Revisions(ctx context.Context, p *models.Principal, questionID string) ([]models.QuestionRevision, error) {
	if err := permit(p, authz.CatalogRead, authz.Target{}); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindQuestion(ctx, nil, questionID); err != nil {
		return nil, lookupErr(err, "question not found", "failed to load question")
	}
	revs, err := s.repo.ListRevisions(ctx, questionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list revisions")
	}
	return revs, nil
}

// Create inserts a question and its first revision atomically.
func (s *QuestionService) Create(ctx context.Context, p *models.Principal, req dto.CreateQuestionRequest) (*models.QuestionWithRevision, error) {
	if err := permit(p, authz.CatalogWrite, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	q := &models.Question{CategoryID: req.CategoryID}
	rev := &models.QuestionRevision{Text: models.LocalizedText(req.Text), Weight: req.Weight}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		if err := s.repo.CreateQuestion(ctx, exec, q); err != nil {
			return categoryRefErr(err, "failed to create question")
		}
		rev.QuestionID = q.ID
		if err := s.repo.InsertRevision(ctx, exec, rev); err != nil {
			return appErrors.Internal(err, "failed to create revision")
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to create question")
	}
	s.invalidate(ctx)
	return &models.QuestionWithRevision{Question: *q, Revision: rev}, nil
}

// Update appends a new revision and optionally moves the question to another category.
// Earlier revisions are left untouched.
func (s *QuestionService) Update(ctx context.Context, p *models.Principal, questionID string, req dto.UpdateQuestionRequest) (*models.QuestionWithRevision, error) {
	if err := permit(p, authz.CatalogWrite, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	var out *models.QuestionWithRevision
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		q, err := s.repo.FindQuestion(ctx, exec, questionID)
		if err != nil {
			return lookupErr(err, "question not found", "failed to load question")
		}
		if req.CategoryID != nil && *req.CategoryID != q.CategoryID {
			if err := s.repo.UpdateCategory(ctx, exec, questionID, *req.CategoryID); err != nil {
				return categoryRefErr(err, "failed to update question category")
			}
			q.CategoryID = *req.CategoryID
			q.CategoryName = ""
		}
		rev := &models.QuestionRevision{QuestionID: questionID, Text: models.LocalizedText(req.Text), Weight: req.Weight}
		if err := s.repo.InsertRevision(ctx, exec, rev); err != nil {
			return appErrors.Internal(err, "failed to create revision")
		}
		q.Revision = rev
		out = q
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update question")
	}
	s.invalidate(ctx)
	return out, nil
}

// DeleteRevision removes a revision no response references.
func (s *QuestionService) DeleteRevision(ctx context.Context, p *models.Principal, revisionID string) error {
	if err := permit(p, authz.CatalogWrite, authz.Target{}); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		if _, err := s.repo.LockRevision(ctx, exec, revisionID); err != nil {
			return lookupErr(err, "revision not found", "failed to load revision")
		}
		referenced, err := s.repo.RevisionReferenced(ctx, exec, revisionID)
		if err != nil {
			return appErrors.Internal(err, "failed to check revision references")
		}
		if referenced {
			return appErrors.ErrRevisionInUse
		}
		if err := s.repo.DeleteRevision(ctx, exec, revisionID); err != nil {
			if isReferenced(err) {
				return appErrors.ErrRevisionInUse
			}
			return lookupErr(err, "revision not found", "failed to delete revision")
		}
		return nil
	})
	if err != nil {
		return passThrough(err, "failed to delete revision")
	}
	s.invalidate(ctx)
	return nil
}

func (s *QuestionService) invalidate(ctx context.Context) {
	s.cache.Evict(ctx, scopeQuestions)
}

func categoryRefErr(err error, internal string) error {
	if isReferenced(err) {
		return appErrors.Clone(appErrors.ErrBadInput, "category does not exist")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "question not found")
	}
	return appErrors.Internal(err, internal)
}
