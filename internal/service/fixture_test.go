package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/storage"
)

const (
	orgID      = "org-1"
	otherOrgID = "org-2"
	catEnv     = "cat-env"
	catSocial  = "cat-social"
	revEnv     = "rev-env"
	revEnv2    = "rev-env-2"
	revSocial  = "rev-social"
)

type engine struct {
	db          *memDB
	blobs       *memBlobs
	signer      *storage.SignedURLSigner
	catalog     *CatalogService
	questions   *QuestionService
	assessments *AssessmentService
	responses   *ResponseService
	files       *FileService
	submissions *SubmissionService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db := newMemDB()
	seedCatalog(db)

	tx := memTx{db: db}
	assessments := memAssessments{db: db}
	responses := memResponses{db: db}
	questions := memQuestions{db: db}
	files := memFiles{db: db}
	submissions := memSubmissions{db: db}
	blobs := newMemBlobs()
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	logger := zap.NewNop()

	return &engine{
		db:          db,
		blobs:       blobs,
		signer:      signer,
		catalog:     NewCatalogService(memCategories{db: db}, tx, nil, nil, logger),
		questions:   NewQuestionService(questions, tx, nil, nil, logger),
		assessments: NewAssessmentService(assessments, responses, files, tx, nil, logger),
		responses:   NewResponseService(assessments, responses, questions, files, tx, nil, nil, logger),
		files: NewFileService(files, responses, assessments, blobs, signer, tx, FileServiceConfig{
			MaxUploadBytes:  1024,
			AllowedMIMEs:    []string{"application/pdf", "text/plain", "image/png", "text/csv"},
			DownloadBaseURL: "/api/v1/files/download",
		}, logger),
		submissions: NewSubmissionService(assessments, responses, questions, files, submissions, tx, nil, nil, logger),
	}
}

func seedCatalog(db *memDB) {
	created := db.base
	db.categories[catEnv] = models.CategoryCatalog{ID: catEnv, Name: "env", TemplateID: "tpl", IsActive: true, CreatedAt: created, UpdatedAt: created}
	db.categories[catSocial] = models.CategoryCatalog{ID: catSocial, Name: "social", TemplateID: "tpl", IsActive: true, CreatedAt: created, UpdatedAt: created}
	db.questions["q-env"] = models.Question{ID: "q-env", CategoryID: catEnv, CreatedAt: created}
	db.questions["q-env-2"] = models.Question{ID: "q-env-2", CategoryID: catEnv, CreatedAt: created}
	db.questions["q-social"] = models.Question{ID: "q-social", CategoryID: catSocial, CreatedAt: created}
	db.revisions[revEnv] = models.QuestionRevision{ID: revEnv, QuestionID: "q-env", Text: models.LocalizedText{"en": "Energy use?"}, Weight: 2, CreatedAt: created}
	db.revisions[revEnv2] = models.QuestionRevision{ID: revEnv2, QuestionID: "q-env-2", Text: models.LocalizedText{"en": "Water use?"}, Weight: 1, CreatedAt: created}
	db.revisions[revSocial] = models.QuestionRevision{ID: revSocial, QuestionID: "q-social", Text: models.LocalizedText{"en": "Diversity policy?"}, Weight: 1, CreatedAt: created}
}

func orgAdmin(id string) *models.Principal {
	return &models.Principal{
		UserID:        id,
		Username:      id,
		Organizations: map[string]models.OrgMembership{orgID: {Name: "Acme", Roles: []string{models.RoleOrganizationAdmin}}},
	}
}

func orgUser(id string, categories ...string) *models.Principal {
	return &models.Principal{
		UserID:        id,
		Username:      id,
		Organizations: map[string]models.OrgMembership{orgID: {Name: "Acme", Roles: []string{models.RoleOrganizationUser}, Categories: categories}},
	}
}

func appAdmin() *models.Principal {
	return &models.Principal{UserID: "app-admin", Username: "app-admin", IsApplicationAdmin: true}
}

func superUser() *models.Principal {
	return &models.Principal{UserID: "root", Username: "root", IsSuperUser: true}
}

func outsider() *models.Principal {
	return &models.Principal{
		UserID:        "stranger",
		Organizations: map[string]models.OrgMembership{otherOrgID: {Roles: []string{models.RoleOrganizationAdmin}}},
	}
}

func (e *engine) createAssessment(t *testing.T) *models.Assessment {
	t.Helper()
	a, err := e.assessments.Create(context.Background(), orgAdmin("admin-a"), dto.CreateAssessmentRequest{OrgID: orgID, Language: "en", Name: "Q3"})
	require.NoError(t, err)
	return a
}

func (e *engine) answer(t *testing.T, p *models.Principal, assessmentID string, pairs ...string) []models.Response {
	t.Helper()
	items := make([]dto.ResponseItem, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, dto.ResponseItem{RevisionID: pairs[i], Text: pairs[i+1]})
	}
	out, err := e.responses.CreateOrReplaceMany(context.Background(), p, assessmentID, dto.CreateResponsesRequest{Responses: items})
	require.NoError(t, err)
	return out
}

func (e *engine) upload(t *testing.T, p *models.Principal, name string, data []byte) *models.File {
	t.Helper()
	f, err := e.files.Upload(context.Background(), p, FileUpload{OrgID: orgID, Filename: name, Data: data})
	require.NoError(t, err)
	return f
}

func (e *engine) finalize(t *testing.T, assessmentID string) *models.AssessmentSubmission {
	t.Helper()
	ctx := context.Background()
	_, err := e.submissions.SubmitDraft(ctx, orgUser("user-fin", "env", "social"), assessmentID)
	require.NoError(t, err)
	sub, err := e.submissions.Finalize(ctx, orgAdmin("admin-a"), assessmentID)
	require.NoError(t, err)
	return sub
}
