package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/internal/repository"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	"github.com/noah-isme/sustainability-assessment-api/pkg/storage"
)

// memDB is an in-memory stand-in for the relational schema. It emulates the
// unique and foreign key constraints the services rely on.
type memDB struct {
	mu      sync.Mutex
	seq     int
	base    time.Time
	txLock  sync.Mutex
	failDup bool

	categories    map[string]models.CategoryCatalog
	orgCategories map[string][]models.OrganizationCategory
	questions     map[string]models.Question
	revisions     map[string]models.QuestionRevision
	assessments   map[string]models.Assessment
	responses     map[string]models.Response
	files         map[string]models.File
	links         map[linkKey]models.ResponseFile
	temps         map[string]models.TempSubmission
	finals        map[string]models.AssessmentSubmission
	reports       map[string]models.SubmissionReport
}

type linkKey struct{ response, file string }

func newMemDB() *memDB {
	return &memDB{
		base:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		categories:    map[string]models.CategoryCatalog{},
		orgCategories: map[string][]models.OrganizationCategory{},
		questions:     map[string]models.Question{},
		revisions:     map[string]models.QuestionRevision{},
		assessments:   map[string]models.Assessment{},
		responses:     map[string]models.Response{},
		files:         map[string]models.File{},
		links:         map[linkKey]models.ResponseFile{},
		temps:         map[string]models.TempSubmission{},
		finals:        map[string]models.AssessmentSubmission{},
		reports:       map[string]models.SubmissionReport{},
	}
}

// next returns a fresh id and a strictly increasing timestamp. Callers hold mu.
func (db *memDB) next(prefix string) (string, time.Time) {
	db.seq++
	return fmt.Sprintf("%s-%03d", prefix, db.seq), db.base.Add(time.Duration(db.seq) * time.Second)
}

func noRows(op string) error { return fmt.Errorf("%s: %w", op, sql.ErrNoRows) }
func duplicate(op string) error {
	return fmt.Errorf("%s: %w", op, database.ErrDuplicate)
}
func referenced(op string) error {
	return fmt.Errorf("%s: %w", op, database.ErrReferenced)
}

type memSnapshot struct {
	categories    map[string]models.CategoryCatalog
	orgCategories map[string][]models.OrganizationCategory
	questions     map[string]models.Question
	revisions     map[string]models.QuestionRevision
	assessments   map[string]models.Assessment
	responses     map[string]models.Response
	files         map[string]models.File
	links         map[linkKey]models.ResponseFile
	temps         map[string]models.TempSubmission
	finals        map[string]models.AssessmentSubmission
	reports       map[string]models.SubmissionReport
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		categories:    cloneMap(db.categories),
		orgCategories: cloneMap(db.orgCategories),
		questions:     cloneMap(db.questions),
		revisions:     cloneMap(db.revisions),
		assessments:   cloneMap(db.assessments),
		responses:     cloneMap(db.responses),
		files:         cloneMap(db.files),
		links:         cloneMap(db.links),
		temps:         cloneMap(db.temps),
		finals:        cloneMap(db.finals),
		reports:       cloneMap(db.reports),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.categories = s.categories
	db.orgCategories = s.orgCategories
	db.questions = s.questions
	db.revisions = s.revisions
	db.assessments = s.assessments
	db.responses = s.responses
	db.files = s.files
	db.links = s.links
	db.temps = s.temps
	db.finals = s.finals
	db.reports = s.reports
}

// memTx serializes transactions, which stands in for row locks, and rolls back on error.
type memTx struct{ db *memDB }

func (t memTx) WithinTx(ctx context.Context, fn database.TxFunc) error {
	t.db.txLock.Lock()
	defer t.db.txLock.Unlock()
	snap := t.db.snapshot()
	if err := fn(ctx, nil); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

// --- catalog ---

type memCategories struct{ db *memDB }

func (m memCategories) List(_ context.Context, activeOnly bool) ([]models.CategoryCatalog, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.CategoryCatalog{}
	for _, c := range m.db.categories {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memCategories) FindByID(_ context.Context, id string) (*models.CategoryCatalog, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.categories[id]
	if !ok {
		return nil, noRows("find category")
	}
	return &c, nil
}

func (m memCategories) nameTaken(name, except string) bool {
	for id, c := range m.db.categories {
		if id != except && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (m memCategories) Create(_ context.Context, item *models.CategoryCatalog) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.nameTaken(item.Name, "") {
		return duplicate("create category")
	}
	id, now := m.db.next("cat")
	if item.ID == "" {
		item.ID = id
	}
	item.CreatedAt, item.UpdatedAt = now, now
	m.db.categories[item.ID] = *item
	return nil
}

func (m memCategories) Update(_ context.Context, item *models.CategoryCatalog) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.categories[item.ID]; !ok {
		return noRows("update category")
	}
	if m.nameTaken(item.Name, item.ID) {
		return duplicate("update category")
	}
	m.db.categories[item.ID] = *item
	return nil
}

func (m memCategories) Delete(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.categories[id]; !ok {
		return noRows("delete category")
	}
	for _, q := range m.db.questions {
		if q.CategoryID == id {
			return referenced("delete category")
		}
	}
	for _, items := range m.db.orgCategories {
		for _, it := range items {
			if it.CatalogID == id {
				return referenced("delete category")
			}
		}
	}
	delete(m.db.categories, id)
	return nil
}

func (m memCategories) ListByIDs(_ context.Context, ids []string) ([]models.CategoryCatalog, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.CategoryCatalog{}
	for _, id := range ids {
		if c, ok := m.db.categories[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memCategories) ListOrganization(_ context.Context, orgID string) ([]models.OrganizationCategory, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return append([]models.OrganizationCategory(nil), m.db.orgCategories[orgID]...), nil
}

func (m memCategories) ReplaceOrganization(_ context.Context, _ execer, orgID string, items []models.OrganizationCategory) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	stored := make([]models.OrganizationCategory, 0, len(items))
	for _, it := range items {
		id, now := m.db.next("orgcat")
		it.ID, it.OrgID, it.CreatedAt, it.UpdatedAt = id, orgID, now, now
		stored = append(stored, it)
	}
	m.db.orgCategories[orgID] = stored
	return nil
}

// --- questions ---

type memQuestions struct{ db *memDB }

func (m memQuestions) CreateQuestion(_ context.Context, _ execer, q *models.Question) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.categories[q.CategoryID]; !ok {
		return referenced("create question")
	}
	id, now := m.db.next("q")
	if q.ID == "" {
		q.ID = id
	}
	q.CreatedAt = now
	m.db.questions[q.ID] = *q
	return nil
}

func (m memQuestions) UpdateCategory(_ context.Context, _ execer, questionID, categoryID string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	q, ok := m.db.questions[questionID]
	if !ok {
		return noRows("update question category")
	}
	if _, ok := m.db.categories[categoryID]; !ok {
		return referenced("update question category")
	}
	q.CategoryID = categoryID
	m.db.questions[questionID] = q
	return nil
}

func (m memQuestions) InsertRevision(_ context.Context, _ execer, rev *models.QuestionRevision) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.questions[rev.QuestionID]; !ok {
		return referenced("insert revision")
	}
	id, now := m.db.next("rev")
	if rev.ID == "" {
		rev.ID = id
	}
	rev.CreatedAt = now
	m.db.revisions[rev.ID] = *rev
	return nil
}

func (m memQuestions) FindQuestion(_ context.Context, _ execer, id string) (*models.QuestionWithRevision, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	q, ok := m.db.questions[id]
	if !ok {
		return nil, noRows("find question")
	}
	return &models.QuestionWithRevision{Question: q, CategoryName: m.db.categories[q.CategoryID].Name}, nil
}

func (m memQuestions) revisionsOf(questionID string) []models.QuestionRevision {
	out := []models.QuestionRevision{}
	for _, r := range m.db.revisions {
		if r.QuestionID == questionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m memQuestions) LatestRevision(_ context.Context, _ execer, questionID string) (*models.QuestionRevision, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	revs := m.revisionsOf(questionID)
	if len(revs) == 0 {
		return nil, noRows("latest revision")
	}
	return &revs[0], nil
}

func (m memQuestions) FindRevision(_ context.Context, id string) (*models.QuestionRevision, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.revisions[id]
	if !ok {
		return nil, noRows("find revision")
	}
	return &r, nil
}

func (m memQuestions) ListRevisions(_ context.Context, questionID string) ([]models.QuestionRevision, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.revisionsOf(questionID), nil
}

func (m memQuestions) List(_ context.Context, filter models.QuestionFilter) ([]models.QuestionWithRevision, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.QuestionWithRevision{}
	for _, q := range m.db.questions {
		if filter.CategoryID != "" && q.CategoryID != filter.CategoryID {
			continue
		}
		item := models.QuestionWithRevision{Question: q, CategoryName: m.db.categories[q.CategoryID].Name}
		if revs := m.revisionsOf(q.ID); len(revs) > 0 {
			item.Revision = &revs[0]
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m memQuestions) revisionReferenced(revisionID string) bool {
	for _, r := range m.db.responses {
		if r.RevisionID == revisionID {
			return true
		}
	}
	return false
}

func (m memQuestions) RevisionReferenced(_ context.Context, _ execer, revisionID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.revisionReferenced(revisionID), nil
}

func (m memQuestions) LockRevision(ctx context.Context, _ execer, revisionID string) (*models.QuestionRevision, error) {
	return m.FindRevision(ctx, revisionID)
}

func (m memQuestions) DeleteRevision(_ context.Context, _ execer, revisionID string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.revisions[revisionID]; !ok {
		return noRows("delete revision")
	}
	if m.revisionReferenced(revisionID) {
		return referenced("delete revision")
	}
	delete(m.db.revisions, revisionID)
	return nil
}

func (m memQuestions) RevisionCategories(_ context.Context, _ execer, ids []string) (map[string]models.RevisionCategory, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make(map[string]models.RevisionCategory, len(ids))
	for _, id := range ids {
		rev, ok := m.db.revisions[id]
		if !ok {
			continue
		}
		q := m.db.questions[rev.QuestionID]
		out[id] = models.RevisionCategory{
			RevisionID:   id,
			QuestionID:   q.ID,
			CategoryID:   q.CategoryID,
			CategoryName: m.db.categories[q.CategoryID].Name,
		}
	}
	return out, nil
}

// --- assessments ---

type memAssessments struct{ db *memDB }

func (m memAssessments) withStatus(a models.Assessment) *models.Assessment {
	a.Status = models.AssessmentStatusDraft
	if _, ok := m.db.finals[a.ID]; ok {
		a.Status = models.AssessmentStatusSubmitted
	}
	return &a
}

func (m memAssessments) Create(_ context.Context, a *models.Assessment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	id, now := m.db.next("asm")
	if a.ID == "" {
		a.ID = id
	}
	a.CreatedAt, a.UpdatedAt = now, now
	a.Status = models.AssessmentStatusDraft
	m.db.assessments[a.ID] = *a
	return nil
}

func (m memAssessments) FindByID(_ context.Context, _ execer, id string) (*models.Assessment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.assessments[id]
	if !ok {
		return nil, noRows("find assessment")
	}
	return m.withStatus(a), nil
}

func (m memAssessments) LockByID(ctx context.Context, exec execer, id string) (*models.Assessment, error) {
	return m.FindByID(ctx, exec, id)
}

func (m memAssessments) List(_ context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.Assessment{}
	for _, a := range m.db.assessments {
		if filter.OrgID != "" && a.OrgID != filter.OrgID {
			continue
		}
		full := m.withStatus(a)
		if filter.Status != "" && full.Status != filter.Status {
			continue
		}
		out = append(out, *full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m memAssessments) Update(_ context.Context, _ execer, id string, update models.AssessmentUpdate) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.assessments[id]
	if !ok {
		return noRows("update assessment")
	}
	if update.Name != nil {
		a.Name = *update.Name
	}
	if update.Language != nil {
		a.Language = *update.Language
	}
	_, a.UpdatedAt = m.db.next("touch")
	m.db.assessments[id] = a
	return nil
}

func (m memAssessments) Touch(_ context.Context, _ execer, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.assessments[id]
	if !ok {
		return noRows("touch assessment")
	}
	_, a.UpdatedAt = m.db.next("touch")
	m.db.assessments[id] = a
	return nil
}

func (m memAssessments) Delete(_ context.Context, _ execer, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.assessments[id]; !ok {
		return noRows("delete assessment")
	}
	delete(m.db.assessments, id)
	delete(m.db.temps, id)
	for rid, r := range m.db.responses {
		if r.AssessmentID == id {
			delete(m.db.responses, rid)
			for k := range m.db.links {
				if k.response == rid {
					delete(m.db.links, k)
				}
			}
		}
	}
	return nil
}

// --- responses ---

type memResponses struct{ db *memDB }

func (m memResponses) latestVersion(assessmentID, revisionID string) int {
	max := 0
	for _, r := range m.db.responses {
		if r.AssessmentID == assessmentID && r.RevisionID == revisionID && r.Version > max {
			max = r.Version
		}
	}
	return max
}

func (m memResponses) LatestVersion(_ context.Context, _ execer, assessmentID, revisionID string) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.latestVersion(assessmentID, revisionID), nil
}

func (m memResponses) Insert(_ context.Context, _ execer, resp *models.Response) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failDup {
		return duplicate("insert response")
	}
	if _, ok := m.db.revisions[resp.RevisionID]; !ok {
		return referenced("insert response")
	}
	if _, ok := m.db.assessments[resp.AssessmentID]; !ok {
		return referenced("insert response")
	}
	for _, r := range m.db.responses {
		if r.AssessmentID == resp.AssessmentID && r.RevisionID == resp.RevisionID && r.Version == resp.Version {
			return duplicate("insert response")
		}
	}
	id, now := m.db.next("resp")
	if resp.ID == "" {
		resp.ID = id
	}
	resp.UpdatedAt = now
	m.db.responses[resp.ID] = *resp
	return nil
}

func (m memResponses) FindByID(_ context.Context, _ execer, id string) (*models.Response, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.responses[id]
	if !ok {
		return nil, noRows("find response")
	}
	return &r, nil
}

func (m memResponses) FindLatest(_ context.Context, _ execer, assessmentID, revisionID string) (*models.Response, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	v := m.latestVersion(assessmentID, revisionID)
	for _, r := range m.db.responses {
		if r.AssessmentID == assessmentID && r.RevisionID == revisionID && r.Version == v {
			return &r, nil
		}
	}
	return nil, noRows("find latest response")
}

func (m memResponses) ListLatest(_ context.Context, _ execer, assessmentID string) ([]models.Response, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	latest := map[string]models.Response{}
	for _, r := range m.db.responses {
		if r.AssessmentID != assessmentID {
			continue
		}
		if cur, ok := latest[r.RevisionID]; !ok || r.Version > cur.Version {
			latest[r.RevisionID] = r
		}
	}
	out := make([]models.Response, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionID < out[j].RevisionID })
	return out, nil
}

func (m memResponses) ListHistory(_ context.Context, assessmentID, revisionID string) ([]models.Response, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.Response{}
	for _, r := range m.db.responses {
		if r.AssessmentID == assessmentID && r.RevisionID == revisionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m memResponses) Delete(_ context.Context, _ execer, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.responses[id]; !ok {
		return noRows("delete response")
	}
	delete(m.db.responses, id)
	for k := range m.db.links {
		if k.response == id {
			delete(m.db.links, k)
		}
	}
	return nil
}

// --- files ---

type memFiles struct{ db *memDB }

func (m memFiles) Create(_ context.Context, f *models.File) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if f.ID == "" {
		f.ID, _ = m.db.next("file")
	}
	m.db.files[f.ID] = *f
	return nil
}

func (m memFiles) FindByID(_ context.Context, _ execer, id string) (*models.File, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	f, ok := m.db.files[id]
	if !ok {
		return nil, noRows("find file")
	}
	return &f, nil
}

func (m memFiles) LockByID(ctx context.Context, exec execer, id string) (*models.File, error) {
	return m.FindByID(ctx, exec, id)
}

func (m memFiles) refs(fileID string) []string {
	out := []string{}
	for k := range m.db.links {
		if k.file == fileID {
			out = append(out, k.response)
		}
	}
	sort.Strings(out)
	return out
}

func (m memFiles) ReferencingResponses(_ context.Context, _ execer, fileID string) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.refs(fileID), nil
}

func (m memFiles) Delete(_ context.Context, _ execer, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.files[id]; !ok {
		return noRows("delete file")
	}
	if len(m.refs(id)) > 0 {
		return referenced("delete file")
	}
	delete(m.db.files, id)
	return nil
}

func (m memFiles) Link(_ context.Context, _ execer, link *models.ResponseFile) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.responses[link.ResponseID]; !ok {
		return referenced("link file")
	}
	if _, ok := m.db.files[link.FileID]; !ok {
		return referenced("link file")
	}
	key := linkKey{link.ResponseID, link.FileID}
	if _, ok := m.db.links[key]; ok {
		return duplicate("link file")
	}
	m.db.links[key] = *link
	return nil
}

func (m memFiles) Unlink(_ context.Context, _ execer, responseID, fileID string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	key := linkKey{responseID, fileID}
	if _, ok := m.db.links[key]; !ok {
		return noRows("unlink file")
	}
	delete(m.db.links, key)
	return nil
}

func (m memFiles) ListForResponses(_ context.Context, _ execer, responseIDs []string) ([]models.LinkedFile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	wanted := make(map[string]struct{}, len(responseIDs))
	for _, id := range responseIDs {
		wanted[id] = struct{}{}
	}
	out := []models.LinkedFile{}
	for k := range m.db.links {
		if _, ok := wanted[k.response]; ok {
			out = append(out, models.LinkedFile{File: m.db.files[k.file], ResponseID: k.response})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- submissions ---

type memSubmissions struct{ db *memDB }

func (m memSubmissions) FindTemp(_ context.Context, _ execer, assessmentID string) (*models.TempSubmission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.temps[assessmentID]
	if !ok {
		return nil, noRows("find temp submission")
	}
	return &s, nil
}

func (m memSubmissions) LockTemp(ctx context.Context, exec execer, assessmentID string) (*models.TempSubmission, error) {
	return m.FindTemp(ctx, exec, assessmentID)
}

func (m memSubmissions) InsertTemp(_ context.Context, _ execer, sub *models.TempSubmission) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.temps[sub.AssessmentID]; ok {
		return duplicate("insert temp submission")
	}
	m.db.temps[sub.AssessmentID] = *sub
	return nil
}

func (m memSubmissions) UpdateTempContent(_ context.Context, _ execer, assessmentID string, content models.SubmissionContent, submittedAt time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.temps[assessmentID]
	if !ok {
		return noRows("update temp submission")
	}
	s.Content = content
	s.SubmittedAt = submittedAt
	m.db.temps[assessmentID] = s
	return nil
}

func (m memSubmissions) UpdateTempReview(_ context.Context, _ execer, assessmentID string, status models.ReviewStatus, reviewedAt *time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.temps[assessmentID]
	if !ok {
		return noRows("review temp submission")
	}
	s.Status, s.ReviewedAt = status, reviewedAt
	m.db.temps[assessmentID] = s
	return nil
}

func (m memSubmissions) FinalExists(_ context.Context, _ execer, assessmentID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	_, ok := m.db.finals[assessmentID]
	return ok, nil
}

func (m memSubmissions) InsertFinal(_ context.Context, _ execer, sub *models.AssessmentSubmission) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.finals[sub.SubmissionID]; ok {
		return duplicate("insert final submission")
	}
	m.db.finals[sub.SubmissionID] = *sub
	return nil
}

func (m memSubmissions) FindFinal(_ context.Context, _ execer, id string) (*models.AssessmentSubmission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.finals[id]
	if !ok {
		return nil, noRows("find final submission")
	}
	return &s, nil
}

func (m memSubmissions) ListFinal(_ context.Context, filter models.SubmissionFilter) ([]models.AssessmentSubmission, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var orgs map[string]struct{}
	if filter.OrgIDs != nil {
		orgs = map[string]struct{}{}
		for _, id := range filter.OrgIDs {
			orgs[id] = struct{}{}
		}
	}
	out := []models.AssessmentSubmission{}
	for _, s := range m.db.finals {
		if orgs != nil {
			if _, ok := orgs[s.OrgID]; !ok {
				continue
			}
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	return out, len(out), nil
}

func (m memSubmissions) UpdateFinalReview(_ context.Context, _ execer, id string, status models.ReviewStatus, reviewedAt *time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.finals[id]
	if !ok {
		return noRows("review final submission")
	}
	s.Status, s.ReviewedAt = status, reviewedAt
	m.db.finals[id] = s
	return nil
}

func (m memSubmissions) DeleteFinal(_ context.Context, _ execer, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.finals[id]; !ok {
		return noRows("delete final submission")
	}
	delete(m.db.finals, id)
	for rid, r := range m.db.reports {
		if r.SubmissionID == id {
			delete(m.db.reports, rid)
		}
	}
	return nil
}

// --- reports ---

type memReports struct{ db *memDB }

func (m memReports) Create(_ context.Context, report *models.SubmissionReport) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.finals[report.SubmissionID]; !ok {
		return referenced("create report")
	}
	if report.ID == "" {
		report.ID, _ = m.db.next("report")
	}
	m.db.reports[report.ID] = *report
	return nil
}

func (m memReports) GetByID(_ context.Context, _ execer, id string) (*models.SubmissionReport, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.reports[id]
	if !ok {
		return nil, noRows("get report")
	}
	return &r, nil
}

func (m memReports) ListBySubmission(_ context.Context, submissionID string) ([]models.SubmissionReport, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.SubmissionReport{}
	for _, r := range m.db.reports {
		if r.SubmissionID == submissionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memReports) Update(_ context.Context, _ execer, id string, params repository.UpdateReportParams) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.reports[id]
	if !ok || (params.FromStatus != nil && r.Status != *params.FromStatus) {
		return noRows("update report")
	}
	if params.Status != nil {
		r.Status = *params.Status
	}
	if params.Data != nil {
		data := *params.Data
		r.Data = &data
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		r.ErrorMessage = &msg
	}
	if params.GeneratedAt != nil {
		r.GeneratedAt = *params.GeneratedAt
	}
	m.db.reports[id] = r
	return nil
}

func (m memReports) SetRecommendation(_ context.Context, _ execer, id, category, text string) (*models.ReportData, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.reports[id]
	if !ok || r.Status != models.ReportStatusCompleted {
		return nil, noRows("set recommendation")
	}
	data := models.ReportData{}
	if r.Data != nil {
		data = *r.Data
	}
	recs := make(map[string]string, len(data.Recommendations)+1)
	for k, v := range data.Recommendations {
		recs[k] = v
	}
	recs[category] = text
	data.Recommendations = recs
	r.Data = &data
	m.db.reports[id] = r
	out := data
	return &out, nil
}

func (m memReports) Delete(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.reports[id]; !ok {
		return noRows("delete report")
	}
	delete(m.db.reports, id)
	return nil
}

func (m memReports) ListGenerating(_ context.Context, limit int) ([]models.SubmissionReport, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.SubmissionReport{}
	for _, r := range m.db.reports {
		if r.Status == models.ReportStatusGenerating {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- blobs ---

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{blobs: map[string][]byte{}} }

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

func (b *memBlobs) Save(key string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.Contains(key, "..") {
		return "", storage.ErrInvalidPath
	}
	b.blobs[key] = append([]byte(nil), data...)
	return key, nil
}

func (b *memBlobs) Open(key string) (io.ReadSeekCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, fmt.Errorf("open blob %s: not found", key)
	}
	return readSeekNopCloser{bytes.NewReader(data)}, nil
}

func (b *memBlobs) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[key]
	return ok
}
