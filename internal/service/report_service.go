package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/internal/repository"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
	"github.com/noah-isme/sustainability-assessment-api/pkg/export"
	"github.com/noah-isme/sustainability-assessment-api/pkg/jobs"
	"github.com/noah-isme/sustainability-assessment-api/pkg/storage"
)

// ReportJobType tags queue jobs that render submission reports.
const ReportJobType = "submission_report"

type reportStore interface {
	Create(ctx context.Context, report *models.SubmissionReport) error
	GetByID(ctx context.Context, exec execer, id string) (*models.SubmissionReport, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]models.SubmissionReport, error)
	Update(ctx context.Context, exec execer, id string, params repository.UpdateReportParams) error
	SetRecommendation(ctx context.Context, exec execer, id, category, text string) (*models.ReportData, error)
	Delete(ctx context.Context, id string) error
	ListGenerating(ctx context.Context, limit int) ([]models.SubmissionReport, error)
}

type finalSubmissionReader interface {
	FindFinal(ctx context.Context, exec execer, id string) (*models.AssessmentSubmission, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
	ContentType() string
	Extension() string
}

// ReportServiceConfig governs download links and restart recovery.
type ReportServiceConfig struct {
	// DownloadBaseURL prefixes signed tokens, e.g. "/api/v1/reports/download".
	DownloadBaseURL string
	RecoverBatch    int
}

// ReportDownload is an opened report blob.
type ReportDownload struct {
	Report      *models.SubmissionReport
	Reader      io.ReadSeekCloser
	Filename    string
	ContentType string
}

// ReportService manages the submission report lifecycle.
type ReportService struct {
	reports     reportStore
	submissions finalSubmissionReader
	queue       jobDispatcher
	blobs       blobStore
	signer      urlSigner
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ReportServiceConfig
	now         func() time.Time
}

// NewReportService constructs the report service. A nil queue leaves reports in
// generating for an external renderer to complete.
func NewReportService(reports reportStore, submissions finalSubmissionReader, queue jobDispatcher, blobs blobStore, signer urlSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecoverBatch <= 0 {
		cfg.RecoverBatch = 50
	}
	return &ReportService{
		reports:     reports,
		submissions: submissions,
		queue:       queue,
		blobs:       blobs,
		signer:      signer,
		metrics:     metrics,
		validator:   newValidator(validate),
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// GenerateReport records a generating report and schedules its rendering.
func (s *ReportService) GenerateReport(ctx context.Context, p *models.Principal, submissionID string, req dto.GenerateReportRequest) (*models.SubmissionReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	sub, err := s.submissions.FindFinal(ctx, nil, submissionID)
	if err != nil {
		return nil, lookupErr(err, "submission not found", "failed to load submission")
	}
	if err := permit(p, authz.ReportGenerate, authz.Target{OrgID: sub.OrgID}); err != nil {
		return nil, err
	}
	report := &models.SubmissionReport{
		SubmissionID: submissionID,
		ReportType:   req.ReportType,
		Format:       req.Format,
		Status:       models.ReportStatusGenerating,
		GeneratedAt:  s.now().UTC(),
		RequestedBy:  p.UserID,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Internal(err, "failed to create report")
	}
	if s.queue == nil {
		return report, nil
	}
	if err := s.queue.Enqueue(jobs.Job{ID: report.ID, Type: ReportJobType}); err != nil {
		if _, markErr := s.MarkReportFailed(ctx, report.ID, "failed to enqueue report job"); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.String("report_id", report.ID), zap.Error(markErr))
		}
		return nil, appErrors.Internal(err, "failed to enqueue report job")
	}
	return report, nil
}

// MarkReportCompleted moves a generating report to completed with its data.
func (s *ReportService) MarkReportCompleted(ctx context.Context, reportID string, data models.ReportData) (*models.SubmissionReport, error) {
	status := models.ReportStatusCompleted
	now := s.now().UTC()
	empty := ""
	return s.transition(ctx, reportID, repository.UpdateReportParams{
		Status:       &status,
		Data:         &data,
		ErrorMessage: &empty,
		GeneratedAt:  &now,
	})
}

// MarkReportFailed moves a generating report to failed with a reason.
func (s *ReportService) MarkReportFailed(ctx context.Context, reportID, reason string) (*models.SubmissionReport, error) {
	status := models.ReportStatusFailed
	now := s.now().UTC()
	return s.transition(ctx, reportID, repository.UpdateReportParams{
		Status:       &status,
		ErrorMessage: &reason,
		GeneratedAt:  &now,
	})
}

func (s *ReportService) transition(ctx context.Context, reportID string, params repository.UpdateReportParams) (*models.SubmissionReport, error) {
	from := models.ReportStatusGenerating
	params.FromStatus = &from
	if err := s.reports.Update(ctx, nil, reportID, params); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to update report")
		}
		if _, findErr := s.reports.GetByID(ctx, nil, reportID); findErr != nil {
			return nil, lookupErr(findErr, "report not found", "failed to load report")
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "report is not generating")
	}
	s.metrics.ObserveReport(string(*params.Status))
	report, err := s.reports.GetByID(ctx, nil, reportID)
	if err != nil {
		return nil, lookupErr(err, "report not found", "failed to load report")
	}
	return report, nil
}

// GetReport returns one report of a submission the caller can read.
func (s *ReportService) GetReport(ctx context.Context, p *models.Principal, reportID string) (*models.SubmissionReport, error) {
	report, _, err := s.load(ctx, p, reportID, authz.ReportRead)
	return report, err
}

// ListReports returns the reports of a submission.
func (s *ReportService) ListReports(ctx context.Context, p *models.Principal, submissionID string) ([]models.SubmissionReport, error) {
	sub, err := s.submissions.FindFinal(ctx, nil, submissionID)
	if err != nil {
		return nil, lookupErr(err, "submission not found", "failed to load submission")
	}
	if err := permit(p, authz.ReportRead, authz.Target{OrgID: sub.OrgID}); err != nil {
		return nil, err
	}
	items, err := s.reports.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list reports")
	}
	if items == nil {
		items = []models.SubmissionReport{}
	}
	return items, nil
}

// DeleteReport removes a report and its rendered blob.
func (s *ReportService) DeleteReport(ctx context.Context, p *models.Principal, reportID string) error {
	report, _, err := s.load(ctx, p, reportID, authz.ReportDelete)
	if err != nil {
		return err
	}
	if err := s.reports.Delete(ctx, reportID); err != nil {
		return lookupErr(err, "report not found", "failed to delete report")
	}
	if report.Data != nil && report.Data.StorageKey != "" && s.blobs != nil {
		if err := s.blobs.Delete(report.Data.StorageKey); err != nil {
			s.logger.Warn("failed to remove report blob", zap.String("report_id", reportID), zap.Error(err))
		}
	}
	return nil
}

// UpdateRecommendation stores reviewer guidance for one category of a completed report.
func (s *ReportService) UpdateRecommendation(ctx context.Context, p *models.Principal, reportID string, req dto.RecommendationRequest) (*models.SubmissionReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	report, _, err := s.load(ctx, p, reportID, authz.ReportRecommendationUpdate)
	if err != nil {
		return nil, err
	}
	if report.Status != models.ReportStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "report is not completed")
	}
	data, err := s.reports.SetRecommendation(ctx, nil, reportID, strings.TrimSpace(req.Category), req.Text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "report is not completed")
		}
		return nil, appErrors.Internal(err, "failed to update report")
	}
	report.Data = data
	return report, nil
}

// DownloadURL issues a signed link for a completed report.
func (s *ReportService) DownloadURL(ctx context.Context, p *models.Principal, reportID string) (*dto.DownloadLinkResponse, error) {
	report, _, err := s.load(ctx, p, reportID, authz.ReportRead)
	if err != nil {
		return nil, err
	}
	if report.Status != models.ReportStatusCompleted || report.Data == nil || report.Data.StorageKey == "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "report is not ready")
	}
	token, expires, err := s.signer.Generate(storage.ScopeReport, report.ID, report.Data.StorageKey)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download link")
	}
	return &dto.DownloadLinkResponse{
		URL:       strings.TrimRight(s.cfg.DownloadBaseURL, "/") + "/" + token,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// Download validates a signed token and opens the report blob. The caller closes the reader.
func (s *ReportService) Download(ctx context.Context, token string) (*ReportDownload, error) {
	claims, err := s.signer.Parse(token, storage.ScopeReport)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	report, err := s.reports.GetByID(ctx, nil, claims.ID)
	if err != nil {
		return nil, lookupErr(err, "report not found", "failed to load report")
	}
	if report.Status != models.ReportStatusCompleted || report.Data == nil || report.Data.StorageKey != claims.Key {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	rc, err := s.blobs.Open(report.Data.StorageKey)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to open report")
	}
	return &ReportDownload{
		Report:      report,
		Reader:      rc,
		Filename:    path.Base(report.Data.StorageKey),
		ContentType: report.Data.ContentType,
	}, nil
}

// RecoverPending replays reports left generating by a previous process.
func (s *ReportService) RecoverPending(ctx context.Context) {
	if s.queue == nil {
		return
	}
	pending, err := s.reports.ListGenerating(ctx, s.cfg.RecoverBatch)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover generating reports", "error", err)
		return
	}
	for _, report := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: report.ID, Type: ReportJobType}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue report", "report_id", report.ID, "error", err)
		}
	}
}

// HandleExhausted marks a report failed once the queue gives up on it.
func (s *ReportService) HandleExhausted(ctx context.Context, job jobs.Job, cause error) {
	reason := "report generation failed"
	if cause != nil {
		reason = cause.Error()
	}
	if _, err := s.MarkReportFailed(ctx, job.ID, reason); err != nil {
		s.logger.Sugar().Warnw("failed to mark report failed", "report_id", job.ID, "error", err)
	}
}

func (s *ReportService) load(ctx context.Context, p *models.Principal, reportID string, op authz.Operation) (*models.SubmissionReport, *models.AssessmentSubmission, error) {
	report, err := s.reports.GetByID(ctx, nil, reportID)
	if err != nil {
		return nil, nil, lookupErr(err, "report not found", "failed to load report")
	}
	sub, err := s.submissions.FindFinal(ctx, nil, report.SubmissionID)
	if err != nil {
		return nil, nil, lookupErr(err, "submission not found", "failed to load submission")
	}
	if err := permit(p, op, authz.Target{OrgID: sub.OrgID}); err != nil {
		return nil, nil, err
	}
	return report, sub, nil
}

// ReportWorker renders queued reports and stores the result.
type ReportWorker struct {
	service     *ReportService
	reports     reportStore
	submissions finalSubmissionReader
	revisions   revisionCategoryStore
	blobs       blobStore
	renderers   map[models.ReportFormat]documentRenderer
	logger      *zap.Logger
}

// NewReportWorker constructs a worker.
func NewReportWorker(service *ReportService, reports reportStore, submissions finalSubmissionReader, revisions revisionCategoryStore, blobs blobStore, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{
		service:     service,
		reports:     reports,
		submissions: submissions,
		revisions:   revisions,
		blobs:       blobs,
		renderers: map[models.ReportFormat]documentRenderer{
			models.ReportFormatCSV: export.NewCSVExporter(),
			models.ReportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
	}
}

// Handle processes a queue job. Errors are retried by the queue.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	report, err := w.reports.GetByID(ctx, nil, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Info("report vanished before rendering", zap.String("report_id", job.ID))
			return nil
		}
		return err
	}
	if report.Status != models.ReportStatusGenerating {
		return nil
	}
	renderer, ok := w.renderers[report.Format]
	if !ok {
		_, err := w.service.MarkReportFailed(ctx, report.ID, "unsupported report format")
		return err
	}
	sub, err := w.submissions.FindFinal(ctx, nil, report.SubmissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_, markErr := w.service.MarkReportFailed(ctx, report.ID, "submission no longer exists")
			return markErr
		}
		return err
	}

	doc, data, err := w.build(ctx, report, sub)
	if err != nil {
		return err
	}
	rendered, err := renderer.Render(doc)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	key, err := w.blobs.Save(path.Join(report.SubmissionID, report.ID+"."+renderer.Extension()), rendered)
	if err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	data.StorageKey = key
	data.ContentType = renderer.ContentType()
	data.Size = int64(len(rendered))
	if report.Data != nil {
		data.Recommendations = report.Data.Recommendations
	}
	if _, err := w.service.MarkReportCompleted(ctx, report.ID, data); err != nil {
		if errors.Is(err, appErrors.ErrConflict) || errors.Is(err, appErrors.ErrNotFound) {
			// Deleted or finished elsewhere while rendering.
			_ = w.blobs.Delete(key)
			return nil
		}
		return err
	}
	w.logger.Info("report rendered",
		zap.String("report_id", report.ID),
		zap.String("format", string(report.Format)),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

type categoryTally struct {
	name         string
	responses    int
	files        int
	contributors map[string]struct{}
}

func (w *ReportWorker) build(ctx context.Context, report *models.SubmissionReport, sub *models.AssessmentSubmission) (export.Document, models.ReportData, error) {
	content := sub.Content
	content.Normalize()

	ids := make([]string, 0, len(content.Responses))
	for _, r := range content.Responses {
		ids = append(ids, r.RevisionID)
	}
	cats := map[string]models.RevisionCategory{}
	if len(ids) > 0 {
		found, err := w.revisions.RevisionCategories(ctx, nil, ids)
		if err != nil {
			return export.Document{}, models.ReportData{}, fmt.Errorf("resolve categories: %w", err)
		}
		cats = found
	}
	categoryOf := func(revisionID string) string {
		if rc, ok := cats[revisionID]; ok && rc.CategoryName != "" {
			return rc.CategoryName
		}
		return "uncategorized"
	}

	tallies := map[string]*categoryTally{}
	contributors := map[string]struct{}{}
	for _, r := range content.Responses {
		name := categoryOf(r.RevisionID)
		t, ok := tallies[name]
		if !ok {
			t = &categoryTally{name: name, contributors: map[string]struct{}{}}
			tallies[name] = t
		}
		t.responses++
		t.files += len(r.Files)
		t.contributors[r.UserID] = struct{}{}
		contributors[r.UserID] = struct{}{}
	}
	names := make([]string, 0, len(tallies))
	for name := range tallies {
		names = append(names, name)
	}
	sort.Strings(names)

	data := models.ReportData{ResponseCount: len(content.Responses), Categories: make(map[string]int, len(tallies))}
	for _, name := range names {
		data.Categories[name] = tallies[name].responses
	}

	doc := export.Document{
		Title: "Sustainability assessment: " + content.Assessment.Name,
		Summary: []export.Field{
			{Label: "Organization", Value: sub.OrgID},
			{Label: "Assessment", Value: content.Assessment.ID},
			{Label: "Language", Value: content.Assessment.Language},
			{Label: "Submitted at", Value: sub.SubmittedAt.UTC().Format(time.RFC3339)},
			{Label: "Review status", Value: string(sub.Status)},
			{Label: "Responses", Value: strconv.Itoa(len(content.Responses))},
			{Label: "Contributors", Value: strconv.Itoa(len(contributors))},
		},
	}

	switch report.ReportType {
	case models.ReportTypeDetailed:
		doc.Table.Headers = []string{"Category", "Question revision", "Contributor", "Version", "Response", "Files"}
		rows := make([]map[string]string, 0, len(content.Responses))
		for _, r := range content.Responses {
			filenames := make([]string, 0, len(r.Files))
			for _, f := range r.Files {
				filenames = append(filenames, f.Filename)
			}
			rows = append(rows, map[string]string{
				"Category":          categoryOf(r.RevisionID),
				"Question revision": r.RevisionID,
				"Contributor":       r.UserID,
				"Version":           strconv.Itoa(r.Version),
				"Response":          r.Response,
				"Files":             strings.Join(filenames, ", "),
			})
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i]["Category"] < rows[j]["Category"] })
		doc.Table.Rows = rows
	default:
		doc.Table.Headers = []string{"Category", "Responses", "Contributors", "Files"}
		rows := make([]map[string]string, 0, len(names))
		for _, name := range names {
			t := tallies[name]
			rows = append(rows, map[string]string{
				"Category":     name,
				"Responses":    strconv.Itoa(t.responses),
				"Contributors": strconv.Itoa(len(t.contributors)),
				"Files":        strconv.Itoa(t.files),
			})
		}
		doc.Table.Rows = rows
	}
	return doc, data, nil
}
