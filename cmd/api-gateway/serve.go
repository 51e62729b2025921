package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/internal/handler"
	"github.com/noah-isme/sustainability-assessment-api/internal/repository"
	"github.com/noah-isme/sustainability-assessment-api/internal/service"
	"github.com/noah-isme/sustainability-assessment-api/migrations"
	"github.com/noah-isme/sustainability-assessment-api/pkg/cache"
	"github.com/noah-isme/sustainability-assessment-api/pkg/config"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	"github.com/noah-isme/sustainability-assessment-api/pkg/idp"
	"github.com/noah-isme/sustainability-assessment-api/pkg/jobs"
	"github.com/noah-isme/sustainability-assessment-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and report workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, autoMigrate bool) error {
	cfg, logr := a.cfg, a.logger

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if autoMigrate {
		if _, err := migrations.Apply(ctx, db, logr); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.Cache)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	deps, err := buildServices(cfg, db, redisClient, logr)
	if err != nil {
		return err
	}
	if deps.queue != nil {
		deps.queue.Start(ctx)
		defer deps.queue.Stop()
		deps.reports.RecoverPending(ctx)
	}

	checks := map[string]handler.Pinger{"postgres": db}
	if deps.cacheRepo != nil {
		checks["redis"] = handler.PingFunc(deps.cacheRepo.Ping)
	}
	router := newRouter(cfg, logr, deps.metrics, deps.claims, routeHandlers{
		catalog:     handler.NewCatalogHandler(deps.catalog),
		questions:   handler.NewQuestionHandler(deps.questions),
		assessments: handler.NewAssessmentHandler(deps.assessments, deps.responses),
		files:       handler.NewFileHandler(deps.files, cfg.Files.MaxUploadBytes),
		submissions: handler.NewSubmissionHandler(deps.submissions),
		reports:     handler.NewReportHandler(deps.reports),
		metrics:     handler.NewMetricsHandler(deps.metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type services struct {
	metrics     *service.MetricsService
	claims      *service.ClaimsService
	catalog     *service.CatalogService
	questions   *service.QuestionService
	assessments *service.AssessmentService
	responses   *service.ResponseService
	files       *service.FileService
	submissions *service.SubmissionService
	reports     *service.ReportService
	queue       *jobs.Queue
	cacheRepo   *repository.CacheRepository
}

func buildServices(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*services, error) {
	metrics := service.NewMetricsService()
	validate := validator.New()
	tx := database.NewTxRunner(db, cfg.Database.OperationTimeout, metrics)

	categoryRepo := repository.NewCategoryRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	fileRepo := repository.NewFileRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	reportRepo := repository.NewReportRepository(db)

	var catalogCache *service.CatalogCache
	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Cache.Prefix, logr.Named("cache"))
		catalogCache = service.NewCatalogCache(cacheRepo, metrics, cfg.Cache.TTL, logr.Named("cache"))
	}

	keys := idp.NewKeyCache(idp.KeyCacheConfig{
		URL:             cfg.IdP.JWKSURL,
		Timeout:         cfg.IdP.Timeout,
		RefetchInterval: cfg.IdP.RefetchInterval,
		Logger:          logr.Named("jwks"),
	})
	claims := service.NewClaimsService(keys, service.ClaimsConfig{
		Issuers:   cfg.IdP.Issuers,
		Audiences: cfg.IdP.Audiences,
		Leeway:    30 * time.Second,
	}, metrics, logr)

	evidence, err := storage.NewLocalStorage(cfg.Files.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init evidence storage: %w", err)
	}
	fileSigner := storage.NewSignedURLSigner(cfg.Files.SignedURLSecret, cfg.Files.SignedURLTTL)

	s := &services{
		metrics:     metrics,
		claims:      claims,
		cacheRepo:   cacheRepo,
		catalog:     service.NewCatalogService(categoryRepo, tx, catalogCache, validate, logr),
		questions:   service.NewQuestionService(questionRepo, tx, catalogCache, validate, logr),
		assessments: service.NewAssessmentService(assessmentRepo, responseRepo, fileRepo, tx, validate, logr),
		responses:   service.NewResponseService(assessmentRepo, responseRepo, questionRepo, fileRepo, tx, metrics, validate, logr),
		files: service.NewFileService(fileRepo, responseRepo, assessmentRepo, evidence, fileSigner, tx, service.FileServiceConfig{
			MaxUploadBytes:  cfg.Files.MaxUploadBytes,
			AllowedMIMEs:    cfg.Files.AllowedMIMEs,
			DownloadBaseURL: cfg.APIPrefix + "/files/download",
		}, logr),
		submissions: service.NewSubmissionService(assessmentRepo, responseRepo, questionRepo, fileRepo, submissionRepo, tx, metrics, validate, logr),
	}

	artifacts, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init report storage: %w", err)
	}
	reportCfg := service.ReportServiceConfig{DownloadBaseURL: cfg.APIPrefix + "/reports/download"}
	if !cfg.Reports.Enabled {
		s.reports = service.NewReportService(reportRepo, submissionRepo, nil, artifacts, fileSigner, metrics, validate, logr, reportCfg)
		return s, nil
	}

	var worker *service.ReportWorker
	s.queue = jobs.NewQueue("reports", func(ctx context.Context, job jobs.Job) error {
		return worker.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		JobTimeout: cfg.Reports.JobTimeout,
		OnExhaust: func(ctx context.Context, job jobs.Job, err error) {
			s.reports.HandleExhausted(ctx, job, err)
		},
		Logger: logr.Named("reports"),
	})
	s.reports = service.NewReportService(reportRepo, submissionRepo, s.queue, artifacts, fileSigner, metrics, validate, logr, reportCfg)
	worker = service.NewReportWorker(s.reports, reportRepo, submissionRepo, questionRepo, artifacts, logr.Named("reports"))
	return s, nil
}
