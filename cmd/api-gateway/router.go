package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sustainability-assessment-api/api/swagger"
	"github.com/noah-isme/sustainability-assessment-api/internal/handler"
	"github.com/noah-isme/sustainability-assessment-api/internal/middleware"
	"github.com/noah-isme/sustainability-assessment-api/internal/service"
	"github.com/noah-isme/sustainability-assessment-api/pkg/config"
	"github.com/noah-isme/sustainability-assessment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sustainability-assessment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sustainability-assessment-api/pkg/middleware/requestid"
	"github.com/noah-isme/sustainability-assessment-api/pkg/reqcache"
)

type routeHandlers struct {
	catalog     *handler.CatalogHandler
	questions   *handler.QuestionHandler
	assessments *handler.AssessmentHandler
	files       *handler.FileHandler
	submissions *handler.SubmissionHandler
	reports     *handler.ReportHandler
	metrics     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, resolver middleware.PrincipalResolver, h routeHandlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/health", "/ready", "/metrics"))
	r.Use(reqcache.Middleware())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// Signed tokens authorize these on their own.
	api.GET("/files/download/:token", h.files.Download)
	api.GET("/reports/download/:token", h.reports.Download)

	secured := api.Group("", middleware.Authenticate(resolver), middleware.Audit(logr))

	secured.GET("/catalog/categories", h.catalog.ListCategories)
	secured.POST("/catalog/categories", h.catalog.CreateCategory)
	secured.GET("/catalog/categories/:id", h.catalog.GetCategory)
	secured.PATCH("/catalog/categories/:id", h.catalog.UpdateCategory)
	secured.DELETE("/catalog/categories/:id", h.catalog.DeleteCategory)
	secured.GET("/organizations/:orgId/categories", h.catalog.ListOrganizationCategories)
	secured.PUT("/organizations/:orgId/categories", h.catalog.AssignOrganizationCategories)

	secured.GET("/questions", h.questions.List)
	secured.POST("/questions", h.questions.Create)
	secured.GET("/questions/:id", h.questions.Get)
	secured.PUT("/questions/:id", h.questions.Update)
	secured.GET("/questions/:id/revisions", h.questions.Revisions)
	secured.DELETE("/revisions/:revisionId", h.questions.DeleteRevision)

	secured.GET("/assessments", h.assessments.List)
	secured.POST("/assessments", h.assessments.Create)
	secured.GET("/assessments/:id", h.assessments.Get)
	secured.PATCH("/assessments/:id", h.assessments.Update)
	secured.DELETE("/assessments/:id", h.assessments.Delete)
	secured.GET("/assessments/:id/responses", h.assessments.ListResponses)
	secured.POST("/assessments/:id/responses", h.assessments.CreateResponses)
	secured.POST("/assessments/:id/submit", h.submissions.SubmitDraft)
	secured.POST("/assessments/:id/finalize", h.submissions.Finalize)
	secured.GET("/assessments/:id/draft", h.submissions.GetDraft)
	secured.PUT("/assessments/:id/draft/review", h.submissions.ReviewDraft)

	secured.GET("/responses/:id", h.assessments.GetResponse)
	secured.PUT("/responses/:id", h.assessments.UpdateResponse)
	secured.DELETE("/responses/:id", h.assessments.DeleteResponse)
	secured.GET("/responses/:id/history", h.assessments.ResponseHistory)
	secured.POST("/responses/:id/files", h.files.Attach)
	secured.DELETE("/responses/:id/files/:fileId", h.files.Detach)

	secured.POST("/files", h.files.Upload)
	secured.GET("/files/:id", h.files.Get)
	secured.DELETE("/files/:id", h.files.Delete)
	secured.GET("/files/:id/download-url", h.files.DownloadURL)

	secured.GET("/submissions", h.submissions.List)
	secured.GET("/submissions/:id", h.submissions.Get)
	secured.DELETE("/submissions/:id", h.submissions.Delete)
	secured.PUT("/submissions/:id/review", h.submissions.Review)
	secured.GET("/submissions/:id/reports", h.reports.List)
	secured.POST("/submissions/:id/reports", h.reports.Generate)

	secured.GET("/reports/:id", h.reports.Get)
	secured.DELETE("/reports/:id", h.reports.Delete)
	secured.PUT("/reports/:id/recommendations", h.reports.UpdateRecommendation)
	secured.GET("/reports/:id/download-url", h.reports.DownloadURL)

	return r
}
