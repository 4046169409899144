package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/handler"
	"github.com/noah-isme/docflow-api/internal/middleware"
	"github.com/noah-isme/docflow-api/internal/models"
	"github.com/noah-isme/docflow-api/pkg/config"
	"github.com/noah-isme/docflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/docflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/docflow-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	metricsHandler := handler.NewMetricsHandler(app.metrics, app.readiness)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	documentHandler := handler.NewDocumentHandler(app.documents)
	// Signed tokens authorise downloads on their own.
	api.GET("/files/:id/download", documentHandler.Download)

	if cfg.Env != config.EnvProduction {
		api.POST("/auth/token", handler.NewAuthHandler(app.auth).IssueToken)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(app.auth))

	workflowHandler := handler.NewWorkflowHandler(app.workflow, app.exports)
	templateHandler := handler.NewTemplateHandler(app.templates)
	workflow := secured.Group("/workflow")
	{
		workflow.GET("/templates", templateHandler.List)
		workflow.GET("/templates/:id", templateHandler.Get)
		workflow.POST("/templates", middleware.RequireRoles(models.RoleAdmin), templateHandler.Create)
		workflow.DELETE("/templates/:id", middleware.RequireRoles(models.RoleAdmin), templateHandler.Deactivate)

		workflow.POST("/:templateId/start", workflowHandler.Start)
		workflow.GET("/pending-approvals", workflowHandler.Pending)
		workflow.GET("/instances/:id", workflowHandler.Get)
		workflow.GET("/instances/:id/approvers", workflowHandler.Approvers)
		workflow.POST("/instances/:id/approve", workflowHandler.Approve)
		workflow.POST("/instances/:id/reject", workflowHandler.Reject)
		workflow.GET("/instances/:id/history.csv", workflowHandler.HistoryCSV)
		workflow.GET("/instances/:id/certificate", workflowHandler.Certificate)
	}

	fileTypeHandler := handler.NewFileTypeHandler(app.fileTypes)
	fileTypes := secured.Group("/filetypes")
	{
		fileTypes.GET("", fileTypeHandler.List)
		fileTypes.GET("/:id", fileTypeHandler.Get)
		fileTypes.POST("",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(app.audit, logr, models.AuditActionFileTypeCreate, "file_type"),
			fileTypeHandler.Create)
		fileTypes.DELETE("/:id",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(app.audit, logr, models.AuditActionFileTypeDelete, "file_type"),
			fileTypeHandler.Delete)
	}

	permissionHandler := handler.NewPermissionHandler(app.permissions)
	admin := secured.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/grant-filetype", permissionHandler.Grant)
		admin.DELETE("/revoke-filetype", permissionHandler.Revoke)
		admin.GET("/user-permissions/:userId", permissionHandler.ListForUser)
	}

	files := secured.Group("/files")
	{
		files.POST("/upload", documentHandler.Upload)
		files.GET("/:id", documentHandler.Get)
	}

	return r
}
