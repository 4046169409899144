package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/docflow-api/api/swagger"
	"github.com/noah-isme/docflow-api/internal/handler"
	"github.com/noah-isme/docflow-api/internal/repository"
	"github.com/noah-isme/docflow-api/internal/service"
	"github.com/noah-isme/docflow-api/pkg/cache"
	"github.com/noah-isme/docflow-api/pkg/config"
	"github.com/noah-isme/docflow-api/pkg/database"
	"github.com/noah-isme/docflow-api/pkg/export"
	"github.com/noah-isme/docflow-api/pkg/jobs"
	"github.com/noah-isme/docflow-api/pkg/logger"
	"github.com/noah-isme/docflow-api/pkg/seed"
	"github.com/noah-isme/docflow-api/pkg/storage"
	"github.com/noah-isme/docflow-api/pkg/tracing"
)

const version = "0.1.0"

// @title DocFlow API
// @version 0.1.0
// @description Multi-level document approval workflows
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.Tracing, version)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logr.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}

	app, err := buildApp(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to wire application", zap.Error(err))
	}
	defer app.close()

	if app.certificates != nil {
		app.certificates.Start(ctx)
	}

	if cfg.Seed.File != "" {
		file, err := seed.LoadFile(cfg.Seed.File)
		if err != nil {
			logr.Fatal("failed to load seed file", zap.String("path", cfg.Seed.File), zap.Error(err))
		}
		seeder := seed.NewSeeder(app.fileTypes, app.templates, app.permissions, "seed", logr)
		if _, err := seeder.Apply(ctx, file); err != nil {
			logr.Fatal("failed to apply seed file", zap.Error(err))
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown failed", zap.Error(err))
	}
}

// application holds the wired services the router and startup tasks need.
type application struct {
	metrics      *service.MetricsService
	auth         *service.AuthService
	audit        *repository.AuditRepository
	templates    *service.TemplateService
	fileTypes    *service.FileTypeService
	permissions  *service.PermissionService
	documents    *service.DocumentService
	workflow     *service.WorkflowService
	exports      *service.ExportService
	certificates *jobs.Queue
	readiness    map[string]handler.ReadinessCheck
	closers      []func() error
}

func (a *application) close() {
	if a.certificates != nil {
		a.certificates.Stop()
	}
	for _, fn := range a.closers {
		_ = fn()
	}
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*application, error) {
	app := &application{readiness: map[string]handler.ReadinessCheck{"database": db.PingContext}}
	validate := validator.New()
	metrics := service.NewMetricsService()
	app.metrics = metrics

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		repo := repository.NewCacheRepository(redisClient, "docflow", logr)
		cacheRepo = repo
		app.closers = append(app.closers, repo.Close)
		app.readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Workflow.TemplateCacheTTL, logr, cacheRepo != nil)

	auditRepo := repository.NewAuditRepository(db)
	app.audit = auditRepo
	templateRepo := repository.NewTemplateRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	recordRepo := repository.NewApprovalRecordRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	fileTypeRepo := repository.NewFileTypeRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)

	strategies, err := service.BuildApproverStrategies(cfg.Workflow.ApproverStrategies, logr)
	if err != nil {
		return nil, fmt.Errorf("approver strategies: %w", err)
	}
	registry, err := service.NewApproverStrategyRegistry(strategies...)
	if err != nil {
		return nil, fmt.Errorf("approver strategies: %w", err)
	}

	app.auth = service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	app.fileTypes = service.NewFileTypeService(fileTypeRepo, validate, logr)
	app.permissions = service.NewPermissionService(permissionRepo, app.fileTypes, auditRepo, validate, logr)
	app.templates = service.NewTemplateService(templateRepo, db, registry, cacheSvc, auditRepo, validate, logr)

	store, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("document storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	app.documents = service.NewDocumentService(documentRepo, store, signer, auditRepo, logr, service.DocumentServiceConfig{
		MaxFileSize: cfg.Documents.MaxFileSizeBytes,
		APIPrefix:   cfg.APIPrefix,
	})

	validators, err := service.BuildValidators(cfg.Workflow.Validators, service.ValidatorDependencies{
		FileTypes:          app.fileTypes,
		Permissions:        app.permissions,
		Registry:           registry,
		MaxDocumentSize:    cfg.Workflow.MaxDocumentSize,
		BusinessHoursStart: cfg.Workflow.BusinessHoursStart,
		BusinessHoursEnd:   cfg.Workflow.BusinessHoursEnd,
		BusinessTimezone:   cfg.Workflow.BusinessTimezone,
		Logger:             logr,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow validators: %w", err)
	}

	opts := []service.WorkflowOption{
		service.WithWorkflowAudit(auditRepo),
		service.WithWorkflowMetrics(metrics),
		service.WithWorkflowLogger(logr),
		service.WithPendingScanPageSize(cfg.Workflow.PendingScanPageSize),
	}

	// The worker needs the export service, which reads instances through the workflow service.
	var worker *service.CertificateWorker
	if cfg.Certificates.Enabled {
		app.certificates = jobs.NewQueue("certificates",
			func(ctx context.Context, job jobs.Job) error { return worker.Handle(ctx, job) },
			jobs.QueueConfig{
				Workers:     cfg.Certificates.WorkerConcurrency,
				MaxRetries:  cfg.Certificates.WorkerRetries,
				Logger:      logr,
				OnExhausted: func(job jobs.Job, err error) { worker.Exhausted(job, err) },
			})
		opts = append(opts, service.WithCertificateQueue(app.certificates))
	}

	app.workflow = service.NewWorkflowService(
		app.templates,
		instanceRepo,
		recordRepo,
		app.documents,
		db,
		service.NewValidationPipeline(validators...),
		registry,
		opts...,
	)
	app.exports = service.NewExportService(
		app.workflow,
		app.templates,
		app.documents,
		store,
		service.ExportConfig{},
		logr,
		export.NewCSVExporter(),
		export.NewPDFExporter(),
	)
	worker = service.NewCertificateWorker(app.exports, metrics, logr)

	return app, nil
}
