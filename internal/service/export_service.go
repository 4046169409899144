package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/export"
	"github.com/noah-isme/docflow-api/pkg/jobs"
)

var historyColumns = []string{"Level", "Approver", "Decision", "Comment", "Signature", "Signed At"}

type instanceHistorySource interface {
	GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstanceDetail, error)
}

type fileStorage interface {
	Save(relPath string, data []byte) error
	Open(relPath string) (*os.File, error)
	Exists(relPath string) (bool, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
}

// ExportConfig tunes where certificates are written.
type ExportConfig struct {
	CertificateDir string
}

// CertificateFile is an opened certificate ready to stream. Callers close File.
type CertificateFile struct {
	File      *os.File
	Filename  string
	SizeBytes int64
}

// ExportService renders decision history as CSV and approval certificates as PDF.
type ExportService struct {
	instances instanceHistorySource
	templates workflowTemplateReader
	documents documentReader
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. templates and documents only enrich certificate headers and may be nil.
func NewExportService(instances instanceHistorySource, templates workflowTemplateReader, documents documentReader, storage fileStorage, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CertificateDir == "" {
		cfg.CertificateDir = "certificates"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		instances: instances,
		templates: templates,
		documents: documents,
		storage:   storage,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// HistoryCSV renders every recorded decision of an instance, oldest first.
func (s *ExportService) HistoryCSV(ctx context.Context, instanceID string) ([]byte, string, error) {
	detail, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(historyTable(detail.History))
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render approval history")
	}
	return payload, fmt.Sprintf("workflow_%s_history.csv", detail.ID), nil
}

// GenerateCertificate renders and stores the certificate of an approved instance, returning its storage path.
func (s *ExportService) GenerateCertificate(ctx context.Context, instanceID string) (string, error) {
	detail, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if detail.Status != models.InstanceStatusApproved {
		return "", appErrors.Clone(appErrors.ErrInvalidState, "certificates are only issued for approved instances")
	}
	payload, err := s.pdf.Render(s.buildCertificate(ctx, detail))
	if err != nil {
		return "", appErrors.Internal(err, "failed to render approval certificate")
	}
	relPath := s.certificatePath(detail.ID)
	if err := s.storage.Save(relPath, payload); err != nil {
		return "", appErrors.Internal(err, "failed to store approval certificate")
	}
	s.logger.Info("approval certificate generated", zap.String("instance_id", detail.ID), zap.String("path", relPath))
	return relPath, nil
}

// OpenCertificate returns the stored certificate. It is NotFound until the worker has produced it.
func (s *ExportService) OpenCertificate(ctx context.Context, instanceID string) (*CertificateFile, error) {
	detail, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.InstanceStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "instance is not approved")
	}
	relPath := s.certificatePath(detail.ID)
	exists, err := s.storage.Exists(relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check approval certificate")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not generated yet")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to open approval certificate")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Internal(err, "failed to read approval certificate")
	}
	return &CertificateFile{File: file, Filename: path.Base(relPath), SizeBytes: info.Size()}, nil
}

func (s *ExportService) certificatePath(instanceID string) string {
	return path.Join(s.cfg.CertificateDir, fmt.Sprintf("workflow_%s_certificate.pdf", instanceID))
}

func (s *ExportService) buildCertificate(ctx context.Context, detail *models.WorkflowInstanceDetail) export.Certificate {
	templateName := detail.TemplateID
	if s.templates != nil {
		if tmpl, err := s.templates.Get(ctx, detail.TemplateID); err == nil {
			templateName = tmpl.Name
		} else {
			s.logger.Warn("certificate template lookup failed", zap.String("template_id", detail.TemplateID), zap.Error(err))
		}
	}
	document := detail.DocumentID
	checksum := ""
	if s.documents != nil {
		if doc, err := s.documents.GetByID(ctx, detail.DocumentID); err == nil {
			document = doc.Filename
			checksum = doc.Checksum
		} else {
			s.logger.Warn("certificate document lookup failed", zap.String("document_id", detail.DocumentID), zap.Error(err))
		}
	}
	closedAt := ""
	if detail.ClosedAt != nil {
		closedAt = detail.ClosedAt.UTC().Format(time.RFC3339)
	}
	fields := []export.Field{
		{Label: "Instance", Value: detail.ID},
		{Label: "Template", Value: templateName},
		{Label: "Document", Value: document},
		{Label: "Requested by", Value: detail.RequestedBy},
		{Label: "Requested at", Value: detail.RequestedAt.UTC().Format(time.RFC3339)},
		{Label: "Approved at", Value: closedAt},
	}
	if checksum != "" {
		fields = append(fields, export.Field{Label: "Checksum", Value: checksum})
	}
	return export.Certificate{
		Title:   "Approval Certificate",
		Fields:  fields,
		History: historyTable(detail.History),
		Footer:  fmt.Sprintf("Issued %s", s.now().UTC().Format(time.RFC3339)),
	}
}

func historyTable(records []models.ApprovalRecord) export.Table {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		decision := "REJECTED"
		if rec.Approved {
			decision = "APPROVED"
		}
		rows = append(rows, []string{
			strconv.Itoa(rec.LevelOrder),
			rec.ApproverUserID,
			decision,
			deref(rec.Comment),
			deref(rec.Signature),
			rec.SignedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Table{Columns: historyColumns, Rows: rows}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

type certificateGenerator interface {
	GenerateCertificate(ctx context.Context, instanceID string) (string, error)
}

type certificateMetrics interface {
	ObserveCertificateJob(success bool)
}

// CertificateWorker bridges queue jobs to ExportService.
type CertificateWorker struct {
	generator certificateGenerator
	metrics   certificateMetrics
	logger    *zap.Logger
}

// NewCertificateWorker constructs a worker.
func NewCertificateWorker(generator certificateGenerator, metrics certificateMetrics, logger *zap.Logger) *CertificateWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateWorker{generator: generator, metrics: metrics, logger: logger}
}

// Handle processes a queue job. Errors that retrying cannot fix are logged and swallowed.
func (w *CertificateWorker) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != certificateJobType {
		w.logger.Warn("ignoring unexpected job type", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if _, err := w.generator.GenerateCertificate(ctx, job.ID); err != nil {
		if errors.Is(err, appErrors.ErrNotFound) || errors.Is(err, appErrors.ErrInvalidState) {
			w.logger.Warn("certificate job dropped", zap.String("instance_id", job.ID), zap.Error(err))
			w.observe(false)
			return nil
		}
		return err
	}
	w.observe(true)
	return nil
}

// Exhausted records a job that failed every retry. It is meant for jobs.QueueConfig.OnExhausted.
func (w *CertificateWorker) Exhausted(job jobs.Job, err error) {
	w.logger.Error("certificate job failed", zap.String("instance_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
	w.observe(false)
}

func (w *CertificateWorker) observe(success bool) {
	if w.metrics != nil {
		w.metrics.ObserveCertificateJob(success)
	}
}
