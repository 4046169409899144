package service

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

const (
	documentResource       = "document"
	defaultDocumentMaxSize = 25 * 1024 * 1024
	sniffLength            = 512
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

type documentFileStorage interface {
	SaveStream(relPath string, r io.Reader) (int64, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

type downloadSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
}

// DocumentUpload is the raw file handed to Upload.
type DocumentUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// DocumentDownload is an opened document ready to stream. Callers close File.
type DocumentDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// DocumentServiceConfig holds upload limits and the public route prefix.
type DocumentServiceConfig struct {
	MaxFileSize int64
	APIPrefix   string
}

// DocumentService stores uploaded documents and issues signed download links.
type DocumentService struct {
	repo    documentStore
	storage documentFileStorage
	signer  downloadSigner
	audit   auditLogger
	logger  *zap.Logger
	cfg     DocumentServiceConfig
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, storage documentFileStorage, signer downloadSigner, audit auditLogger, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultDocumentMaxSize
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &DocumentService{repo: repo, storage: storage, signer: signer, audit: audit, logger: logger, cfg: cfg}
}

// Upload checks the size limit, sniffs the mime type when none is declared,
// stores the bytes and records their blake2b-256 checksum.
func (s *DocumentService) Upload(ctx context.Context, upload DocumentUpload, uploadedBy string) (*dto.DocumentResponse, error) {
	filename := cleanUploadFilename(upload.Filename)
	if upload.Content == nil || filename == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}

	reader := bufio.NewReaderSize(io.LimitReader(upload.Content, s.cfg.MaxFileSize+1), sniffLength)
	head, err := reader.Peek(sniffLength)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, appErrors.Internal(err, "failed to inspect upload")
	}
	if len(head) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	mimeType := resolveUploadMime(upload.MimeType, head)

	id := uuid.NewString()
	relPath := filepath.ToSlash(filepath.Join("documents", id, filename))
	hasher, _ := blake2b.New256(nil)
	written, err := s.storage.SaveStream(relPath, io.TeeReader(reader, hasher))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store document")
	}
	if written > s.cfg.MaxFileSize {
		_ = s.storage.Delete(relPath)
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}

	doc := &models.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		SizeBytes:   written,
		StoragePath: relPath,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		UploadedBy:  uploadedBy,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Internal(err, "failed to save document metadata")
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("mime", doc.MimeType),
		zap.Int64("size_bytes", doc.SizeBytes),
	)
	s.emitAudit(ctx, doc)
	return s.present(doc), nil
}

// GetByID returns raw document metadata.
func (s *DocumentService) GetByID(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Internal(err, "failed to load document")
	}
	return doc, nil
}

// Get returns document metadata with a fresh signed download URL.
func (s *DocumentService) Get(ctx context.Context, id string) (*dto.DocumentResponse, error) {
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(doc), nil
}

// Download validates token against the document and opens its file.
func (s *DocumentService) Download(ctx context.Context, id, token string) (*DocumentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resourceID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if resourceID != doc.ID || relPath != doc.StoragePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(doc.StoragePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document file missing")
		}
		return nil, appErrors.Internal(err, "failed to open document")
	}
	return &DocumentDownload{
		File:      file,
		Filename:  doc.Filename,
		MimeType:  doc.MimeType,
		SizeBytes: doc.SizeBytes,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *DocumentService) present(doc *models.Document) *dto.DocumentResponse {
	resp := &dto.DocumentResponse{Document: *doc}
	if s.signer == nil {
		return resp
	}
	token, _, err := s.signer.Generate(doc.ID, doc.StoragePath)
	if err != nil {
		s.logger.Warn("failed to sign download url", zap.String("document_id", doc.ID), zap.Error(err))
		return resp
	}
	resp.DownloadURL = fmt.Sprintf("%s/files/%s/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), doc.ID, token)
	return resp
}

func (s *DocumentService) emitAudit(ctx context.Context, doc *models.Document) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"filename":  doc.Filename,
		"mimeType":  doc.MimeType,
		"sizeBytes": doc.SizeBytes,
		"checksum":  doc.Checksum,
	})
	log := &models.AuditLog{
		Action:     models.AuditActionDocumentUpload,
		Resource:   documentResource,
		ResourceID: &doc.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "document-service",
	}
	if doc.UploadedBy != "" {
		log.UserID = &doc.UploadedBy
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record document audit", zap.Error(err))
	}
}

// resolveUploadMime prefers the declared type and falls back to content sniffing.
func resolveUploadMime(declared string, head []byte) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || strings.EqualFold(declared, "application/octet-stream") {
		declared = http.DetectContentType(head)
	}
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		return mediaType
	}
	return strings.ToLower(declared)
}

func cleanUploadFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
