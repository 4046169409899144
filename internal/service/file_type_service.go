package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	"github.com/noah-isme/docflow-api/pkg/database"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

type fileTypeStore interface {
	Create(ctx context.Context, fileType *models.FileType) error
	GetByID(ctx context.Context, id string) (*models.FileType, error)
	List(ctx context.Context) ([]models.FileType, error)
	Delete(ctx context.Context, id string) error
}

// FileTypeService manages the file type catalog and resolves documents against it.
type FileTypeService struct {
	repo      fileTypeStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFileTypeService constructs a FileTypeService.
func NewFileTypeService(repo fileTypeStore, validate *validator.Validate, logger *zap.Logger) *FileTypeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileTypeService{repo: repo, validator: validate, logger: logger}
}

// Create registers a catalog entry. Mime types are unique.
func (s *FileTypeService) Create(ctx context.Context, req dto.CreateFileTypeRequest) (*models.FileType, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Mime = strings.ToLower(strings.TrimSpace(req.Mime))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid file type payload")
	}
	extensions := make([]string, 0, len(req.Extensions))
	for _, ext := range req.Extensions {
		if normalized := normalizeExtension(ext); normalized != "" {
			extensions = append(extensions, normalized)
		}
	}
	fileType := &models.FileType{
		Name:       req.Name,
		Mime:       req.Mime,
		Extensions: pq.StringArray(uniqueStrings(extensions)),
	}
	if err := s.repo.Create(ctx, fileType); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "file type mime already registered")
		}
		return nil, appErrors.Internal(err, "failed to create file type")
	}
	s.logger.Info("file type registered", zap.String("file_type_id", fileType.ID), zap.String("mime", fileType.Mime))
	return fileType, nil
}

// Get returns one catalog entry.
func (s *FileTypeService) Get(ctx context.Context, id string) (*models.FileType, error) {
	fileType, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file type not found")
		}
		return nil, appErrors.Internal(err, "failed to load file type")
	}
	return fileType, nil
}

// List returns the catalog in lookup precedence order.
func (s *FileTypeService) List(ctx context.Context) ([]models.FileType, error) {
	fileTypes, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list file types")
	}
	if fileTypes == nil {
		fileTypes = []models.FileType{}
	}
	return fileTypes, nil
}

// Delete removes a catalog entry.
func (s *FileTypeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "file type not found")
		}
		return appErrors.Internal(err, "failed to delete file type")
	}
	return nil
}

// FindByMimeOrExtension scans the catalog for a mime match first, then an extension match.
// It returns nil without error when nothing matches.
func (s *FileTypeService) FindByMimeOrExtension(ctx context.Context, mime, ext string) (*models.FileType, error) {
	fileTypes, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	mime = strings.TrimSpace(mime)
	if mime != "" {
		for i := range fileTypes {
			if strings.EqualFold(fileTypes[i].Mime, mime) {
				return &fileTypes[i], nil
			}
		}
	}
	ext = normalizeExtension(ext)
	if ext != "" {
		for i := range fileTypes {
			for _, candidate := range fileTypes[i].Extensions {
				if normalizeExtension(candidate) == ext {
					return &fileTypes[i], nil
				}
			}
		}
	}
	return nil, nil
}
