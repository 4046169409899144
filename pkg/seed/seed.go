// Package seed bootstraps the file type catalog, templates and grants from a YAML file.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

// Grant gives UserID the catalog entry registered under Mime.
type Grant struct {
	UserID string `yaml:"userId"`
	Mime   string `yaml:"mime"`
}

// File is the YAML document layout.
type File struct {
	FileTypes []dto.CreateFileTypeRequest `yaml:"fileTypes"`
	Templates []dto.CreateTemplateRequest `yaml:"templates"`
	Grants    []Grant                     `yaml:"grants"`
}

// Result counts what Apply created.
type Result struct {
	FileTypes int
	Templates int
	Grants    int
}

type fileTypeCatalog interface {
	List(ctx context.Context) ([]models.FileType, error)
	Create(ctx context.Context, req dto.CreateFileTypeRequest) (*models.FileType, error)
}

type templateCreator interface {
	Create(ctx context.Context, req dto.CreateTemplateRequest, actorID string) (*models.WorkflowTemplate, error)
}

type permissionGranter interface {
	Grant(ctx context.Context, req dto.FileTypePermissionRequest, actorID string) (bool, error)
}

// Seeder applies a seed File through the regular services so the usual validation holds.
type Seeder struct {
	fileTypes   fileTypeCatalog
	templates   templateCreator
	permissions permissionGranter
	actorID     string
	logger      *zap.Logger
}

// NewSeeder constructs a Seeder. actorID is recorded as the creator of seeded rows.
func NewSeeder(fileTypes fileTypeCatalog, templates templateCreator, permissions permissionGranter, actorID string, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if actorID == "" {
		actorID = "seed"
	}
	return &Seeder{fileTypes: fileTypes, templates: templates, permissions: permissions, actorID: actorID, logger: logger}
}

// LoadFile reads and decodes a seed file.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Decode(bytes.NewReader(raw))
}

// Decode parses a seed document, rejecting unknown keys.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &file, nil
}

// Apply creates missing file types by mime, templates by name, then grants. It is safe to rerun.
func (s *Seeder) Apply(ctx context.Context, file *File) (Result, error) {
	var result Result
	if file == nil {
		return result, nil
	}

	existing, err := s.fileTypes.List(ctx)
	if err != nil {
		return result, fmt.Errorf("list file types: %w", err)
	}
	byMime := make(map[string]string, len(existing))
	for _, ft := range existing {
		byMime[strings.ToLower(ft.Mime)] = ft.ID
	}

	for _, req := range file.FileTypes {
		mime := strings.ToLower(strings.TrimSpace(req.Mime))
		if _, ok := byMime[mime]; ok {
			continue
		}
		created, err := s.fileTypes.Create(ctx, req)
		if err != nil {
			return result, fmt.Errorf("seed file type %q: %w", req.Name, err)
		}
		byMime[strings.ToLower(created.Mime)] = created.ID
		result.FileTypes++
	}

	for _, req := range file.Templates {
		if _, err := s.templates.Create(ctx, req, s.actorID); err != nil {
			if errors.Is(err, appErrors.ErrConflict) {
				s.logger.Debug("seed template already present", zap.String("name", req.Name))
				continue
			}
			return result, fmt.Errorf("seed template %q: %w", req.Name, err)
		}
		result.Templates++
	}

	for _, grant := range file.Grants {
		fileTypeID, ok := byMime[strings.ToLower(strings.TrimSpace(grant.Mime))]
		if !ok {
			return result, fmt.Errorf("seed grant for %s: no file type with mime %q", grant.UserID, grant.Mime)
		}
		created, err := s.permissions.Grant(ctx, dto.FileTypePermissionRequest{UserID: grant.UserID, FileTypeID: fileTypeID}, s.actorID)
		if err != nil {
			return result, fmt.Errorf("seed grant for %s: %w", grant.UserID, err)
		}
		if created {
			result.Grants++
		}
	}

	s.logger.Info("seed applied",
		zap.Int("file_types", result.FileTypes),
		zap.Int("templates", result.Templates),
		zap.Int("grants", result.Grants),
	)
	return result, nil
}
