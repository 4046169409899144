package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

const permissionResource = "file_type_permission"

type permissionStore interface {
	Grant(ctx context.Context, perm *models.FileTypePermission) (bool, error)
	Revoke(ctx context.Context, userID, fileTypeID string) error
	Exists(ctx context.Context, userID, fileTypeID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.UserFileTypePermission, error)
}

type fileTypeGetter interface {
	Get(ctx context.Context, id string) (*models.FileType, error)
}

// PermissionService manages per-user file type grants.
type PermissionService struct {
	repo      permissionStore
	fileTypes fileTypeGetter
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(repo permissionStore, fileTypes fileTypeGetter, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *PermissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{repo: repo, fileTypes: fileTypes, audit: audit, validator: validate, logger: logger}
}

// Grant gives a user the file type. Granting twice is a no-op that reports created=false.
func (s *PermissionService) Grant(ctx context.Context, req dto.FileTypePermissionRequest, actorID string) (created bool, err error) {
	if err := s.validator.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid permission payload")
	}
	if _, err := s.fileTypes.Get(ctx, req.FileTypeID); err != nil {
		return false, err
	}
	perm := &models.FileTypePermission{UserID: req.UserID, FileTypeID: req.FileTypeID}
	if actorID != "" {
		perm.GrantedBy = &actorID
	}
	created, err = s.repo.Grant(ctx, perm)
	if err != nil {
		return false, appErrors.Internal(err, "failed to grant file type permission")
	}
	if created {
		s.emitAudit(ctx, actorID, models.AuditActionPermissionGrant, req)
	}
	return created, nil
}

// Revoke removes a grant.
func (s *PermissionService) Revoke(ctx context.Context, req dto.FileTypePermissionRequest, actorID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid permission payload")
	}
	if err := s.repo.Revoke(ctx, req.UserID, req.FileTypeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "permission not found")
		}
		return appErrors.Internal(err, "failed to revoke file type permission")
	}
	s.emitAudit(ctx, actorID, models.AuditActionPermissionRevoke, req)
	return nil
}

// HasPermission reports whether userID holds an explicit grant on fileTypeID.
func (s *PermissionService) HasPermission(ctx context.Context, userID, fileTypeID string) (bool, error) {
	return s.repo.Exists(ctx, userID, fileTypeID)
}

// ListByUser returns a user's grants.
func (s *PermissionService) ListByUser(ctx context.Context, userID string) ([]models.UserFileTypePermission, error) {
	perms, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list user permissions")
	}
	if perms == nil {
		perms = []models.UserFileTypePermission{}
	}
	return perms, nil
}

func (s *PermissionService) emitAudit(ctx context.Context, actorID, action string, req dto.FileTypePermissionRequest) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(req)
	resourceID := req.UserID + ":" + req.FileTypeID
	log := &models.AuditLog{
		Action:     action,
		Resource:   permissionResource,
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "permission-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record permission audit", zap.Error(err))
	}
}
