package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	"github.com/noah-isme/docflow-api/pkg/database"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

const (
	workflowTemplateResource = "workflow_template"
	templateCacheKeyPrefix   = "workflow:template:"
)

type templateStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, tmpl *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	ListActive(ctx context.Context) ([]models.WorkflowTemplate, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Deactivate(ctx context.Context, id string) error
}

type expressionChecker interface {
	Validate(expression string) error
}

// TemplateService manages workflow templates. Levels are fixed at creation; the only later change is deactivation.
type TemplateService struct {
	repo      templateStore
	tx        txProvider
	registry  *ApproverStrategyRegistry
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTemplateService constructs a TemplateService.
func NewTemplateService(repo templateStore, tx txProvider, registry *ApproverStrategyRegistry, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{
		repo:      repo,
		tx:        tx,
		registry:  registry,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create validates and persists a template with all of its levels in one transaction.
func (s *TemplateService) Create(ctx context.Context, req dto.CreateTemplateRequest, actorID string) (*models.WorkflowTemplate, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	levels, err := s.buildLevels(req.Levels)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check template name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "template name already exists")
	}

	tmpl := &models.WorkflowTemplate{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   actorID,
		IsActive:    true,
		Levels:      levels,
	}
	err = database.WithTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		return s.repo.Create(ctx, tx, tmpl)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "template or level order already exists")
		}
		return nil, appErrors.Internal(err, "failed to create workflow template")
	}

	s.logger.Info("workflow template created", zap.String("template_id", tmpl.ID), zap.Int("levels", len(tmpl.Levels)))
	s.emitAudit(ctx, actorID, models.AuditActionTemplateCreate, tmpl.ID, map[string]interface{}{
		"name":   tmpl.Name,
		"levels": len(tmpl.Levels),
	})
	return tmpl, nil
}

// Get returns a template regardless of its active flag, served from cache when possible.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "template id is required")
	}
	key := templateCacheKeyPrefix + id
	var cached models.WorkflowTemplate
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	tmpl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow template not found")
		}
		return nil, appErrors.Internal(err, "failed to load workflow template")
	}
	_ = s.cache.Set(ctx, key, tmpl, 0)
	return tmpl, nil
}

// ListActive returns every active template.
func (s *TemplateService) ListActive(ctx context.Context) ([]models.WorkflowTemplate, error) {
	templates, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list workflow templates")
	}
	if templates == nil {
		templates = []models.WorkflowTemplate{}
	}
	return templates, nil
}

// Deactivate stops new instances from starting. Running instances keep their levels.
func (s *TemplateService) Deactivate(ctx context.Context, id, actorID string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "workflow template not found")
		}
		return appErrors.Internal(err, "failed to deactivate workflow template")
	}
	_ = s.cache.Invalidate(ctx, templateCacheKeyPrefix+id)
	s.logger.Info("workflow template deactivated", zap.String("template_id", id))
	s.emitAudit(ctx, actorID, models.AuditActionTemplateDeactivate, id, map[string]interface{}{"isActive": false})
	return nil
}

func (s *TemplateService) buildLevels(reqs []dto.CreateLevelRequest) ([]models.WorkflowLevel, error) {
	seen := make(map[int]struct{}, len(reqs))
	levels := make([]models.WorkflowLevel, 0, len(reqs))
	for _, req := range reqs {
		if req.Order < 1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "level order must be at least 1")
		}
		if _, dup := seen[req.Order]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate level order %d", req.Order))
		}
		seen[req.Order] = struct{}{}

		strategy, ok := s.registry.Resolve(req.ApproverType)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown approver type %q", req.ApproverType))
		}
		users := uniqueStrings(trimAll(req.UserIDs))
		switch strings.ToLower(strategy.ApproverType()) {
		case strings.ToLower(models.ApproverTypeUsers):
			if len(users) < req.RequiredApprovals {
				return nil, appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("level %d requires %d approvals but lists %d users", req.Order, req.RequiredApprovals, len(users)))
			}
		case strings.ToLower(models.ApproverTypeDepartment):
			if req.DepartmentID == nil || strings.TrimSpace(*req.DepartmentID) == "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("level %d requires a departmentId", req.Order))
			}
		}
		if checker, ok := strategy.(expressionChecker); ok {
			if req.ApproverExpression == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("level %d requires an approverExpression", req.Order))
			}
			if err := checker.Validate(*req.ApproverExpression); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
					fmt.Sprintf("level %d has an invalid approverExpression", req.Order))
			}
		}

		levels = append(levels, models.WorkflowLevel{
			Order:              req.Order,
			ApproverType:       strategy.ApproverType(),
			DepartmentID:       req.DepartmentID,
			UserIDs:            pq.StringArray(users),
			ApproverExpression: req.ApproverExpression,
			RequiredApprovals:  req.RequiredApprovals,
			AllowedFileTypes:   pq.StringArray(trimAll(req.AllowedFileTypes)),
		})
	}
	return levels, nil
}

func (s *TemplateService) emitAudit(ctx context.Context, actorID, action, templateID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	var userID *string
	if actorID != "" {
		userID = &actorID
	}
	log := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   workflowTemplateResource,
		ResourceID: &templateID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "template-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record template audit", zap.String("template_id", templateID), zap.Error(err))
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
