package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	"github.com/noah-isme/docflow-api/internal/repository"
	"github.com/noah-isme/docflow-api/pkg/database"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/jobs"
	"github.com/noah-isme/docflow-api/pkg/tracing"
)

const (
	workflowInstanceResource  = "workflow_instance"
	defaultPendingScanPage    = 500
	certificateJobType        = "approval_certificate"
	workflowAuditUserAgent    = "workflow-service"
	workflowOutcomeAdmitted   = "admitted"
	workflowOutcomeDenied     = "denied"
	workflowOutcomeConflict   = "conflict"
	workflowOutcomeFailed     = "failed"
	workflowOutcomeBadRequest = "invalid"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type workflowTemplateReader interface {
	Get(ctx context.Context, id string) (*models.WorkflowTemplate, error)
}

type workflowInstanceStore interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.WorkflowInstance, error)
	UpdateState(ctx context.Context, tx *sqlx.Tx, params repository.UpdateInstanceStateParams) error
	ListByStatus(ctx context.Context, status models.InstanceStatus, after *repository.InstanceCursor, limit int) ([]models.WorkflowInstance, error)
}

type approvalRecordStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error
	ListByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID string) ([]models.ApprovalRecord, error)
	ListByInstances(ctx context.Context, instanceIDs []string) (map[string][]models.ApprovalRecord, error)
}

type documentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type workflowMetrics interface {
	ObserveWorkflowDecision(action, outcome string)
	ObserveValidationDenial(validator string)
}

// WorkflowService drives instances through their template's approval levels.
type WorkflowService struct {
	templates    workflowTemplateReader
	instances    workflowInstanceStore
	records      approvalRecordStore
	documents    documentReader
	tx           txProvider
	pipeline     *ValidationPipeline
	registry     *ApproverStrategyRegistry
	audit        auditLogger
	certificates jobDispatcher
	metrics      workflowMetrics
	logger       *zap.Logger
	now          func() time.Time
	pageSize     int
}

// WorkflowOption customises optional collaborators.
type WorkflowOption func(*WorkflowService)

// WithWorkflowAudit records audit entries for starts and decisions.
func WithWorkflowAudit(audit auditLogger) WorkflowOption {
	return func(s *WorkflowService) { s.audit = audit }
}

// WithCertificateQueue enqueues certificate rendering when an instance is approved.
func WithCertificateQueue(queue jobDispatcher) WorkflowOption {
	return func(s *WorkflowService) { s.certificates = queue }
}

// WithWorkflowMetrics reports decision outcomes.
func WithWorkflowMetrics(metrics workflowMetrics) WorkflowOption {
	return func(s *WorkflowService) { s.metrics = metrics }
}

// WithWorkflowLogger sets the logger.
func WithWorkflowLogger(logger *zap.Logger) WorkflowOption {
	return func(s *WorkflowService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWorkflowClock overrides time.Now.
func WithWorkflowClock(now func() time.Time) WorkflowOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPendingScanPageSize sets how many in-progress instances are loaded per scan page.
func WithPendingScanPageSize(size int) WorkflowOption {
	return func(s *WorkflowService) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewWorkflowService wires the engine. pipeline and registry are built once at startup.
func NewWorkflowService(
	templates workflowTemplateReader,
	instances workflowInstanceStore,
	records approvalRecordStore,
	documents documentReader,
	tx txProvider,
	pipeline *ValidationPipeline,
	registry *ApproverStrategyRegistry,
	opts ...WorkflowOption,
) *WorkflowService {
	s := &WorkflowService{
		templates: templates,
		instances: instances,
		records:   records,
		documents: documents,
		tx:        tx,
		pipeline:  pipeline,
		registry:  registry,
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
		pageSize:  defaultPendingScanPage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens an instance at the template's first level.
func (s *WorkflowService) Start(ctx context.Context, templateID, documentID, requestedBy string) (_ *models.WorkflowInstanceDetail, err error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.start", map[string]string{"template_id": templateID, "document_id": documentID})
	defer func() { tracing.EndSpan(span, err) }()

	if strings.TrimSpace(templateID) == "" || strings.TrimSpace(documentID) == "" || strings.TrimSpace(requestedBy) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "templateId, documentId and requester are required")
	}

	tmpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, asServiceError(err, "failed to load workflow template")
	}
	if !tmpl.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "workflow template is inactive")
	}
	first, ok := tmpl.FirstOrder()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "workflow template has no levels")
	}

	if _, err = s.documents.GetByID(ctx, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, asServiceError(err, "failed to load document")
	}

	instance := &models.WorkflowInstance{
		ID:                uuid.NewString(),
		TemplateID:        tmpl.ID,
		DocumentID:        documentID,
		CurrentLevelOrder: first,
		Status:            models.InstanceStatusInProgress,
		RequestedBy:       requestedBy,
		RequestedAt:       s.now(),
		Version:           1,
	}
	if err = s.instances.Create(ctx, instance); err != nil {
		return nil, appErrors.Internal(err, "failed to create workflow instance")
	}

	s.logger.Info("workflow started",
		zap.String("instance_id", instance.ID),
		zap.String("template_id", tmpl.ID),
		zap.Int("level", first),
	)
	s.emitAudit(ctx, requestedBy, models.AuditActionWorkflowStart, instance.ID, nil, map[string]interface{}{
		"templateId":        tmpl.ID,
		"documentId":        documentID,
		"currentLevelOrder": first,
	})

	return &models.WorkflowInstanceDetail{WorkflowInstance: *instance, History: []models.ApprovalRecord{}}, nil
}

// Approve records an approval and advances or closes the instance once the level quorum is met.
func (s *WorkflowService) Approve(ctx context.Context, instanceID, approverID string, req dto.ApproveRequest) (*models.WorkflowInstanceDetail, error) {
	return s.decide(ctx, instanceID, approverID, DecisionApprove, optionalString(req.Comment), optionalString(req.Signature))
}

// Reject records a rejection and closes the instance.
func (s *WorkflowService) Reject(ctx context.Context, instanceID, approverID string, req dto.RejectRequest) (*models.WorkflowInstanceDetail, error) {
	return s.decide(ctx, instanceID, approverID, DecisionReject, optionalString(req.Comment), nil)
}

func (s *WorkflowService) decide(ctx context.Context, instanceID, approverID string, action DecisionAction, comment, signature *string) (_ *models.WorkflowInstanceDetail, err error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.decide", map[string]string{"instance_id": instanceID, "action": string(action)})
	defer func() {
		tracing.EndSpan(span, err)
		s.observeDecision(action, err)
	}()

	if strings.TrimSpace(instanceID) == "" || strings.TrimSpace(approverID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instance id and approver are required")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	instance, err := s.instances.LockByID(ctx, tx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "workflow instance not found")
			return nil, err
		}
		err = appErrors.Internal(err, "failed to lock workflow instance")
		return nil, err
	}

	tmpl, err := s.templates.Get(ctx, instance.TemplateID)
	if err != nil {
		if !errors.Is(err, appErrors.ErrNotFound) {
			err = asServiceError(err, "failed to load workflow template")
			return nil, err
		}
		tmpl, err = nil, nil
	}

	records, err := s.records.ListByInstance(ctx, tx, instance.ID)
	if err != nil {
		err = appErrors.Internal(err, "failed to load approval history")
		return nil, err
	}

	level, err := checkDecidable(tmpl, *instance, records, approverID)
	if err != nil {
		return nil, err
	}

	document, err := s.documents.GetByID(ctx, instance.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "document not found")
			return nil, err
		}
		err = asServiceError(err, "failed to load document")
		return nil, err
	}

	denial, err := s.pipeline.Run(ctx, ValidationContext{
		Instance:   *instance,
		Records:    records,
		Level:      level,
		Document:   *document,
		ApproverID: approverID,
		Action:     action,
	})
	if err != nil {
		err = appErrors.Internal(err, "failed to validate decision")
		return nil, err
	}
	if denial != nil {
		if s.metrics != nil {
			s.metrics.ObserveValidationDenial(denial.Validator)
		}
		s.logger.Info("workflow decision denied",
			zap.String("instance_id", instance.ID),
			zap.String("approver_id", approverID),
			zap.String("validator", denial.Validator),
			zap.String("reason", denial.Reason),
		)
		err = appErrors.Clone(appErrors.ErrValidationFailed, fmt.Sprintf("%s: %s", denial.Validator, denial.Reason))
		return nil, err
	}

	result, err := applyDecision(decisionInput{
		Template:   tmpl,
		Instance:   *instance,
		Level:      level,
		Records:    records,
		ApproverID: approverID,
		Action:     action,
		Comment:    comment,
		Signature:  signature,
		Now:        s.now(),
	})
	if err != nil {
		return nil, err
	}

	record := result.Record
	record.ID = uuid.NewString()
	if err = s.records.Create(ctx, tx, &record); err != nil {
		if database.IsUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrConflict, "approver already decided this level")
			return nil, err
		}
		err = appErrors.Internal(err, "failed to record decision")
		return nil, err
	}

	next := result.Instance
	if err = s.instances.UpdateState(ctx, tx, repository.UpdateInstanceStateParams{
		ID:                next.ID,
		ExpectedVersion:   instance.Version,
		CurrentLevelOrder: next.CurrentLevelOrder,
		Status:            next.Status,
		ClosedAt:          next.ClosedAt,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrConflict, "workflow instance changed concurrently")
			return nil, err
		}
		err = appErrors.Internal(err, "failed to update workflow instance")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit decision")
		return nil, err
	}
	next.Version = instance.Version + 1

	s.logger.Info("workflow decision recorded",
		zap.String("instance_id", next.ID),
		zap.String("approver_id", approverID),
		zap.String("action", string(action)),
		zap.Int("level", level.Order),
		zap.Int("approvals", result.ApprovalCount),
		zap.String("status", string(next.Status)),
	)

	auditAction := models.AuditActionWorkflowApprove
	if action == DecisionReject {
		auditAction = models.AuditActionWorkflowReject
	}
	s.emitAudit(ctx, approverID, auditAction, next.ID,
		map[string]interface{}{"status": instance.Status, "currentLevelOrder": instance.CurrentLevelOrder},
		map[string]interface{}{"status": next.Status, "currentLevelOrder": next.CurrentLevelOrder, "recordId": record.ID},
	)

	if result.Closed && next.Status == models.InstanceStatusApproved {
		s.enqueueCertificate(next.ID)
	}

	history := make([]models.ApprovalRecord, 0, len(records)+1)
	history = append(history, records...)
	history = append(history, record)
	return &models.WorkflowInstanceDetail{WorkflowInstance: next, History: history}, nil
}

// GetInstance returns an instance with its ordered approval history.
func (s *WorkflowService) GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstanceDetail, error) {
	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	records, err := s.records.ListByInstance(ctx, nil, instance.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load approval history")
	}
	if records == nil {
		records = []models.ApprovalRecord{}
	}
	return &models.WorkflowInstanceDetail{WorkflowInstance: *instance, History: records}, nil
}

// ListPendingApprovalsForUser scans in-progress instances for ones awaiting userID at their current level.
func (s *WorkflowService) ListPendingApprovalsForUser(ctx context.Context, userID string) (_ []dto.PendingApprovalItem, err error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.pending_scan", map[string]string{"user_id": userID})
	defer func() { tracing.EndSpan(span, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}

	templates := make(map[string]*models.WorkflowTemplate)
	items := make([]dto.PendingApprovalItem, 0)
	var cursor *repository.InstanceCursor
	for {
		page, err := s.instances.ListByStatus(ctx, models.InstanceStatusInProgress, cursor, s.pageSize)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list workflow instances")
		}
		if len(page) == 0 {
			break
		}

		ids := make([]string, 0, len(page))
		for _, instance := range page {
			ids = append(ids, instance.ID)
		}
		histories, err := s.records.ListByInstances(ctx, ids)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load approval history")
		}

		for _, instance := range page {
			tmpl, err := s.cachedTemplate(ctx, templates, instance.TemplateID)
			if err != nil {
				return nil, err
			}
			if tmpl == nil {
				continue
			}
			level, ok := tmpl.LevelByOrder(instance.CurrentLevelOrder)
			if !ok {
				s.logger.Warn("instance level not on template", zap.String("instance_id", instance.ID), zap.Int("level", instance.CurrentLevelOrder))
				continue
			}
			strategy, ok := s.registry.Resolve(level.ApproverType)
			if !ok {
				continue
			}
			records := histories[instance.ID]
			if hasDecided(records, level.Order, userID) {
				continue
			}
			inScope, err := strategy.IsUserInScope(ctx, userID, *level)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to resolve approver scope")
			}
			if !inScope {
				continue
			}
			items = append(items, dto.PendingApprovalItem{
				InstanceID:        instance.ID,
				TemplateID:        tmpl.ID,
				TemplateName:      tmpl.Name,
				DocumentID:        instance.DocumentID,
				CurrentLevelOrder: level.Order,
				RequiredApprovals: level.RequiredApprovals,
				ApprovalCount:     approvalCount(records, level.Order),
				RequestedBy:       instance.RequestedBy,
				RequestedAt:       instance.RequestedAt,
			})
		}

		if len(page) < s.pageSize {
			break
		}
		last := page[len(page)-1]
		cursor = &repository.InstanceCursor{RequestedAt: last.RequestedAt, ID: last.ID}
	}
	return items, nil
}

// ListApprovers enumerates who may still decide at an in-progress instance's current level.
func (s *WorkflowService) ListApprovers(ctx context.Context, instanceID string) (*dto.InstanceApproversResponse, error) {
	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("workflow instance is %s", instance.Status))
	}
	tmpl, err := s.templates.Get(ctx, instance.TemplateID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "workflow template not resolvable")
		}
		return nil, asServiceError(err, "failed to load workflow template")
	}
	level, ok := tmpl.LevelByOrder(instance.CurrentLevelOrder)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("level %d not found on template", instance.CurrentLevelOrder))
	}
	approvers := []string{}
	strategy, ok := s.registry.Resolve(level.ApproverType)
	if ok {
		scope, err := strategy.ListApprovers(ctx, *level)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list approvers")
		}
		records, err := s.records.ListByInstance(ctx, nil, instance.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load approval history")
		}
		for _, id := range scope {
			if !hasDecided(records, level.Order, id) {
				approvers = append(approvers, id)
			}
		}
	}
	return &dto.InstanceApproversResponse{
		InstanceID: instance.ID,
		LevelOrder: level.Order,
		Approvers:  approvers,
	}, nil
}

func (s *WorkflowService) loadInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	if strings.TrimSpace(instanceID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instance id is required")
	}
	instance, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow instance not found")
		}
		return nil, appErrors.Internal(err, "failed to load workflow instance")
	}
	return instance, nil
}

// cachedTemplate memoises template lookups for one scan. A missing template yields nil.
func (s *WorkflowService) cachedTemplate(ctx context.Context, memo map[string]*models.WorkflowTemplate, id string) (*models.WorkflowTemplate, error) {
	if tmpl, ok := memo[id]; ok {
		return tmpl, nil
	}
	tmpl, err := s.templates.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, appErrors.ErrNotFound) {
			return nil, asServiceError(err, "failed to load workflow template")
		}
		s.logger.Warn("workflow template missing for instance", zap.String("template_id", id))
		tmpl = nil
	}
	memo[id] = tmpl
	return tmpl, nil
}

func (s *WorkflowService) enqueueCertificate(instanceID string) {
	if s.certificates == nil {
		return
	}
	if err := s.certificates.Enqueue(jobs.Job{ID: instanceID, Type: certificateJobType, Payload: instanceID}); err != nil {
		s.logger.Warn("failed to enqueue approval certificate", zap.String("instance_id", instanceID), zap.Error(err))
	}
}

func (s *WorkflowService) observeDecision(action DecisionAction, err error) {
	if s.metrics == nil {
		return
	}
	outcome := workflowOutcomeAdmitted
	switch {
	case err == nil:
	case errors.Is(err, appErrors.ErrValidationFailed):
		outcome = workflowOutcomeDenied
	case errors.Is(err, appErrors.ErrConflict):
		outcome = workflowOutcomeConflict
	case errors.Is(err, appErrors.ErrInternal):
		outcome = workflowOutcomeFailed
	default:
		outcome = workflowOutcomeBadRequest
	}
	s.metrics.ObserveWorkflowDecision(string(action), outcome)
}

func (s *WorkflowService) emitAudit(ctx context.Context, actorID, action, instanceID string, oldValues, newValues map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var oldPayload, newPayload []byte
	if oldValues != nil {
		oldPayload, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		newPayload, _ = json.Marshal(newValues)
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   workflowInstanceResource,
		ResourceID: &instanceID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  "system",
		UserAgent:  workflowAuditUserAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record workflow audit", zap.String("instance_id", instanceID), zap.Error(err))
	}
}

// asServiceError passes typed errors through and wraps anything else as internal.
func asServiceError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
