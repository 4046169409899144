package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/models"
)

// Built-in validator names accepted by BuildValidators.
const (
	ValidatorFileType               = "file_type"
	ValidatorUserFileTypePermission = "user_file_type_permission"
	ValidatorApproverScope          = "approver_scope"
	ValidatorDocumentSize           = "document_size"
	ValidatorBusinessHours          = "business_hours"
	ValidatorSegregationOfDuties    = "segregation_of_duties"
)

// ValidationContext is the read-only snapshot handed to validators.
type ValidationContext struct {
	Instance   models.WorkflowInstance
	Records    []models.ApprovalRecord
	Level      models.WorkflowLevel
	Document   models.Document
	ApproverID string
	Action     DecisionAction
}

// ValidationResult is either an admission or a denial with a reason.
type ValidationResult struct {
	Allowed bool
	Reason  string
}

// Allow admits the request.
func Allow() ValidationResult { return ValidationResult{Allowed: true} }

// Deny rejects the request with a formatted reason.
func Deny(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Reason: fmt.Sprintf(format, args...)}
}

// WorkflowValidator is a single admission check. Implementations must not mutate state.
type WorkflowValidator interface {
	Name() string
	Validate(ctx context.Context, vc ValidationContext) (ValidationResult, error)
}

// ValidationDenial describes the validator that stopped the pipeline.
type ValidationDenial struct {
	Validator string
	Reason    string
}

// ValidationPipeline runs validators in order and stops at the first denial.
type ValidationPipeline struct {
	validators []WorkflowValidator
}

// NewValidationPipeline builds a pipeline over validators, preserving order.
func NewValidationPipeline(validators ...WorkflowValidator) *ValidationPipeline {
	filtered := make([]WorkflowValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &ValidationPipeline{validators: filtered}
}

// Names lists the validators in evaluation order.
func (p *ValidationPipeline) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.validators))
	for _, v := range p.validators {
		names = append(names, v.Name())
	}
	return names
}

// Run returns nil when every validator admits. A validator error aborts the run.
func (p *ValidationPipeline) Run(ctx context.Context, vc ValidationContext) (*ValidationDenial, error) {
	if p == nil {
		return nil, nil
	}
	for _, v := range p.validators {
		result, err := v.Validate(ctx, vc)
		if err != nil {
			return nil, fmt.Errorf("validator %s: %w", v.Name(), err)
		}
		if !result.Allowed {
			return &ValidationDenial{Validator: v.Name(), Reason: result.Reason}, nil
		}
	}
	return nil, nil
}

// FileTypeValidator requires the document to match the level's allowed mime types or extensions.
type FileTypeValidator struct{}

// Name implements WorkflowValidator.
func (FileTypeValidator) Name() string { return ValidatorFileType }

// Validate implements WorkflowValidator.
func (FileTypeValidator) Validate(_ context.Context, vc ValidationContext) (ValidationResult, error) {
	if len(vc.Level.AllowedFileTypes) == 0 {
		return Deny("level %d does not allow any file types", vc.Level.Order), nil
	}
	mime := strings.TrimSpace(vc.Document.MimeType)
	// Extension entries are dotted (".pdf"); a bare "pdf" is neither a mime nor an extension.
	ext := filepath.Ext(vc.Document.Filename)
	for _, allowed := range vc.Level.AllowedFileTypes {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if mime != "" && strings.EqualFold(allowed, mime) {
			return Allow(), nil
		}
		if ext != "" && strings.EqualFold(allowed, ext) {
			return Allow(), nil
		}
	}
	return Deny("file type %q is not allowed at level %d", vc.Document.MimeType, vc.Level.Order), nil
}

type fileTypeResolver interface {
	FindByMimeOrExtension(ctx context.Context, mime, ext string) (*models.FileType, error)
}

type fileTypePermissionChecker interface {
	HasPermission(ctx context.Context, userID, fileTypeID string) (bool, error)
}

// UserFileTypePermissionValidator requires an explicit grant on the document's catalog file type.
type UserFileTypePermissionValidator struct {
	fileTypes   fileTypeResolver
	permissions fileTypePermissionChecker
}

// NewUserFileTypePermissionValidator wires the catalog and grant lookups.
func NewUserFileTypePermissionValidator(fileTypes fileTypeResolver, permissions fileTypePermissionChecker) *UserFileTypePermissionValidator {
	return &UserFileTypePermissionValidator{fileTypes: fileTypes, permissions: permissions}
}

// Name implements WorkflowValidator.
func (v *UserFileTypePermissionValidator) Name() string { return ValidatorUserFileTypePermission }

// Validate implements WorkflowValidator.
func (v *UserFileTypePermissionValidator) Validate(ctx context.Context, vc ValidationContext) (ValidationResult, error) {
	fileType, err := v.fileTypes.FindByMimeOrExtension(ctx, vc.Document.MimeType, documentExtension(vc.Document.Filename))
	if err != nil {
		return ValidationResult{}, err
	}
	if fileType == nil {
		return Deny("unrecognized file type %q", vc.Document.MimeType), nil
	}
	granted, err := v.permissions.HasPermission(ctx, vc.ApproverID, fileType.ID)
	if err != nil {
		return ValidationResult{}, err
	}
	if !granted {
		return Deny("user has no permission for file type %s", fileType.Name), nil
	}
	return Allow(), nil
}

// ApproverScopeValidator asks the strategy registered for the level's approver type.
type ApproverScopeValidator struct {
	registry *ApproverStrategyRegistry
}

// NewApproverScopeValidator wires the registry.
func NewApproverScopeValidator(registry *ApproverStrategyRegistry) *ApproverScopeValidator {
	return &ApproverScopeValidator{registry: registry}
}

// Name implements WorkflowValidator.
func (v *ApproverScopeValidator) Name() string { return ValidatorApproverScope }

// Validate implements WorkflowValidator.
func (v *ApproverScopeValidator) Validate(ctx context.Context, vc ValidationContext) (ValidationResult, error) {
	strategy, ok := v.registry.Resolve(vc.Level.ApproverType)
	if !ok {
		return Deny("no approver strategy for type %q", vc.Level.ApproverType), nil
	}
	inScope, err := strategy.IsUserInScope(ctx, vc.ApproverID, vc.Level)
	if err != nil {
		return ValidationResult{}, err
	}
	if !inScope {
		return Deny("user is not an approver for level %d", vc.Level.Order), nil
	}
	return Allow(), nil
}

// DocumentSizeValidator caps the size of documents that can be decided.
type DocumentSizeValidator struct {
	MaxBytes int64
}

// Name implements WorkflowValidator.
func (DocumentSizeValidator) Name() string { return ValidatorDocumentSize }

// Validate implements WorkflowValidator.
func (v DocumentSizeValidator) Validate(_ context.Context, vc ValidationContext) (ValidationResult, error) {
	if v.MaxBytes > 0 && vc.Document.SizeBytes > v.MaxBytes {
		return Deny("document size %d exceeds limit %d", vc.Document.SizeBytes, v.MaxBytes), nil
	}
	return Allow(), nil
}

// BusinessHoursValidator only admits decisions on weekdays within [StartHour, EndHour) in Location.
type BusinessHoursValidator struct {
	StartHour int
	EndHour   int
	Location  *time.Location
	Now       func() time.Time
}

// Name implements WorkflowValidator.
func (BusinessHoursValidator) Name() string { return ValidatorBusinessHours }

// Validate implements WorkflowValidator.
func (v BusinessHoursValidator) Validate(_ context.Context, _ ValidationContext) (ValidationResult, error) {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	loc := v.Location
	if loc == nil {
		loc = time.UTC
	}
	t := now().In(loc)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return Deny("decisions are not accepted on %s", t.Weekday()), nil
	}
	if t.Hour() < v.StartHour || t.Hour() >= v.EndHour {
		return Deny("decisions are accepted between %02d:00 and %02d:00", v.StartHour, v.EndHour), nil
	}
	return Allow(), nil
}

// SegregationOfDutiesValidator stops one user approving the same instance at two levels.
type SegregationOfDutiesValidator struct{}

// Name implements WorkflowValidator.
func (SegregationOfDutiesValidator) Name() string { return ValidatorSegregationOfDuties }

// Validate implements WorkflowValidator.
func (SegregationOfDutiesValidator) Validate(_ context.Context, vc ValidationContext) (ValidationResult, error) {
	for _, record := range vc.Records {
		if record.Approved && record.ApproverUserID == vc.ApproverID && record.LevelOrder != vc.Level.Order {
			return Deny("user already approved level %d", record.LevelOrder), nil
		}
	}
	return Allow(), nil
}

// ValidatorDependencies carries the collaborators some validators need.
type ValidatorDependencies struct {
	FileTypes          fileTypeResolver
	Permissions        fileTypePermissionChecker
	Registry           *ApproverStrategyRegistry
	MaxDocumentSize    int64
	BusinessHoursStart int
	BusinessHoursEnd   int
	BusinessTimezone   string
	Logger             *zap.Logger
}

// BuildValidators instantiates validators by name in the given order.
func BuildValidators(names []string, deps ValidatorDependencies) ([]WorkflowValidator, error) {
	validators := make([]WorkflowValidator, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("validator %q listed twice", raw)
		}
		seen[name] = struct{}{}

		switch name {
		case ValidatorFileType:
			validators = append(validators, FileTypeValidator{})
		case ValidatorUserFileTypePermission:
			if deps.FileTypes == nil || deps.Permissions == nil {
				return nil, fmt.Errorf("validator %q requires file type and permission lookups", raw)
			}
			validators = append(validators, NewUserFileTypePermissionValidator(deps.FileTypes, deps.Permissions))
		case ValidatorApproverScope:
			if deps.Registry == nil {
				return nil, fmt.Errorf("validator %q requires an approver strategy registry", raw)
			}
			validators = append(validators, NewApproverScopeValidator(deps.Registry))
		case ValidatorDocumentSize:
			validators = append(validators, DocumentSizeValidator{MaxBytes: deps.MaxDocumentSize})
		case ValidatorBusinessHours:
			loc := time.UTC
			if deps.BusinessTimezone != "" {
				parsed, err := time.LoadLocation(deps.BusinessTimezone)
				if err != nil {
					return nil, fmt.Errorf("business hours timezone: %w", err)
				}
				loc = parsed
			}
			if deps.BusinessHoursStart < 0 || deps.BusinessHoursEnd > 24 || deps.BusinessHoursStart >= deps.BusinessHoursEnd {
				return nil, fmt.Errorf("invalid business hours %d-%d", deps.BusinessHoursStart, deps.BusinessHoursEnd)
			}
			validators = append(validators, BusinessHoursValidator{
				StartHour: deps.BusinessHoursStart,
				EndHour:   deps.BusinessHoursEnd,
				Location:  loc,
			})
		case ValidatorSegregationOfDuties:
			validators = append(validators, SegregationOfDutiesValidator{})
		default:
			return nil, fmt.Errorf("unknown validator %q", raw)
		}
	}
	if deps.Logger != nil {
		deps.Logger.Debug("workflow validators configured", zap.Strings("validators", names))
	}
	return validators, nil
}

func documentExtension(filename string) string {
	return normalizeExtension(filepath.Ext(filename))
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
