package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/models"
)

// ApproverStrategy decides who may act on a level for one approver type tag.
type ApproverStrategy interface {
	ApproverType() string
	IsUserInScope(ctx context.Context, userID string, level models.WorkflowLevel) (bool, error)
	ListApprovers(ctx context.Context, level models.WorkflowLevel) ([]string, error)
}

// ApproverStrategyRegistry maps approver type tags to strategies, case-insensitively.
// It is built once at startup and read-only afterwards.
type ApproverStrategyRegistry struct {
	strategies map[string]ApproverStrategy
	types      []string
}

// NewApproverStrategyRegistry registers strategies in order. Two strategies claiming the same tag is a configuration error.
func NewApproverStrategyRegistry(strategies ...ApproverStrategy) (*ApproverStrategyRegistry, error) {
	registry := &ApproverStrategyRegistry{strategies: make(map[string]ApproverStrategy, len(strategies))}
	for _, strategy := range strategies {
		if strategy == nil {
			continue
		}
		tag := strings.TrimSpace(strategy.ApproverType())
		if tag == "" {
			return nil, fmt.Errorf("approver strategy %T has an empty type tag", strategy)
		}
		key := strings.ToLower(tag)
		if existing, ok := registry.strategies[key]; ok {
			return nil, fmt.Errorf("approver type %q registered twice (%T and %T)", tag, existing, strategy)
		}
		registry.strategies[key] = strategy
		registry.types = append(registry.types, tag)
	}
	return registry, nil
}

// Resolve returns the strategy for approverType, if any.
func (r *ApproverStrategyRegistry) Resolve(approverType string) (ApproverStrategy, bool) {
	if r == nil {
		return nil, false
	}
	strategy, ok := r.strategies[strings.ToLower(strings.TrimSpace(approverType))]
	return strategy, ok
}

// Types lists registered tags in registration order.
func (r *ApproverStrategyRegistry) Types() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.types...)
}

// BuildApproverStrategies instantiates the built-in strategies named in names.
func BuildApproverStrategies(names []string, logger *zap.Logger) ([]ApproverStrategy, error) {
	strategies := make([]ApproverStrategy, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "users":
			strategies = append(strategies, UsersApproverStrategy{})
		case "department":
			strategies = append(strategies, DepartmentApproverStrategy{})
		case "expression":
			strategies = append(strategies, NewExpressionApproverStrategy(logger))
		default:
			return nil, fmt.Errorf("unknown approver strategy %q", name)
		}
	}
	return strategies, nil
}

// UsersApproverStrategy admits exactly the users listed on the level.
type UsersApproverStrategy struct{}

// ApproverType implements ApproverStrategy.
func (UsersApproverStrategy) ApproverType() string { return models.ApproverTypeUsers }

// IsUserInScope implements ApproverStrategy.
func (UsersApproverStrategy) IsUserInScope(_ context.Context, userID string, level models.WorkflowLevel) (bool, error) {
	for _, id := range level.UserIDs {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// ListApprovers implements ApproverStrategy.
func (UsersApproverStrategy) ListApprovers(_ context.Context, level models.WorkflowLevel) ([]string, error) {
	return uniqueStrings(level.UserIDs), nil
}

// DepartmentApproverStrategy has no organisational directory behind it and denies everyone.
type DepartmentApproverStrategy struct{}

// ApproverType implements ApproverStrategy.
func (DepartmentApproverStrategy) ApproverType() string { return models.ApproverTypeDepartment }

// IsUserInScope implements ApproverStrategy.
func (DepartmentApproverStrategy) IsUserInScope(context.Context, string, models.WorkflowLevel) (bool, error) {
	return false, nil
}

// ListApprovers implements ApproverStrategy.
func (DepartmentApproverStrategy) ListApprovers(context.Context, models.WorkflowLevel) ([]string, error) {
	return []string{}, nil
}

// ExpressionApproverStrategy evaluates level.ApproverExpression with expr-lang against
// {user, users, department, order}. Missing, invalid or non-boolean expressions deny.
type ExpressionApproverStrategy struct {
	logger *zap.Logger

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewExpressionApproverStrategy constructs the strategy with an empty program cache.
func NewExpressionApproverStrategy(logger *zap.Logger) *ExpressionApproverStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpressionApproverStrategy{logger: logger, programs: make(map[string]*vm.Program)}
}

// ApproverType implements ApproverStrategy.
func (s *ExpressionApproverStrategy) ApproverType() string { return models.ApproverTypeExpression }

// IsUserInScope implements ApproverStrategy.
func (s *ExpressionApproverStrategy) IsUserInScope(_ context.Context, userID string, level models.WorkflowLevel) (bool, error) {
	if level.ApproverExpression == nil || strings.TrimSpace(*level.ApproverExpression) == "" {
		return false, nil
	}
	program, err := s.compile(*level.ApproverExpression)
	if err != nil {
		s.logger.Warn("approver expression rejected", zap.String("level_id", level.ID), zap.Error(err))
		return false, nil
	}
	out, err := expr.Run(program, expressionEnv(userID, level))
	if err != nil {
		s.logger.Warn("approver expression failed", zap.String("level_id", level.ID), zap.Error(err))
		return false, nil
	}
	allowed, ok := out.(bool)
	return ok && allowed, nil
}

// ListApprovers returns the candidates from level.UserIDs for which the expression holds.
func (s *ExpressionApproverStrategy) ListApprovers(ctx context.Context, level models.WorkflowLevel) ([]string, error) {
	approvers := make([]string, 0, len(level.UserIDs))
	for _, candidate := range uniqueStrings(level.UserIDs) {
		ok, err := s.IsUserInScope(ctx, candidate, level)
		if err != nil {
			return nil, err
		}
		if ok {
			approvers = append(approvers, candidate)
		}
	}
	return approvers, nil
}

// Validate compiles expression so templates can be rejected at creation time.
func (s *ExpressionApproverStrategy) Validate(expression string) error {
	_, err := s.compile(expression)
	return err
}

func (s *ExpressionApproverStrategy) compile(expression string) (*vm.Program, error) {
	s.mu.RLock()
	program, ok := s.programs[expression]
	s.mu.RUnlock()
	if ok {
		return program, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if program, ok = s.programs[expression]; ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.Env(expressionEnv("", models.WorkflowLevel{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile approver expression: %w", err)
	}
	s.programs[expression] = program
	return program, nil
}

func expressionEnv(userID string, level models.WorkflowLevel) map[string]interface{} {
	department := ""
	if level.DepartmentID != nil {
		department = *level.DepartmentID
	}
	users := []string(level.UserIDs)
	if users == nil {
		users = []string{}
	}
	return map[string]interface{}{
		"user":       userID,
		"users":      users,
		"department": department,
		"order":      level.Order,
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
