package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
)

type templateStoreStub struct {
	created       []*models.WorkflowTemplate
	byID          map[string]*models.WorkflowTemplate
	active        []models.WorkflowTemplate
	exists        bool
	createErr     error
	deactivateErr error
	getCalls      int
}

func (s *templateStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, tmpl *models.WorkflowTemplate) error {
	if s.createErr != nil {
		return s.createErr
	}
	tmpl.ID = "tmpl-new"
	s.created = append(s.created, tmpl)
	return nil
}

func (s *templateStoreStub) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	s.getCalls++
	if tmpl, ok := s.byID[id]; ok {
		return tmpl, nil
	}
	return nil, sql.ErrNoRows
}

func (s *templateStoreStub) ListActive(ctx context.Context) ([]models.WorkflowTemplate, error) {
	return s.active, nil
}

func (s *templateStoreStub) ExistsByName(ctx context.Context, name string) (bool, error) {
	return s.exists, nil
}

func (s *templateStoreStub) Deactivate(ctx context.Context, id string) error {
	if s.deactivateErr != nil {
		return s.deactivateErr
	}
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	s.byID[id].IsActive = false
	return nil
}

type memoryCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (r *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = raw
	return nil
}

func (r *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.items, key)
	}
	return nil
}

func newTemplateServiceFixture(t *testing.T, repo *templateStoreStub) (*TemplateService, *workflowAuditStub, txProvider) {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	strategies, err := BuildApproverStrategies([]string{"users", "department", "expression"}, zap.NewNop())
	require.NoError(t, err)
	registry, err := NewApproverStrategyRegistry(strategies...)
	require.NoError(t, err)
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, zap.NewNop(), true)
	audit := &workflowAuditStub{}
	return NewTemplateService(repo, tx, registry, cache, audit, nil, zap.NewNop()), audit, tx
}

func validTemplateRequest() dto.CreateTemplateRequest {
	return dto.CreateTemplateRequest{
		Name: "  Purchase order ",
		Levels: []dto.CreateLevelRequest{
			{Order: 1, ApproverType: "users", UserIDs: []string{"alice", " alice ", "bob"}, RequiredApprovals: 2, AllowedFileTypes: []string{"pdf"}},
			{Order: 2, ApproverType: "EXPRESSION", ApproverExpression: strPtr(`user == "carol"`), RequiredApprovals: 1},
		},
	}
}

func TestTemplateServiceCreate(t *testing.T) {
	repo := &templateStoreStub{}
	svc, audit, _ := newTemplateServiceFixture(t, repo)

	tmpl, err := svc.Create(context.Background(), validTemplateRequest(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "tmpl-new", tmpl.ID)
	assert.Equal(t, "Purchase order", tmpl.Name)
	assert.True(t, tmpl.IsActive)
	require.Len(t, tmpl.Levels, 2)
	assert.Equal(t, models.ApproverTypeUsers, tmpl.Levels[0].ApproverType)
	assert.Equal(t, []string{"alice", "bob"}, []string(tmpl.Levels[0].UserIDs))
	assert.Equal(t, models.ApproverTypeExpression, tmpl.Levels[1].ApproverType)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTemplateCreate, audit.logs[0].Action)
}

func TestTemplateServiceCreateRejectsInvalidLevels(t *testing.T) {
	mutate := map[string]func(req *dto.CreateTemplateRequest){
		"duplicate order":      func(req *dto.CreateTemplateRequest) { req.Levels[1].Order = 1 },
		"zero order":           func(req *dto.CreateTemplateRequest) { req.Levels[0].Order = 0 },
		"unknown type":         func(req *dto.CreateTemplateRequest) { req.Levels[0].ApproverType = "committee" },
		"unreachable quorum":   func(req *dto.CreateTemplateRequest) { req.Levels[0].RequiredApprovals = 3 },
		"zero quorum":          func(req *dto.CreateTemplateRequest) { req.Levels[0].RequiredApprovals = 0 },
		"bad expression":       func(req *dto.CreateTemplateRequest) { req.Levels[1].ApproverExpression = strPtr("user ==") },
		"missing expression":   func(req *dto.CreateTemplateRequest) { req.Levels[1].ApproverExpression = nil },
		"department without id": func(req *dto.CreateTemplateRequest) {
			req.Levels[1] = dto.CreateLevelRequest{Order: 2, ApproverType: "department", RequiredApprovals: 1}
		},
		"no levels": func(req *dto.CreateTemplateRequest) { req.Levels = nil },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			repo := &templateStoreStub{}
			svc, _, _ := newTemplateServiceFixture(t, repo)
			req := validTemplateRequest()
			fn(&req)
			_, err := svc.Create(context.Background(), req, "admin-1")
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
			assert.Empty(t, repo.created)
		})
	}
}

func TestTemplateServiceCreateDuplicateName(t *testing.T) {
	svc, _, _ := newTemplateServiceFixture(t, &templateStoreStub{exists: true})
	_, err := svc.Create(context.Background(), validTemplateRequest(), "admin-1")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTemplateServiceCreateRollsBackOnFailure(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	registry, err := NewApproverStrategyRegistry(UsersApproverStrategy{}, NewExpressionApproverStrategy(nil))
	require.NoError(t, err)
	repo := &templateStoreStub{createErr: errors.New("insert failed")}
	svc := NewTemplateService(repo, tx, registry, nil, nil, nil, nil)

	_, err = svc.Create(context.Background(), validTemplateRequest(), "admin-1")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateServiceGetUsesCache(t *testing.T) {
	repo := &templateStoreStub{byID: map[string]*models.WorkflowTemplate{
		"tmpl-1": twoLevelTemplate(),
	}}
	svc, _, _ := newTemplateServiceFixture(t, repo)

	first, err := svc.Get(context.Background(), "tmpl-1")
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getCalls)
	assert.Equal(t, first.Name, second.Name)
	require.Len(t, second.Levels, 2)
	assert.Equal(t, []string{"bob", "carol"}, []string(second.Levels[0].UserIDs))

	_, err = svc.Get(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTemplateServiceDeactivateInvalidatesCache(t *testing.T) {
	repo := &templateStoreStub{byID: map[string]*models.WorkflowTemplate{
		"tmpl-1": twoLevelTemplate(),
	}}
	svc, audit, _ := newTemplateServiceFixture(t, repo)

	_, err := svc.Get(context.Background(), "tmpl-1")
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), "tmpl-1", "admin-1"))

	tmpl, err := svc.Get(context.Background(), "tmpl-1")
	require.NoError(t, err)
	assert.False(t, tmpl.IsActive)
	assert.Equal(t, 2, repo.getCalls)
	require.Len(t, audit.logs, 1)

	err = svc.Deactivate(context.Background(), "missing", "admin-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
