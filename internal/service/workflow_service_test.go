package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/docflow-api/internal/dto"
	"github.com/noah-isme/docflow-api/internal/models"
	"github.com/noah-isme/docflow-api/internal/repository"
	appErrors "github.com/noah-isme/docflow-api/pkg/errors"
	"github.com/noah-isme/docflow-api/pkg/jobs"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type templateGetterStub struct {
	templates map[string]*models.WorkflowTemplate
	err       error
	calls     int
}

func (s *templateGetterStub) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if tmpl, ok := s.templates[id]; ok {
		return tmpl, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow template not found")
}

type instanceStoreStub struct {
	mu        sync.Mutex
	items     map[string]*models.WorkflowInstance
	order     []string
	createErr error
	updateErr error
	// afterList runs after each ListByStatus page, outside the lock.
	afterList func(page []models.WorkflowInstance)
}

func newInstanceStoreStub() *instanceStoreStub {
	return &instanceStoreStub{items: make(map[string]*models.WorkflowInstance)}
}

func (s *instanceStoreStub) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *instance
	s.items[instance.ID] = &copied
	s.order = append(s.order, instance.ID)
	return nil
}

func (s *instanceStoreStub) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (s *instanceStoreStub) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.WorkflowInstance, error) {
	return s.GetByID(ctx, id)
}

func (s *instanceStoreStub) UpdateState(ctx context.Context, tx *sqlx.Tx, params repository.UpdateInstanceStateParams) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[params.ID]
	if !ok || item.Version != params.ExpectedVersion || item.Status != models.InstanceStatusInProgress {
		return sql.ErrNoRows
	}
	item.CurrentLevelOrder = params.CurrentLevelOrder
	item.Status = params.Status
	item.ClosedAt = params.ClosedAt
	item.Version++
	return nil
}

func (s *instanceStoreStub) ListByStatus(ctx context.Context, status models.InstanceStatus, after *repository.InstanceCursor, limit int) ([]models.WorkflowInstance, error) {
	s.mu.Lock()
	var matched []models.WorkflowInstance
	for _, id := range s.order {
		if s.items[id].Status == status {
			matched = append(matched, *s.items[id])
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return instanceBefore(matched[i].RequestedAt, matched[i].ID, matched[j].RequestedAt, matched[j].ID)
	})
	page := make([]models.WorkflowInstance, 0, limit)
	for _, item := range matched {
		if after != nil && !instanceBefore(after.RequestedAt, after.ID, item.RequestedAt, item.ID) {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, item)
	}
	if s.afterList != nil {
		s.afterList(page)
	}
	return page, nil
}

func instanceBefore(at time.Time, id string, otherAt time.Time, otherID string) bool {
	if !at.Equal(otherAt) {
		return at.Before(otherAt)
	}
	return id < otherID
}

type recordStoreStub struct {
	mu        sync.Mutex
	records   []models.ApprovalRecord
	createErr error
}

func (s *recordStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

func (s *recordStoreStub) ListByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID string) ([]models.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ApprovalRecord
	for _, r := range s.records {
		if r.InstanceID == instanceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *recordStoreStub) ListByInstances(ctx context.Context, instanceIDs []string) (map[string][]models.ApprovalRecord, error) {
	grouped := make(map[string][]models.ApprovalRecord)
	for _, id := range instanceIDs {
		records, _ := s.ListByInstance(ctx, nil, id)
		if len(records) > 0 {
			grouped[id] = records
		}
	}
	return grouped, nil
}

type documentReaderStub struct {
	docs map[string]*models.Document
}

func (s documentReaderStub) GetByID(ctx context.Context, id string) (*models.Document, error) {
	if doc, ok := s.docs[id]; ok {
		return doc, nil
	}
	return nil, sql.ErrNoRows
}

type fileTypeResolverStub struct {
	fileType *models.FileType
	err      error
}

func (s fileTypeResolverStub) FindByMimeOrExtension(ctx context.Context, mime, ext string) (*models.FileType, error) {
	return s.fileType, s.err
}

type permissionCheckerStub struct {
	granted map[string]bool
	err     error
}

func (s permissionCheckerStub) HasPermission(ctx context.Context, userID, fileTypeID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.granted[userID+"/"+fileTypeID], nil
}

type workflowAuditStub struct {
	logs []*models.AuditLog
}

func (s *workflowAuditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type jobQueueStub struct {
	jobs []jobs.Job
}

func (s *jobQueueStub) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type workflowMetricsStub struct {
	decisions map[string]int
	denials   map[string]int
}

func (s *workflowMetricsStub) ObserveWorkflowDecision(action, outcome string) {
	if s.decisions == nil {
		s.decisions = make(map[string]int)
	}
	s.decisions[action+":"+outcome]++
}

func (s *workflowMetricsStub) ObserveValidationDenial(validator string) {
	if s.denials == nil {
		s.denials = make(map[string]int)
	}
	s.denials[validator]++
}

type workflowFixture struct {
	service   *WorkflowService
	mock      sqlmock.Sqlmock
	templates *templateGetterStub
	instances *instanceStoreStub
	records   *recordStoreStub
	audit     *workflowAuditStub
	queue     *jobQueueStub
	metrics   *workflowMetricsStub
}

func twoLevelTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:       "tmpl-1",
		Name:     "Contract sign-off",
		IsActive: true,
		Levels: []models.WorkflowLevel{
			{ID: "lvl-2", Order: 2, ApproverType: "users", UserIDs: pq.StringArray{"bob", "carol"}, RequiredApprovals: 2, AllowedFileTypes: pq.StringArray{"application/pdf"}},
			{ID: "lvl-1", Order: 1, ApproverType: "Users", UserIDs: pq.StringArray{"alice"}, RequiredApprovals: 1, AllowedFileTypes: pq.StringArray{".PDF"}},
		},
	}
}

func newWorkflowFixture(t *testing.T, templates ...*models.WorkflowTemplate) *workflowFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)

	tmplStub := &templateGetterStub{templates: map[string]*models.WorkflowTemplate{}}
	for _, tmpl := range templates {
		tmplStub.templates[tmpl.ID] = tmpl
	}

	registry, err := NewApproverStrategyRegistry(UsersApproverStrategy{}, DepartmentApproverStrategy{})
	require.NoError(t, err)

	pdf := &models.FileType{ID: "ft-pdf", Name: "PDF", Mime: "application/pdf"}
	granted := map[string]bool{}
	for _, user := range []string{"alice", "bob", "carol", "dave"} {
		granted[user+"/ft-pdf"] = true
	}
	pipeline := NewValidationPipeline(
		FileTypeValidator{},
		NewUserFileTypePermissionValidator(fileTypeResolverStub{fileType: pdf}, permissionCheckerStub{granted: granted}),
		NewApproverScopeValidator(registry),
	)

	docs := documentReaderStub{docs: map[string]*models.Document{
		"doc-1": {ID: "doc-1", Filename: "contract.pdf", MimeType: "application/pdf", SizeBytes: 1024},
	}}

	f := &workflowFixture{
		mock:      mock,
		templates: tmplStub,
		instances: newInstanceStoreStub(),
		records:   &recordStoreStub{},
		audit:     &workflowAuditStub{},
		queue:     &jobQueueStub{},
		metrics:   &workflowMetricsStub{},
	}
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f.service = NewWorkflowService(tmplStub, f.instances, f.records, docs, tx, pipeline, registry,
		WithWorkflowAudit(f.audit),
		WithCertificateQueue(f.queue),
		WithWorkflowMetrics(f.metrics),
		WithWorkflowLogger(zap.NewNop()),
		WithWorkflowClock(func() time.Time { return clock }),
		WithPendingScanPageSize(1),
	)
	return f
}

func (f *workflowFixture) approve(t *testing.T, instanceID, user string) (*models.WorkflowInstanceDetail, error) {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	return f.service.Approve(context.Background(), instanceID, user, dto.ApproveRequest{Comment: "ok"})
}

func (f *workflowFixture) denied(t *testing.T, instanceID, user string, action DecisionAction) error {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	var err error
	if action == DecisionReject {
		_, err = f.service.Reject(context.Background(), instanceID, user, dto.RejectRequest{})
	} else {
		_, err = f.service.Approve(context.Background(), instanceID, user, dto.ApproveRequest{})
	}
	return err
}

func TestWorkflowServiceStartUsesLowestLevel(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())

	detail, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)
	assert.Equal(t, 1, detail.CurrentLevelOrder)
	assert.Equal(t, models.InstanceStatusInProgress, detail.Status)
	assert.Empty(t, detail.History)
	assert.Nil(t, detail.ClosedAt)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionWorkflowStart, f.audit.logs[0].Action)
}

func TestWorkflowServiceStartPreconditions(t *testing.T) {
	inactive := twoLevelTemplate()
	inactive.ID = "tmpl-inactive"
	inactive.IsActive = false
	empty := &models.WorkflowTemplate{ID: "tmpl-empty", IsActive: true}
	f := newWorkflowFixture(t, twoLevelTemplate(), inactive, empty)

	cases := []struct {
		name       string
		templateID string
		documentID string
		code       string
	}{
		{name: "missing template", templateID: "nope", documentID: "doc-1", code: appErrors.ErrNotFound.Code},
		{name: "inactive template", templateID: "tmpl-inactive", documentID: "doc-1", code: appErrors.ErrInvalidState.Code},
		{name: "no levels", templateID: "tmpl-empty", documentID: "doc-1", code: appErrors.ErrInvalidState.Code},
		{name: "missing document", templateID: "tmpl-1", documentID: "doc-x", code: appErrors.ErrNotFound.Code},
		{name: "blank document", templateID: "tmpl-1", documentID: " ", code: appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Start(context.Background(), tc.templateID, tc.documentID, "requester")
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, f.instances.items)
}

func TestWorkflowServiceApproveAdvancesAndCloses(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)

	detail, err := f.approve(t, started.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.CurrentLevelOrder)
	assert.Equal(t, models.InstanceStatusInProgress, detail.Status)
	assert.Equal(t, 2, detail.Version)

	detail, err = f.approve(t, started.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.CurrentLevelOrder)
	assert.Equal(t, models.InstanceStatusInProgress, detail.Status)
	assert.Nil(t, detail.ClosedAt)

	detail, err = f.approve(t, started.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, detail.Status)
	require.NotNil(t, detail.ClosedAt)
	assert.Equal(t, 2, detail.CurrentLevelOrder)
	require.Len(t, detail.History, 3)
	assert.Equal(t, "alice", detail.History[0].ApproverUserID)
	assert.Equal(t, "carol", detail.History[2].ApproverUserID)
	require.NotNil(t, detail.History[0].Comment)
	assert.Equal(t, "ok", *detail.History[0].Comment)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, started.ID, f.queue.jobs[0].ID)
	assert.Equal(t, 3, f.metrics.decisions["APPROVE:admitted"])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkflowServiceRejectClosesImmediately(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	detail, err := f.service.Reject(context.Background(), started.ID, "alice", dto.RejectRequest{Comment: "missing annex"})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRejected, detail.Status)
	assert.Equal(t, 1, detail.CurrentLevelOrder)
	require.NotNil(t, detail.ClosedAt)
	require.Len(t, f.records.records, 1)
	assert.False(t, f.records.records[0].Approved)
	assert.Empty(t, f.queue.jobs)

	err = f.denied(t, started.ID, "alice", DecisionApprove)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	err = f.denied(t, started.ID, "bob", DecisionReject)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Len(t, f.records.records, 1)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkflowServiceRejectOverridesPartialQuorum(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)
	_, err = f.approve(t, started.ID, "alice")
	require.NoError(t, err)
	_, err = f.approve(t, started.ID, "bob")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	detail, err := f.service.Reject(context.Background(), started.ID, "carol", dto.RejectRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRejected, detail.Status)
	assert.Equal(t, 2, detail.CurrentLevelOrder)
}

func TestWorkflowServiceApproveOutOfScopeDenied(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)

	err = f.denied(t, started.ID, "dave", DecisionApprove)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidationFailed.Code, appErr.Code)
	assert.Contains(t, appErr.Message, ValidatorApproverScope)
	assert.Empty(t, f.records.records)

	current, err := f.instances.GetByID(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.CurrentLevelOrder)
	assert.Equal(t, 1, current.Version)
	assert.Equal(t, 1, f.metrics.denials[ValidatorApproverScope])
	assert.Equal(t, 1, f.metrics.decisions["APPROVE:denied"])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkflowServiceRepeatDecisionConflicts(t *testing.T) {
	tmpl := twoLevelTemplate()
	tmpl.Levels[1].RequiredApprovals = 2
	tmpl.Levels[1].UserIDs = pq.StringArray{"alice", "bob"}
	f := newWorkflowFixture(t, tmpl)
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)

	_, err = f.approve(t, started.ID, "alice")
	require.NoError(t, err)

	err = f.denied(t, started.ID, "alice", DecisionApprove)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	err = f.denied(t, started.ID, "alice", DecisionReject)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, f.records.records, 1)
}

func TestWorkflowServiceStaleVersionConflicts(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)
	f.instances.updateErr = sql.ErrNoRows

	err = f.denied(t, started.ID, "alice", DecisionApprove)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, f.metrics.decisions["APPROVE:conflict"])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWorkflowServiceUniqueViolationConflicts(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)
	f.records.createErr = &pq.Error{Code: "23505"}

	err = f.denied(t, started.ID, "alice", DecisionApprove)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	current, err := f.instances.GetByID(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.CurrentLevelOrder)
}

func TestWorkflowServiceMissingInstance(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())

	err := f.denied(t, "missing", "alice", DecisionApprove)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.service.GetInstance(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceUnresolvableLevelIsInvalidState(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	require.NoError(t, f.instances.Create(context.Background(), &models.WorkflowInstance{
		ID: "inst-x", TemplateID: "tmpl-1", DocumentID: "doc-1", CurrentLevelOrder: 9,
		Status: models.InstanceStatusInProgress, Version: 1,
	}))

	err := f.denied(t, "inst-x", "alice", DecisionApprove)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServicePendingApprovals(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)
	other, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)

	items, err := f.service.ListPendingApprovalsForUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = f.approve(t, started.ID, "alice")
	require.NoError(t, err)

	items, err = f.service.ListPendingApprovalsForUser(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, started.ID, items[0].InstanceID)
	assert.Equal(t, 2, items[0].CurrentLevelOrder)
	assert.Equal(t, "Contract sign-off", items[0].TemplateName)

	_, err = f.approve(t, started.ID, "bob")
	require.NoError(t, err)

	items, err = f.service.ListPendingApprovalsForUser(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.service.ListPendingApprovalsForUser(context.Background(), "carol")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].ApprovalCount)

	f.templates.calls = 0
	items, err = f.service.ListPendingApprovalsForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, other.ID, items[0].InstanceID)
	assert.Equal(t, 1, f.templates.calls)
}

func TestWorkflowServicePendingApprovalsSurviveClosedRows(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started := make(map[string]bool)
	for i := 0; i < 3; i++ {
		instance, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
		require.NoError(t, err)
		started[instance.ID] = true
	}

	// Each page's first instance is rejected elsewhere before the next page is read.
	f.instances.afterList = func(page []models.WorkflowInstance) {
		if len(page) == 0 {
			return
		}
		f.instances.mu.Lock()
		defer f.instances.mu.Unlock()
		f.instances.items[page[0].ID].Status = models.InstanceStatusRejected
	}

	items, err := f.service.ListPendingApprovalsForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.True(t, started[item.InstanceID])
	}
}

func TestWorkflowServiceListApprovers(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)
	_, err = f.approve(t, started.ID, "alice")
	require.NoError(t, err)

	resp, err := f.service.ListApprovers(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.LevelOrder)
	assert.Equal(t, []string{"bob", "carol"}, resp.Approvers)

	_, err = f.approve(t, started.ID, "bob")
	require.NoError(t, err)

	resp, err = f.service.ListApprovers(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.LevelOrder)
	assert.Equal(t, []string{"carol"}, resp.Approvers)
}

func TestWorkflowServiceGetInstanceHistory(t *testing.T) {
	f := newWorkflowFixture(t, twoLevelTemplate())
	started, err := f.service.Start(context.Background(), "tmpl-1", "doc-1", "requester")
	require.NoError(t, err)
	_, err = f.approve(t, started.ID, "alice")
	require.NoError(t, err)

	detail, err := f.service.GetInstance(context.Background(), started.ID)
	require.NoError(t, err)
	require.Len(t, detail.History, 1)
	assert.True(t, detail.History[0].Approved)
	assert.Equal(t, 1, detail.History[0].LevelOrder)
}
