package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docflow-api/internal/models"
)

var instanceRowColumns = []string{"id", "template_id", "document_id", "current_level_order", "status", "requested_by", "requested_at", "closed_at", "version"}

func TestInstanceRepositoryCreateDefaults(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_instances")).WillReturnResult(sqlmock.NewResult(1, 1))

	instance := &models.WorkflowInstance{TemplateID: "tmpl-1", DocumentID: "doc-1", CurrentLevelOrder: 1, RequestedBy: "u1"}
	require.NoError(t, repo.Create(context.Background(), instance))
	assert.NotEmpty(t, instance.ID)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, 1, instance.Version)
	assert.False(t, instance.RequestedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceRepositoryLockByIDUsesRowLock(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM workflow_instances WHERE id = \$1 FOR UPDATE`).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(instanceRowColumns).
			AddRow("inst-1", "tmpl-1", "doc-1", 1, "IN_PROGRESS", "u1", time.Now(), nil, 3))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	instance, err := repo.LockByID(context.Background(), tx, "inst-1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 3, instance.Version)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceRepositoryUpdateStateVersionGuard(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceRepository(db)
	closedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE workflow_instances\s+SET .*version = version \+ 1\s+WHERE id = \S+ AND version = \S+ AND status = `).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_instances")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	params := UpdateInstanceStateParams{
		ID:                "inst-1",
		ExpectedVersion:   1,
		CurrentLevelOrder: 1,
		Status:            models.InstanceStatusApproved,
		ClosedAt:          &closedAt,
	}
	require.NoError(t, repo.UpdateState(context.Background(), tx, params))
	require.ErrorIs(t, repo.UpdateState(context.Background(), tx, params), sql.ErrNoRows)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceRepositoryListByStatus(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceRepository(db)
	requestedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 ORDER BY requested_at, id LIMIT 2")).
		WithArgs("IN_PROGRESS").
		WillReturnRows(sqlmock.NewRows(instanceRowColumns).
			AddRow("inst-1", "tmpl-1", "doc-1", 1, "IN_PROGRESS", "u1", requestedAt, nil, 1))

	instances, err := repo.ListByStatus(context.Background(), models.InstanceStatusInProgress, nil, 2)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND (requested_at, id) > ($2, $3) ORDER BY requested_at, id LIMIT 2")).
		WithArgs("IN_PROGRESS", requestedAt, "inst-1").
		WillReturnRows(sqlmock.NewRows(instanceRowColumns).
			AddRow("inst-5", "tmpl-1", "doc-1", 2, "IN_PROGRESS", "u1", requestedAt, nil, 2))

	instances, err = repo.ListByStatus(context.Background(), models.InstanceStatusInProgress,
		&InstanceCursor{RequestedAt: requestedAt, ID: "inst-1"}, 2)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "inst-5", instances[0].ID)
	assert.Equal(t, 2, instances[0].CurrentLevelOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}
