package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docflow-api/internal/models"
)

const instanceColumns = `id, template_id, document_id, current_level_order, status, requested_by, requested_at, closed_at, version`

// InstanceRepository persists workflow instances.
type InstanceRepository struct {
	db *sqlx.DB
}

// NewInstanceRepository constructs the repository.
func NewInstanceRepository(db *sqlx.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create inserts a new in-progress instance.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	if instance.Status == "" {
		instance.Status = models.InstanceStatusInProgress
	}
	if instance.RequestedAt.IsZero() {
		instance.RequestedAt = time.Now().UTC()
	}
	if instance.Version == 0 {
		instance.Version = 1
	}
	const query = `INSERT INTO workflow_instances (` + instanceColumns + `)
	VALUES (:id, :template_id, :document_id, :current_level_order, :status, :requested_by, :requested_at, :closed_at, :version)`
	if _, err := r.db.NamedExecContext(ctx, query, instance); err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	return nil
}

// GetByID fetches an instance without locking.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`
	var instance models.WorkflowInstance
	if err := r.db.GetContext(ctx, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// LockByID fetches an instance holding a row lock until the surrounding transaction ends.
func (r *InstanceRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.WorkflowInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1 FOR UPDATE`
	var instance models.WorkflowInstance
	if err := tx.GetContext(ctx, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// UpdateInstanceStateParams carries the post-decision state of an instance.
type UpdateInstanceStateParams struct {
	ID                string
	ExpectedVersion   int
	CurrentLevelOrder int
	Status            models.InstanceStatus
	ClosedAt          *time.Time
}

// UpdateState writes the new state if the stored version still matches, returning sql.ErrNoRows otherwise.
func (r *InstanceRepository) UpdateState(ctx context.Context, tx *sqlx.Tx, params UpdateInstanceStateParams) error {
	const query = `UPDATE workflow_instances
	SET current_level_order = :current_level_order, status = :status, closed_at = :closed_at, version = version + 1
	WHERE id = :id AND version = :expected_version AND status = :in_progress`
	result, err := sqlx.NamedExecContext(ctx, tx, query, map[string]interface{}{
		"id":                  params.ID,
		"expected_version":    params.ExpectedVersion,
		"current_level_order": params.CurrentLevelOrder,
		"status":              params.Status,
		"closed_at":           params.ClosedAt,
		"in_progress":         models.InstanceStatusInProgress,
	})
	if err != nil {
		return fmt.Errorf("update workflow instance state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check workflow instance update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InstanceCursor marks the last row of a ListByStatus page.
type InstanceCursor struct {
	RequestedAt time.Time
	ID          string
}

// ListByStatus pages through instances with the given status in request order.
// Pages are keyed on (requested_at, id) so rows leaving the status between calls do not shift later pages.
func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus, after *InstanceCursor, limit int) ([]models.WorkflowInstance, error) {
	if limit <= 0 {
		limit = 500
	}
	args := []interface{}{status}
	where := "status = $1"
	if after != nil {
		where += " AND (requested_at, id) > ($2, $3)"
		args = append(args, after.RequestedAt, after.ID)
	}
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances WHERE %s ORDER BY requested_at, id LIMIT %d`, instanceColumns, where, limit)
	var instances []models.WorkflowInstance
	if err := r.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, fmt.Errorf("list workflow instances: %w", err)
	}
	return instances, nil
}
