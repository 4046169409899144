package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/docflow-api/internal/models"
)

const recordColumns = `id, instance_id, level_order, approver_user_id, approved, comment, signature, signed_at`

// ApprovalRecordRepository appends and reads approval history. Rows are never updated.
type ApprovalRecordRepository struct {
	db *sqlx.DB
}

// NewApprovalRecordRepository constructs the repository.
func NewApprovalRecordRepository(db *sqlx.DB) *ApprovalRecordRepository {
	return &ApprovalRecordRepository{db: db}
}

func (r *ApprovalRecordRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create appends a record. A second approving record for the same
// (instance, level, approver) violates ux_approval_records_approver.
func (r *ApprovalRecordRepository) Create(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.SignedAt.IsZero() {
		record.SignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_records (` + recordColumns + `)
	VALUES (:id, :instance_id, :level_order, :approver_user_id, :approved, :comment, :signature, :signed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record); err != nil {
		return fmt.Errorf("create approval record: %w", err)
	}
	return nil
}

// ListByInstance returns the history of one instance in signing order.
func (r *ApprovalRecordRepository) ListByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID string) ([]models.ApprovalRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM approval_records WHERE instance_id = $1 ORDER BY signed_at, id`
	var records []models.ApprovalRecord
	if err := sqlx.SelectContext(ctx, r.exec(exec), &records, query, instanceID); err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}

// ListByInstances returns histories for many instances grouped by instance id.
func (r *ApprovalRecordRepository) ListByInstances(ctx context.Context, instanceIDs []string) (map[string][]models.ApprovalRecord, error) {
	grouped := make(map[string][]models.ApprovalRecord, len(instanceIDs))
	if len(instanceIDs) == 0 {
		return grouped, nil
	}
	const query = `SELECT ` + recordColumns + ` FROM approval_records WHERE instance_id = ANY($1) ORDER BY instance_id, signed_at, id`
	var records []models.ApprovalRecord
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(instanceIDs)); err != nil {
		return nil, fmt.Errorf("list approval records by instances: %w", err)
	}
	for _, record := range records {
		grouped[record.InstanceID] = append(grouped[record.InstanceID], record)
	}
	return grouped, nil
}
