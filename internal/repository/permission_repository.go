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

// PermissionRepository persists user file type grants.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs the repository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Grant inserts a grant, returning false when it already existed.
func (r *PermissionRepository) Grant(ctx context.Context, perm *models.FileTypePermission) (bool, error) {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	if perm.GrantedAt.IsZero() {
		perm.GrantedAt = time.Now().UTC()
	}
	const query = `INSERT INTO file_type_permissions (id, user_id, file_type_id, granted_by, granted_at)
	VALUES (:id, :user_id, :file_type_id, :granted_by, :granted_at)
	ON CONFLICT (user_id, file_type_id) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, perm)
	if err != nil {
		return false, fmt.Errorf("grant file type permission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check grant rows: %w", err)
	}
	return rows > 0, nil
}

// Revoke deletes a grant, returning sql.ErrNoRows when none existed.
func (r *PermissionRepository) Revoke(ctx context.Context, userID, fileTypeID string) error {
	const query = `DELETE FROM file_type_permissions WHERE user_id = $1 AND file_type_id = $2`
	result, err := r.db.ExecContext(ctx, query, userID, fileTypeID)
	if err != nil {
		return fmt.Errorf("revoke file type permission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check revoke rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Exists reports whether the user holds a grant for the file type.
func (r *PermissionRepository) Exists(ctx context.Context, userID, fileTypeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM file_type_permissions WHERE user_id = $1 AND file_type_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, fileTypeID); err != nil {
		return false, fmt.Errorf("check file type permission: %w", err)
	}
	return exists, nil
}

// ListByUser returns a user's grants with their catalog names.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string) ([]models.UserFileTypePermission, error) {
	const query = `SELECT p.id, p.user_id, p.file_type_id, p.granted_by, p.granted_at,
       f.name AS file_type_name, f.mime AS file_type_mime
	FROM file_type_permissions p
	JOIN file_types f ON f.id = p.file_type_id
	WHERE p.user_id = $1
	ORDER BY p.granted_at`
	var perms []models.UserFileTypePermission
	if err := r.db.SelectContext(ctx, &perms, query, userID); err != nil {
		return nil, fmt.Errorf("list user file type permissions: %w", err)
	}
	return perms, nil
}
