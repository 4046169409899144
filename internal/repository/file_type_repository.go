package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/docflow-api/internal/models"
)

// FileTypeRepository persists the file type catalog.
type FileTypeRepository struct {
	db *sqlx.DB
}

// NewFileTypeRepository constructs the repository.
func NewFileTypeRepository(db *sqlx.DB) *FileTypeRepository {
	return &FileTypeRepository{db: db}
}

// Create inserts a catalog entry.
func (r *FileTypeRepository) Create(ctx context.Context, fileType *models.FileType) error {
	if fileType.ID == "" {
		fileType.ID = uuid.NewString()
	}
	if fileType.CreatedAt.IsZero() {
		fileType.CreatedAt = time.Now().UTC()
	}
	if fileType.Extensions == nil {
		fileType.Extensions = pq.StringArray{}
	}
	const query = `INSERT INTO file_types (id, name, mime, extensions, created_at) VALUES (:id, :name, :mime, :extensions, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, fileType); err != nil {
		return fmt.Errorf("create file type: %w", err)
	}
	return nil
}

// GetByID fetches a catalog entry.
func (r *FileTypeRepository) GetByID(ctx context.Context, id string) (*models.FileType, error) {
	const query = `SELECT id, name, mime, extensions, created_at FROM file_types WHERE id = $1`
	var fileType models.FileType
	if err := r.db.GetContext(ctx, &fileType, query, id); err != nil {
		return nil, err
	}
	return &fileType, nil
}

// List returns the catalog in creation order, which is also the lookup precedence.
func (r *FileTypeRepository) List(ctx context.Context) ([]models.FileType, error) {
	const query = `SELECT id, name, mime, extensions, created_at FROM file_types ORDER BY created_at, id`
	var fileTypes []models.FileType
	if err := r.db.SelectContext(ctx, &fileTypes, query); err != nil {
		return nil, fmt.Errorf("list file types: %w", err)
	}
	return fileTypes, nil
}

// Delete removes a catalog entry and its grants.
func (r *FileTypeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM file_types WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete file type: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check file type delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
