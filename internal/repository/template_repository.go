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

const templateColumns = `id, name, description, created_by, is_active, created_at, updated_at`

const levelColumns = `id, template_id, level_order, approver_type, department_id, user_ids, approver_expression, required_approvals, allowed_file_types`

// TemplateRepository persists workflow templates and their levels.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts the template row followed by every level.
func (r *TemplateRepository) Create(ctx context.Context, exec sqlx.ExtContext, tmpl *models.WorkflowTemplate) error {
	if tmpl == nil {
		return fmt.Errorf("template payload is nil")
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	target := r.exec(exec)
	const templateQuery = `INSERT INTO workflow_templates (` + templateColumns + `)
	VALUES (:id, :name, :description, :created_by, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, templateQuery, tmpl); err != nil {
		return fmt.Errorf("create workflow template: %w", err)
	}

	const levelQuery = `INSERT INTO workflow_levels (` + levelColumns + `)
	VALUES (:id, :template_id, :level_order, :approver_type, :department_id, :user_ids, :approver_expression, :required_approvals, :allowed_file_types)`
	for i := range tmpl.Levels {
		level := &tmpl.Levels[i]
		if level.ID == "" {
			level.ID = uuid.NewString()
		}
		level.TemplateID = tmpl.ID
		if level.UserIDs == nil {
			level.UserIDs = pq.StringArray{}
		}
		if level.AllowedFileTypes == nil {
			level.AllowedFileTypes = pq.StringArray{}
		}
		if _, err := sqlx.NamedExecContext(ctx, target, levelQuery, level); err != nil {
			return fmt.Errorf("create workflow level %d: %w", level.Order, err)
		}
	}
	return nil
}

// GetByID loads a template with its levels sorted by order.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	const query = `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`
	var tmpl models.WorkflowTemplate
	if err := r.db.GetContext(ctx, &tmpl, query, id); err != nil {
		return nil, err
	}
	levels, err := r.listLevels(ctx, []string{tmpl.ID})
	if err != nil {
		return nil, err
	}
	tmpl.Levels = levels[tmpl.ID]
	return &tmpl, nil
}

// ListActive returns all active templates with levels, newest first.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]models.WorkflowTemplate, error) {
	const query = `SELECT ` + templateColumns + ` FROM workflow_templates WHERE is_active = TRUE ORDER BY created_at DESC`
	var templates []models.WorkflowTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list workflow templates: %w", err)
	}
	if len(templates) == 0 {
		return templates, nil
	}
	ids := make([]string, len(templates))
	for i, tmpl := range templates {
		ids[i] = tmpl.ID
	}
	levels, err := r.listLevels(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range templates {
		templates[i].Levels = levels[templates[i].ID]
	}
	return templates, nil
}

// ExistsByName reports whether a template with the exact name exists.
func (r *TemplateRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM workflow_templates WHERE name = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, name); err != nil {
		return false, fmt.Errorf("check workflow template name: %w", err)
	}
	return exists, nil
}

// Deactivate clears the active flag. Levels are never modified.
func (r *TemplateRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE workflow_templates SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate workflow template: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check template deactivate rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *TemplateRepository) listLevels(ctx context.Context, templateIDs []string) (map[string][]models.WorkflowLevel, error) {
	const query = `SELECT ` + levelColumns + ` FROM workflow_levels WHERE template_id = ANY($1) ORDER BY template_id, level_order`
	var levels []models.WorkflowLevel
	if err := r.db.SelectContext(ctx, &levels, query, pq.Array(templateIDs)); err != nil {
		return nil, fmt.Errorf("list workflow levels: %w", err)
	}
	grouped := make(map[string][]models.WorkflowLevel, len(templateIDs))
	for _, level := range levels {
		grouped[level.TemplateID] = append(grouped[level.TemplateID], level)
	}
	return grouped, nil
}
