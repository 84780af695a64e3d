package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/expenseflow/expenseflow-api/internal/models"
)

// ProjectRepository manages persistence for projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs a ProjectRepository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	const query = `INSERT INTO projects (id, company_id, name, description, budget, is_active, created_at, updated_at)
        VALUES (:id, :company_id, :name, :description, :budget, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// FindByID returns a project scoped to its company.
func (r *ProjectRepository) FindByID(ctx context.Context, companyID, id string) (*models.Project, error) {
	const query = `SELECT id, company_id, name, description, budget, is_active, created_at, updated_at FROM projects WHERE id = $1 AND company_id = $2 LIMIT 1`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id, companyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project by id: %w", err)
	}
	return &project, nil
}

// List returns all projects of a company ordered by name.
func (r *ProjectRepository) List(ctx context.Context, companyID string) ([]models.Project, error) {
	const query = `SELECT id, company_id, name, description, budget, is_active, created_at, updated_at FROM projects WHERE company_id = $1 ORDER BY name`
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, companyID); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// Spend returns the approved spend booked against a project.
func (r *ProjectRepository) Spend(ctx context.Context, companyID, projectID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(amount_in_company_currency), 0) FROM expenses WHERE company_id = $1 AND project_id = $2 AND status = 'approved'`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, companyID, projectID); err != nil {
		return 0, fmt.Errorf("project spend: %w", err)
	}
	return total, nil
}

// Update updates mutable fields of a project.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projects SET name = :name, description = :description, budget = :budget, is_active = :is_active, updated_at = :updated_at WHERE id = :id AND company_id = :company_id`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// Delete performs a soft delete by marking the project inactive.
func (r *ProjectRepository) Delete(ctx context.Context, companyID, id string) error {
	const query = `UPDATE projects SET is_active = FALSE, updated_at = $3 WHERE id = $1 AND company_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, companyID, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}
