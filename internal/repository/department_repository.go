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

// DepartmentRepository manages persistence for departments.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs a DepartmentRepository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// Create inserts a new department.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if dept.CreatedAt.IsZero() {
		dept.CreatedAt = now
	}
	dept.UpdatedAt = now

	const query = `INSERT INTO departments (id, company_id, name, description, head_id, is_active, created_at, updated_at)
        VALUES (:id, :company_id, :name, :description, :head_id, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// FindByID returns a department scoped to its company.
func (r *DepartmentRepository) FindByID(ctx context.Context, companyID, id string) (*models.Department, error) {
	const query = `SELECT id, company_id, name, description, head_id, is_active, created_at, updated_at FROM departments WHERE id = $1 AND company_id = $2 LIMIT 1`
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, query, id, companyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department by id: %w", err)
	}
	return &dept, nil
}

// List returns all departments of a company ordered by name.
func (r *DepartmentRepository) List(ctx context.Context, companyID string) ([]models.Department, error) {
	const query = `SELECT id, company_id, name, description, head_id, is_active, created_at, updated_at FROM departments WHERE company_id = $1 ORDER BY name`
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query, companyID); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

// Update updates mutable fields of a department.
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	dept.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET name = :name, description = :description, head_id = :head_id, is_active = :is_active, updated_at = :updated_at WHERE id = :id AND company_id = :company_id`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

// Delete performs a soft delete by marking the department inactive.
func (r *DepartmentRepository) Delete(ctx context.Context, companyID, id string) error {
	const query = `UPDATE departments SET is_active = FALSE, updated_at = $3 WHERE id = $1 AND company_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, companyID, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return nil
}
