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

const budgetColumns = `id, company_id, name, amount, spent, category, department, period, start_date, end_date, is_active, created_at, updated_at`

// BudgetRepository manages persistence for spending budgets.
type BudgetRepository struct {
	db *sqlx.DB
}

// NewBudgetRepository constructs a BudgetRepository.
func NewBudgetRepository(db *sqlx.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Create inserts a new budget.
func (r *BudgetRepository) Create(ctx context.Context, budget *models.Budget) error {
	if budget.ID == "" {
		budget.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	budget.UpdatedAt = now

	const query = `INSERT INTO budgets (id, company_id, name, amount, spent, category, department, period, start_date, end_date, is_active, created_at, updated_at)
        VALUES (:id, :company_id, :name, :amount, :spent, :category, :department, :period, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, budget); err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

// FindByID returns a budget scoped to its company.
func (r *BudgetRepository) FindByID(ctx context.Context, companyID, id string) (*models.Budget, error) {
	query := fmt.Sprintf(`SELECT %s FROM budgets WHERE id = $1 AND company_id = $2 LIMIT 1`, budgetColumns)
	var budget models.Budget
	if err := r.db.GetContext(ctx, &budget, query, id, companyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find budget by id: %w", err)
	}
	return &budget, nil
}

// List returns all budgets of a company, newest first.
func (r *BudgetRepository) List(ctx context.Context, companyID string) ([]models.Budget, error) {
	query := fmt.Sprintf(`SELECT %s FROM budgets WHERE company_id = $1 ORDER BY created_at DESC`, budgetColumns)
	var budgets []models.Budget
	if err := r.db.SelectContext(ctx, &budgets, query, companyID); err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

// ListActive returns budgets whose window contains the given date.
func (r *BudgetRepository) ListActive(ctx context.Context, companyID string, at time.Time) ([]models.Budget, error) {
	query := fmt.Sprintf(`SELECT %s FROM budgets WHERE company_id = $1 AND is_active = TRUE AND start_date <= $2 AND end_date >= $2 ORDER BY created_at`, budgetColumns)
	var budgets []models.Budget
	if err := r.db.SelectContext(ctx, &budgets, query, companyID, at); err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}
	return budgets, nil
}

// Update updates mutable fields of a budget.
func (r *BudgetRepository) Update(ctx context.Context, budget *models.Budget) error {
	budget.UpdatedAt = time.Now().UTC()
	const query = `UPDATE budgets SET name = :name, amount = :amount, category = :category, department = :department, period = :period, start_date = :start_date, end_date = :end_date, is_active = :is_active, updated_at = :updated_at WHERE id = :id AND company_id = :company_id`
	if _, err := r.db.NamedExecContext(ctx, query, budget); err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	return nil
}

// AddSpent atomically accrues approved spend and returns the new totals.
func (r *BudgetRepository) AddSpent(ctx context.Context, id string, amount float64) (*models.Budget, error) {
	query := fmt.Sprintf(`UPDATE budgets SET spent = spent + $2, updated_at = $3 WHERE id = $1 RETURNING %s`, budgetColumns)
	var budget models.Budget
	if err := r.db.GetContext(ctx, &budget, query, id, amount, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("add budget spend: %w", err)
	}
	return &budget, nil
}

// Delete removes a budget.
func (r *BudgetRepository) Delete(ctx context.Context, companyID, id string) error {
	const query = `DELETE FROM budgets WHERE id = $1 AND company_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, companyID); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return nil
}
