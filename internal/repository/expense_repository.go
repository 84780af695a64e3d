package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/expenseflow/expenseflow-api/internal/models"
)

const expenseColumns = `id, company_id, employee_id, amount, currency, amount_in_company_currency, category, description, expense_date, receipt_url, project_id, department, status, current_approver_step, created_at, updated_at`

// ExpenseRepository manages persistence for expense claims.
type ExpenseRepository struct {
	db *sqlx.DB
}

// NewExpenseRepository constructs an ExpenseRepository.
func NewExpenseRepository(db *sqlx.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// Create inserts a new expense.
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now

	const query = `INSERT INTO expenses (id, company_id, employee_id, amount, currency, amount_in_company_currency, category, description, expense_date, receipt_url, project_id, department, status, current_approver_step, created_at, updated_at)
        VALUES (:id, :company_id, :employee_id, :amount, :currency, :amount_in_company_currency, :category, :description, :expense_date, :receipt_url, :project_id, :department, :status, :current_approver_step, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// FindByID returns an expense scoped to its company.
func (r *ExpenseRepository) FindByID(ctx context.Context, companyID, id string) (*models.Expense, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE id = $1 AND company_id = $2 LIMIT 1`, expenseColumns)
	var expense models.Expense
	if err := r.db.GetContext(ctx, &expense, query, id, companyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find expense by id: %w", err)
	}
	return &expense, nil
}

// List returns expenses matching the filter together with the total count.
func (r *ExpenseRepository) List(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseDetail, int, error) {
	base := `FROM expenses ex JOIN users u ON u.id = ex.employee_id WHERE ex.company_id = $1`
	args := []interface{}{filter.CompanyID}
	var conditions []string

	if filter.EmployeeID != "" {
		conditions = append(conditions, fmt.Sprintf("ex.employee_id = $%d", len(args)+1))
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("ex.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("ex.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("ex.expense_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("ex.expense_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"expense_date": "ex.expense_date",
		"amount":       "ex.amount_in_company_currency",
		"category":     "ex.category",
		"status":       "ex.status",
		"created_at":   "ex.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "ex.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	cols := prefixColumns("ex", expenseColumns)
	query := fmt.Sprintf(`SELECT %s, u.full_name AS employee_name %s ORDER BY %s %s LIMIT %d OFFSET %d`, cols, base, column, order, size, offset)

	var expenses []models.ExpenseDetail
	if err := r.db.SelectContext(ctx, &expenses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	return expenses, total, nil
}

// ListForExport streams all expenses matching the filter without pagination,
// ordered by expense date. Used by the report worker.
func (r *ExpenseRepository) ListForExport(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseDetail, error) {
	base := `FROM expenses ex JOIN users u ON u.id = ex.employee_id WHERE ex.company_id = $1`
	args := []interface{}{filter.CompanyID}

	if filter.Status != "" {
		base += fmt.Sprintf(" AND ex.status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		base += fmt.Sprintf(" AND ex.category = $%d", len(args)+1)
		args = append(args, filter.Category)
	}
	if filter.DateFrom != nil {
		base += fmt.Sprintf(" AND ex.expense_date >= $%d", len(args)+1)
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		base += fmt.Sprintf(" AND ex.expense_date <= $%d", len(args)+1)
		args = append(args, *filter.DateTo)
	}

	query := fmt.Sprintf(`SELECT %s, u.full_name AS employee_name %s ORDER BY ex.expense_date, ex.created_at`, prefixColumns("ex", expenseColumns), base)

	var expenses []models.ExpenseDetail
	if err := r.db.SelectContext(ctx, &expenses, query, args...); err != nil {
		return nil, fmt.Errorf("list expenses for export: %w", err)
	}
	return expenses, nil
}

// Update persists status, pointer and amount changes of an expense.
func (r *ExpenseRepository) Update(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().UTC()
	const query = `UPDATE expenses SET amount = :amount, currency = :currency, amount_in_company_currency = :amount_in_company_currency, category = :category, description = :description, expense_date = :expense_date, receipt_url = :receipt_url, project_id = :project_id, department = :department, status = :status, current_approver_step = :current_approver_step, updated_at = :updated_at WHERE id = :id AND company_id = :company_id`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return nil
}

// Summary aggregates company expense counts and approved/pending totals in
// the company currency, plus an approved-spend breakdown by category.
func (r *ExpenseRepository) Summary(ctx context.Context, companyID string) (*models.ExpenseSummary, error) {
	const query = `SELECT
        COUNT(*) AS total_count,
        COUNT(*) FILTER (WHERE status = 'pending') AS pending_count,
        COUNT(*) FILTER (WHERE status = 'approved') AS approved_count,
        COUNT(*) FILTER (WHERE status = 'rejected') AS rejected_count,
        COALESCE(SUM(amount_in_company_currency) FILTER (WHERE status = 'approved'), 0) AS total_approved,
        COALESCE(SUM(amount_in_company_currency) FILTER (WHERE status = 'pending'), 0) AS total_pending
        FROM expenses WHERE company_id = $1`

	var row struct {
		TotalCount    int     `db:"total_count"`
		PendingCount  int     `db:"pending_count"`
		ApprovedCount int     `db:"approved_count"`
		RejectedCount int     `db:"rejected_count"`
		TotalApproved float64 `db:"total_approved"`
		TotalPending  float64 `db:"total_pending"`
	}
	if err := r.db.GetContext(ctx, &row, query, companyID); err != nil {
		return nil, fmt.Errorf("expense summary: %w", err)
	}

	const byCategoryQuery = `SELECT category, COALESCE(SUM(amount_in_company_currency), 0) AS total
        FROM expenses WHERE company_id = $1 AND status = 'approved' GROUP BY category`
	var categories []struct {
		Category string  `db:"category"`
		Total    float64 `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &categories, byCategoryQuery, companyID); err != nil {
		return nil, fmt.Errorf("expense summary by category: %w", err)
	}

	summary := &models.ExpenseSummary{
		TotalCount:    row.TotalCount,
		PendingCount:  row.PendingCount,
		ApprovedCount: row.ApprovedCount,
		RejectedCount: row.RejectedCount,
		TotalApproved: row.TotalApproved,
		TotalPending:  row.TotalPending,
		ByCategory:    make(map[string]float64, len(categories)),
	}
	for _, c := range categories {
		summary.ByCategory[c.Category] = c.Total
	}
	return summary, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
