package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/expenseflow/expenseflow-api/internal/models"
)

const stepColumns = `id, company_id, expense_id, approver_id, step_order, status, comment, decided_at, created_at, updated_at`

// ApprovalStepRepository manages persistence for approval chain steps.
type ApprovalStepRepository struct {
	db *sqlx.DB
}

// NewApprovalStepRepository constructs an ApprovalStepRepository.
func NewApprovalStepRepository(db *sqlx.DB) *ApprovalStepRepository {
	return &ApprovalStepRepository{db: db}
}

// CreateBatch inserts a freshly built approval chain in one transaction.
func (r *ApprovalStepRepository) CreateBatch(ctx context.Context, steps []models.ApprovalStep) error {
	if len(steps) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create steps: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	const query = `INSERT INTO approval_steps (id, company_id, expense_id, approver_id, step_order, status, comment, decided_at, created_at, updated_at)
        VALUES (:id, :company_id, :expense_id, :approver_id, :step_order, :status, :comment, :decided_at, :created_at, :updated_at)`
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = uuid.NewString()
		}
		steps[i].CreatedAt = now
		steps[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, steps[i]); err != nil {
			return fmt.Errorf("create approval step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create steps: %w", err)
	}
	return nil
}

// ListByExpense returns the full chain for one expense ordered by step_order.
func (r *ApprovalStepRepository) ListByExpense(ctx context.Context, expenseID string) ([]models.ApprovalStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_steps WHERE expense_id = $1 ORDER BY step_order`, stepColumns)
	var steps []models.ApprovalStep
	if err := r.db.SelectContext(ctx, &steps, query, expenseID); err != nil {
		return nil, fmt.Errorf("list approval steps: %w", err)
	}
	return steps, nil
}

// ListDetailByExpense returns the chain joined with approver names.
func (r *ApprovalStepRepository) ListDetailByExpense(ctx context.Context, expenseID string) ([]models.ApprovalStepDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS approver_name FROM approval_steps st JOIN users u ON u.id = st.approver_id WHERE st.expense_id = $1 ORDER BY st.step_order`, prefixColumns("st", stepColumns))
	var steps []models.ApprovalStepDetail
	if err := r.db.SelectContext(ctx, &steps, query, expenseID); err != nil {
		return nil, fmt.Errorf("list approval step details: %w", err)
	}
	return steps, nil
}

// PendingForApprover returns expenses with a pending step held by the given
// approver, newest submissions first. Only pending expenses are actionable.
func (r *ApprovalStepRepository) PendingForApprover(ctx context.Context, companyID, approverID string, page, pageSize int) ([]models.ExpenseDetail, int, error) {
	base := `FROM approval_steps st
        JOIN expenses ex ON ex.id = st.expense_id
        JOIN users u ON u.id = ex.employee_id
        WHERE st.company_id = $1 AND st.approver_id = $2 AND st.status = $3 AND ex.status = $4`
	args := []interface{}{companyID, approverID, models.StepStatusPending, models.ExpenseStatusPending}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s, u.full_name AS employee_name %s ORDER BY ex.created_at DESC LIMIT %d OFFSET %d`, prefixColumns("ex", expenseColumns), base, pageSize, offset)

	var expenses []models.ExpenseDetail
	if err := r.db.SelectContext(ctx, &expenses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pending approvals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count pending approvals: %w", err)
	}

	return expenses, total, nil
}

// CountPendingForApprover returns how many expenses await the approver.
func (r *ApprovalStepRepository) CountPendingForApprover(ctx context.Context, companyID, approverID string) (int, error) {
	const query = `SELECT COUNT(*) FROM approval_steps st JOIN expenses ex ON ex.id = st.expense_id
        WHERE st.company_id = $1 AND st.approver_id = $2 AND st.status = $3 AND ex.status = $4`
	var total int
	if err := r.db.GetContext(ctx, &total, query, companyID, approverID, models.StepStatusPending, models.ExpenseStatusPending); err != nil {
		return 0, fmt.Errorf("count pending approvals: %w", err)
	}
	return total, nil
}

// Update persists a settled step.
func (r *ApprovalStepRepository) Update(ctx context.Context, step *models.ApprovalStep) error {
	step.UpdatedAt = time.Now().UTC()
	const query = `UPDATE approval_steps SET status = :status, comment = :comment, decided_at = :decided_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, step); err != nil {
		return fmt.Errorf("update approval step: %w", err)
	}
	return nil
}
