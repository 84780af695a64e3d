package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/expenseflow/expenseflow-api/internal/models"
	"github.com/expenseflow/expenseflow-api/internal/workflow"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

// WorkflowStore backs the workflow engine with Postgres. Transact takes a
// row lock on the expense before running fn, so concurrent decisions on the
// same expense serialize and each one re-reads committed state.
type WorkflowStore struct {
	db *sqlx.DB
}

// NewWorkflowStore constructs a WorkflowStore.
func NewWorkflowStore(db *sqlx.DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

var _ workflow.TxStore = (*WorkflowStore)(nil)

// Transact opens a transaction, locks the expense row and runs fn against a
// transaction-scoped store. fn's writes commit together or not at all.
func (s *WorkflowStore) Transact(ctx context.Context, expenseID string, fn func(workflow.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM expenses WHERE id = $1 FOR UPDATE`, expenseID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	}

	if err := fn(&txWorkflowStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	}
	return nil
}

func (s *WorkflowStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	return workflowGetExpense(ctx, s.db, expenseID)
}

func (s *WorkflowStore) GetSteps(ctx context.Context, expenseID string) ([]models.ApprovalStep, error) {
	return workflowGetSteps(ctx, s.db, expenseID)
}

func (s *WorkflowStore) SaveStep(ctx context.Context, step *models.ApprovalStep) error {
	return workflowSaveStep(ctx, s.db, step)
}

func (s *WorkflowStore) SaveExpense(ctx context.Context, expense *models.Expense) error {
	return workflowSaveExpense(ctx, s.db, expense)
}

func (s *WorkflowStore) ActiveRules(ctx context.Context, companyID string) ([]models.ApprovalRule, error) {
	return workflowActiveRules(ctx, s.db, companyID)
}

// txWorkflowStore is the transaction-scoped view handed to Transact's fn.
type txWorkflowStore struct {
	tx *sqlx.Tx
}

func (s *txWorkflowStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	return workflowGetExpense(ctx, s.tx, expenseID)
}

func (s *txWorkflowStore) GetSteps(ctx context.Context, expenseID string) ([]models.ApprovalStep, error) {
	return workflowGetSteps(ctx, s.tx, expenseID)
}

func (s *txWorkflowStore) SaveStep(ctx context.Context, step *models.ApprovalStep) error {
	return workflowSaveStep(ctx, s.tx, step)
}

func (s *txWorkflowStore) SaveExpense(ctx context.Context, expense *models.Expense) error {
	return workflowSaveExpense(ctx, s.tx, expense)
}

func (s *txWorkflowStore) ActiveRules(ctx context.Context, companyID string) ([]models.ApprovalRule, error) {
	return workflowActiveRules(ctx, s.tx, companyID)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func workflowGetExpense(ctx context.Context, q queryer, expenseID string) (*models.Expense, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE id = $1 LIMIT 1`, expenseColumns)
	var expense models.Expense
	if err := q.GetContext(ctx, &expense, query, expenseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "get expense failed")
	}
	return &expense, nil
}

func workflowGetSteps(ctx context.Context, q queryer, expenseID string) ([]models.ApprovalStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_steps WHERE expense_id = $1 ORDER BY step_order`, stepColumns)
	var steps []models.ApprovalStep
	if err := q.SelectContext(ctx, &steps, query, expenseID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "get approval steps failed")
	}
	return steps, nil
}

func workflowSaveStep(ctx context.Context, q queryer, step *models.ApprovalStep) error {
	const query = `UPDATE approval_steps SET status = :status, comment = :comment, decided_at = :decided_at, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, q, query, step); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "save approval step failed")
	}
	return nil
}

func workflowSaveExpense(ctx context.Context, q queryer, expense *models.Expense) error {
	const query = `UPDATE expenses SET status = :status, current_approver_step = :current_approver_step, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, q, query, expense); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "save expense failed")
	}
	return nil
}

func workflowActiveRules(ctx context.Context, q queryer, companyID string) ([]models.ApprovalRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_rules WHERE company_id = $1 AND is_active = TRUE ORDER BY created_at, id`, ruleColumns)
	var rules []models.ApprovalRule
	if err := q.SelectContext(ctx, &rules, query, companyID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "get active rules failed")
	}
	return rules, nil
}
