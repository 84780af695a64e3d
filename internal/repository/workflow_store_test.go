package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expenseflow/expenseflow-api/internal/models"
	"github.com/expenseflow/expenseflow-api/internal/workflow"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

func expenseRows(now time.Time, status models.ExpenseStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "company_id", "employee_id", "amount", "currency", "amount_in_company_currency", "category", "description", "expense_date", "receipt_url", "project_id", "department", "status", "current_approver_step", "created_at", "updated_at"}).
		AddRow("e1", "c1", "u1", 100.0, "USD", 100.0, "travel", "taxi", now, nil, nil, nil, string(status), 1, now, now)
}

func TestTransactLocksCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewWorkflowStore(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM expenses WHERE id = $1 FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + expenseColumns + " FROM expenses WHERE id = $1 LIMIT 1")).
		WithArgs("e1").
		WillReturnRows(expenseRows(now, models.ExpenseStatusPending))
	mock.ExpectExec("UPDATE expenses SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Transact(context.Background(), "e1", func(s workflow.Store) error {
		expense, err := s.GetExpense(context.Background(), "e1")
		if err != nil {
			return err
		}
		expense.Status = models.ExpenseStatusApproved
		return s.SaveExpense(context.Background(), expense)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewWorkflowStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM expenses WHERE id = $1 FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1"))
	mock.ExpectRollback()

	sentinel := appErrors.ErrInvalidState
	err := store.Transact(context.Background(), "e1", func(workflow.Store) error {
		return sentinel
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactUnknownExpense(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewWorkflowStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM expenses WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := store.Transact(context.Background(), "missing", func(workflow.Store) error {
		t.Fatal("fn must not run for an unknown expense")
		return nil
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowStoreGetSteps(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewWorkflowStore(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "company_id", "expense_id", "approver_id", "step_order", "status", "comment", "decided_at", "created_at", "updated_at"}).
		AddRow("s1", "c1", "e1", "m1", 1, string(models.StepStatusPending), nil, nil, now, now).
		AddRow("s2", "c1", "e1", "m2", 2, string(models.StepStatusPending), nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + stepColumns + " FROM approval_steps WHERE expense_id = $1 ORDER BY step_order")).
		WithArgs("e1").
		WillReturnRows(rows)

	steps, err := store.GetSteps(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}
