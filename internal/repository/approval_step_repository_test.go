package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expenseflow/expenseflow-api/internal/models"
)

func TestCreateBatchRunsInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalStepRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO approval_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO approval_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	steps := []models.ApprovalStep{
		{CompanyID: "c1", ExpenseID: "e1", ApproverID: "m1", StepOrder: 1, Status: models.StepStatusPending},
		{CompanyID: "c1", ExpenseID: "e1", ApproverID: "m2", StepOrder: 2, Status: models.StepStatusPending},
	}
	err := repo.CreateBatch(context.Background(), steps)
	require.NoError(t, err)
	assert.NotEmpty(t, steps[0].ID)
	assert.NotEmpty(t, steps[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatchEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalStepRepository(db)

	err := repo.CreateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingForApprover(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalStepRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "company_id", "employee_id", "amount", "currency", "amount_in_company_currency", "category", "description", "expense_date", "receipt_url", "project_id", "department", "status", "current_approver_step", "created_at", "updated_at", "employee_name"}).
		AddRow("e1", "c1", "u1", 100.0, "USD", 100.0, "travel", "taxi", now, nil, nil, nil, "pending", 1, now, now, "User One")
	mock.ExpectQuery("FROM approval_steps st").
		WithArgs("c1", "m1", string(models.StepStatusPending), string(models.ExpenseStatusPending)).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("c1", "m1", string(models.StepStatusPending), string(models.ExpenseStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	expenses, total, err := repo.PendingForApprover(context.Background(), "c1", "m1", 1, 20)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
