package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expenseflow/expenseflow-api/internal/models"
)

func manager(id string, createdAt time.Time) models.User {
	return models.User{ID: id, CompanyID: "c1", Role: models.RoleManager, CreatedAt: createdAt}
}

func TestBuildChainDirectManagerFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	employee := &models.User{
		ID: "emp1", CompanyID: "c1", Role: models.RoleEmployee,
		ManagerID: strPtr("m1"), IsManagerApprover: true,
	}
	expense := pendingExpense(100)
	managers := []models.User{
		manager("m3", base.Add(2*time.Hour)),
		manager("m1", base),
		manager("m2", base.Add(time.Hour)),
	}

	steps := BuildChain(expense, employee, managers)
	require.Len(t, steps, 3)

	assert.Equal(t, "m1", steps[0].ApproverID)
	assert.Equal(t, "m2", steps[1].ApproverID)
	assert.Equal(t, "m3", steps[2].ApproverID)
	for i, step := range steps {
		assert.Equal(t, i+1, step.StepOrder)
		assert.Equal(t, models.StepStatusPending, step.Status)
		assert.Equal(t, expense.ID, step.ExpenseID)
		assert.Equal(t, expense.CompanyID, step.CompanyID)
	}
}

func TestBuildChainDeterministicWithEqualTimestamps(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	employee := &models.User{ID: "emp1", CompanyID: "c1", Role: models.RoleEmployee}
	expense := pendingExpense(100)

	forward := BuildChain(expense, employee, []models.User{manager("mb", at), manager("ma", at)})
	reversed := BuildChain(expense, employee, []models.User{manager("ma", at), manager("mb", at)})

	require.Len(t, forward, 2)
	assert.Equal(t, "ma", forward[0].ApproverID, "ties break on ID")
	assert.Equal(t, forward, reversed, "roster order must not affect the chain")
}

func TestBuildChainSkipsDirectManagerWhenNotApprover(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	employee := &models.User{
		ID: "emp1", CompanyID: "c1", Role: models.RoleEmployee,
		ManagerID: strPtr("m1"), IsManagerApprover: false,
	}
	managers := []models.User{manager("m1", base), manager("m2", base.Add(time.Hour))}

	steps := BuildChain(pendingExpense(100), employee, managers)

	// The direct manager is excluded entirely, not demoted into the roster.
	require.Len(t, steps, 1)
	assert.Equal(t, "m2", steps[0].ApproverID)
	assert.Equal(t, 1, steps[0].StepOrder)
}

func TestBuildChainIgnoresNonManagerRoster(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	employee := &models.User{ID: "emp1", CompanyID: "c1", Role: models.RoleEmployee}
	roster := []models.User{
		{ID: "admin1", CompanyID: "c1", Role: models.RoleAdmin, CreatedAt: base},
		manager("m1", base.Add(time.Hour)),
		{ID: "emp2", CompanyID: "c1", Role: models.RoleEmployee, CreatedAt: base},
	}

	steps := BuildChain(pendingExpense(100), employee, roster)
	require.Len(t, steps, 1)
	assert.Equal(t, "m1", steps[0].ApproverID)
}

func TestBuildChainEmptyRoster(t *testing.T) {
	employee := &models.User{ID: "emp1", CompanyID: "c1", Role: models.RoleEmployee}
	steps := BuildChain(pendingExpense(100), employee, nil)
	assert.Empty(t, steps)
}

func TestBuildChainManagerApproverWithoutManager(t *testing.T) {
	// IsManagerApprover set but no manager assigned: no synthetic step 1.
	employee := &models.User{ID: "emp1", CompanyID: "c1", Role: models.RoleEmployee, IsManagerApprover: true}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	steps := BuildChain(pendingExpense(100), employee, []models.User{manager("m1", base)})
	require.Len(t, steps, 1)
	assert.Equal(t, "m1", steps[0].ApproverID)
	assert.Equal(t, 1, steps[0].StepOrder)
}
