package workflow

import (
	"sort"

	"github.com/expenseflow/expenseflow-api/internal/models"
)

// BuildChain constructs the ordered approval steps for a freshly submitted
// expense from the employee's reporting line and the company's manager
// roster. The direct manager goes first when the employee is flagged for
// manager approval; the remaining managers follow ordered by creation time
// then ID, so chain construction is deterministic regardless of roster
// query order. The direct manager is never duplicated into the remainder.
//
// An empty result means the company has no managers; callers decide the
// zero-chain policy (the expense service auto-approves in that case).
func BuildChain(expense *models.Expense, employee *models.User, managers []models.User) []models.ApprovalStep {
	steps := make([]models.ApprovalStep, 0, len(managers)+1)
	order := 1

	var directManagerID string
	if employee.ManagerID != nil {
		directManagerID = *employee.ManagerID
	}

	if employee.IsManagerApprover && directManagerID != "" {
		steps = append(steps, newStep(expense, directManagerID, order))
		order++
	}

	remaining := make([]models.User, 0, len(managers))
	for _, m := range managers {
		if m.Role != models.RoleManager {
			continue
		}
		if m.ID == directManagerID {
			continue
		}
		remaining = append(remaining, m)
	}
	sort.Slice(remaining, func(i, j int) bool {
		if !remaining[i].CreatedAt.Equal(remaining[j].CreatedAt) {
			return remaining[i].CreatedAt.Before(remaining[j].CreatedAt)
		}
		return remaining[i].ID < remaining[j].ID
	})

	for _, m := range remaining {
		steps = append(steps, newStep(expense, m.ID, order))
		order++
	}

	return steps
}

func newStep(expense *models.Expense, approverID string, order int) models.ApprovalStep {
	return models.ApprovalStep{
		CompanyID:  expense.CompanyID,
		ExpenseID:  expense.ID,
		ApproverID: approverID,
		StepOrder:  order,
		Status:     models.StepStatusPending,
	}
}
