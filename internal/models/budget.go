package models

import "time"

// BudgetPeriod is the recurrence window of a budget.
type BudgetPeriod string

const (
	BudgetPeriodMonthly   BudgetPeriod = "monthly"
	BudgetPeriodQuarterly BudgetPeriod = "quarterly"
	BudgetPeriodYearly    BudgetPeriod = "yearly"
)

// Budget caps spend for a category and/or department over a period.
// Spent accrues from approved expenses in the company currency.
type Budget struct {
	ID         string       `db:"id" json:"id"`
	CompanyID  string       `db:"company_id" json:"company_id"`
	Name       string       `db:"name" json:"name"`
	Amount     float64      `db:"amount" json:"amount"`
	Spent      float64      `db:"spent" json:"spent"`
	Category   *string      `db:"category" json:"category,omitempty"`
	Department *string      `db:"department" json:"department,omitempty"`
	Period     BudgetPeriod `db:"period" json:"period"`
	StartDate  time.Time    `db:"start_date" json:"start_date"`
	EndDate    time.Time    `db:"end_date" json:"end_date"`
	IsActive   bool         `db:"is_active" json:"is_active"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the budget's scope and window apply to the expense.
func (b *Budget) Covers(expense *Expense) bool {
	if !b.IsActive {
		return false
	}
	if expense.ExpenseDate.Before(b.StartDate) || expense.ExpenseDate.After(b.EndDate) {
		return false
	}
	if b.Category != nil && *b.Category != "" && *b.Category != expense.Category {
		return false
	}
	if b.Department != nil && *b.Department != "" {
		if expense.Department == nil || *expense.Department != *b.Department {
			return false
		}
	}
	return true
}

// Exceeded reports whether accrued spend passed the cap.
func (b *Budget) Exceeded() bool {
	return b.Spent > b.Amount
}
