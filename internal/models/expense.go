package models

import "time"

// ExpenseStatus is the lifecycle state of an expense claim.
// The only transitions are pending -> approved and pending -> rejected;
// both terminal states are final.
type ExpenseStatus string

const (
	ExpenseStatusPending  ExpenseStatus = "pending"
	ExpenseStatusApproved ExpenseStatus = "approved"
	ExpenseStatusRejected ExpenseStatus = "rejected"
)

// Terminal reports whether the status permits no further decisions.
func (s ExpenseStatus) Terminal() bool {
	return s == ExpenseStatusApproved || s == ExpenseStatusRejected
}

// Expense is a submitted expense claim under approval.
type Expense struct {
	ID                      string        `db:"id" json:"id"`
	CompanyID               string        `db:"company_id" json:"company_id"`
	EmployeeID              string        `db:"employee_id" json:"employee_id"`
	Amount                  float64       `db:"amount" json:"amount"`
	Currency                string        `db:"currency" json:"currency"`
	AmountInCompanyCurrency float64       `db:"amount_in_company_currency" json:"amount_in_company_currency"`
	Category                string        `db:"category" json:"category"`
	Description             string        `db:"description" json:"description"`
	ExpenseDate             time.Time     `db:"expense_date" json:"expense_date"`
	ReceiptURL              *string       `db:"receipt_url" json:"receipt_url,omitempty"`
	ProjectID               *string       `db:"project_id" json:"project_id,omitempty"`
	Department              *string       `db:"department" json:"department,omitempty"`
	Status                  ExpenseStatus `db:"status" json:"status"`
	CurrentApproverStep     int           `db:"current_approver_step" json:"current_approver_step"`
	CreatedAt               time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time     `db:"updated_at" json:"updated_at"`
}

// ExpenseDetail joins the employee name for list/detail responses.
type ExpenseDetail struct {
	Expense
	EmployeeName string `db:"employee_name" json:"employee_name"`
}

// CreateExpenseRequest submits a new expense claim.
type CreateExpenseRequest struct {
	Amount      float64   `json:"amount" validate:"required,gt=0"`
	Currency    string    `json:"currency" validate:"required,len=3"`
	Category    string    `json:"category" validate:"required"`
	Description string    `json:"description" validate:"required"`
	ExpenseDate time.Time `json:"expense_date" validate:"required"`
	ReceiptURL  *string   `json:"receipt_url,omitempty"`
	ProjectID   *string   `json:"project_id,omitempty"`
	Department  *string   `json:"department,omitempty"`
}

// ExpenseFilter captures filtering criteria for listing expenses.
type ExpenseFilter struct {
	CompanyID  string
	EmployeeID string
	Status     ExpenseStatus
	Category   string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// ExpenseSummary aggregates company expenses for the dashboard.
type ExpenseSummary struct {
	TotalCount      int                `json:"total_count"`
	PendingCount    int                `json:"pending_count"`
	ApprovedCount   int                `json:"approved_count"`
	RejectedCount   int                `json:"rejected_count"`
	TotalApproved   float64            `json:"total_approved"`
	TotalPending    float64            `json:"total_pending"`
	ByCategory      map[string]float64 `json:"by_category"`
	AwaitingMyAction int               `json:"awaiting_my_action,omitempty"`
}
