package models

import (
	"time"

	"github.com/lib/pq"

	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

// StepStatus is the state of one approver's obligation.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
)

// Decision is an approver's action on their pending step.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ApprovalStep is one approver's pending or settled obligation within an
// expense's approval chain. Exactly one step exists per (expense, approver)
// pair and steps for one expense form a total order by StepOrder.
type ApprovalStep struct {
	ID         string     `db:"id" json:"id"`
	CompanyID  string     `db:"company_id" json:"company_id"`
	ExpenseID  string     `db:"expense_id" json:"expense_id"`
	ApproverID string     `db:"approver_id" json:"approver_id"`
	StepOrder  int        `db:"step_order" json:"step_order"`
	Status     StepStatus `db:"status" json:"status"`
	Comment    *string    `db:"comment" json:"comment,omitempty"`
	DecidedAt  *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// DecisionRequest carries one approver's verdict on an expense.
type DecisionRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=approve reject"`
	Comment  string   `json:"comment"`
}

// ApprovalStepDetail joins the approver name for API projections.
type ApprovalStepDetail struct {
	ApprovalStep
	ApproverName string `db:"approver_name" json:"approver_name"`
}

// RuleType discriminates the approval rule variants.
type RuleType string

const (
	RuleTypePercentage       RuleType = "percentage"
	RuleTypeSpecificApprover RuleType = "specific_approver"
	RuleTypeHybrid           RuleType = "hybrid"
)

// ApprovalRule is a company-scoped policy describing how aggregate step
// outcomes translate into expense approval. One tagged type carries the
// superset of fields of the rule variants; Validate enforces the fields each
// declared type requires. AmountThreshold and Categories optionally scope a
// rule to a subset of expenses; when unset the rule applies to all.
type ApprovalRule struct {
	ID                  string         `db:"id" json:"id"`
	CompanyID           string         `db:"company_id" json:"company_id"`
	Name                string         `db:"name" json:"name"`
	RuleType            RuleType       `db:"rule_type" json:"rule_type"`
	PercentageThreshold *int           `db:"percentage_threshold" json:"percentage_threshold,omitempty"`
	SpecificApproverID  *string        `db:"specific_approver_id" json:"specific_approver_id,omitempty"`
	AmountThreshold     *float64       `db:"amount_threshold" json:"amount_threshold,omitempty"`
	Categories          pq.StringArray `db:"categories" json:"categories,omitempty"`
	IsActive            bool           `db:"is_active" json:"is_active"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// Validate checks that the rule carries the fields its declared type needs.
func (r *ApprovalRule) Validate() error {
	switch r.RuleType {
	case RuleTypePercentage:
		if !validThreshold(r.PercentageThreshold) {
			return appErrors.Clone(appErrors.ErrInvalidRule, "percentage rule requires a threshold between 1 and 100")
		}
	case RuleTypeSpecificApprover:
		if r.SpecificApproverID == nil || *r.SpecificApproverID == "" {
			return appErrors.Clone(appErrors.ErrInvalidRule, "specific_approver rule requires an approver")
		}
	case RuleTypeHybrid:
		if !validThreshold(r.PercentageThreshold) {
			return appErrors.Clone(appErrors.ErrInvalidRule, "hybrid rule requires a threshold between 1 and 100")
		}
		if r.SpecificApproverID == nil || *r.SpecificApproverID == "" {
			return appErrors.Clone(appErrors.ErrInvalidRule, "hybrid rule requires an approver")
		}
	default:
		return appErrors.Clone(appErrors.ErrInvalidRule, "unknown rule type")
	}
	return nil
}

// Matches reports whether the rule's optional scope covers the expense.
// Scope is matched on the amount converted to the company currency.
func (r *ApprovalRule) Matches(expense *Expense) bool {
	if r.AmountThreshold != nil && expense.AmountInCompanyCurrency < *r.AmountThreshold {
		return false
	}
	if len(r.Categories) > 0 {
		found := false
		for _, c := range r.Categories {
			if c == expense.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func validThreshold(t *int) bool {
	return t != nil && *t >= 1 && *t <= 100
}
