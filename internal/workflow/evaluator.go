package workflow

import (
	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

// Outcome is the aggregate verdict over an expense's approval steps.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Evaluate decides whether the given step outcomes satisfy any of the
// company's approval rules. It is a pure function: rules must already be
// filtered to the active, applicable set, in their configured order, and
// steps must be the complete chain for one expense.
//
// A single rejected step is terminal regardless of rule configuration. The
// first rule whose condition holds wins. With no active rules the fallback
// is unanimous approval. Active rules that all fail to fire leave the
// expense pending.
func Evaluate(rules []models.ApprovalRule, steps []models.ApprovalStep) (Outcome, error) {
	if len(steps) == 0 {
		return "", appErrors.Clone(appErrors.ErrInvalidState, "cannot evaluate an expense with no approval steps")
	}

	approvedCount := 0
	for _, step := range steps {
		switch step.Status {
		case models.StepStatusRejected:
			return OutcomeRejected, nil
		case models.StepStatusApproved:
			approvedCount++
		}
	}

	hasActive := false
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		hasActive = true

		switch rule.RuleType {
		case models.RuleTypeSpecificApprover:
			if approverApproved(steps, rule.SpecificApproverID) {
				return OutcomeApproved, nil
			}
		case models.RuleTypePercentage:
			if percentageMet(approvedCount, len(steps), rule.PercentageThreshold) {
				return OutcomeApproved, nil
			}
		case models.RuleTypeHybrid:
			if approverApproved(steps, rule.SpecificApproverID) || percentageMet(approvedCount, len(steps), rule.PercentageThreshold) {
				return OutcomeApproved, nil
			}
		}
	}

	if !hasActive && approvedCount == len(steps) {
		return OutcomeApproved, nil
	}
	return OutcomePending, nil
}

func approverApproved(steps []models.ApprovalStep, approverID *string) bool {
	if approverID == nil || *approverID == "" {
		return false
	}
	for _, step := range steps {
		if step.ApproverID == *approverID {
			return step.Status == models.StepStatusApproved
		}
	}
	return false
}

// percentageMet applies the inclusive threshold: exactly threshold percent
// approved counts as met.
func percentageMet(approved, total int, threshold *int) bool {
	if threshold == nil || total == 0 {
		return false
	}
	return float64(approved)/float64(total)*100 >= float64(*threshold)
}
