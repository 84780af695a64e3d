package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

// Store is the persistence seam the engine drives. GetSteps returns the
// expense's chain ordered by step_order ascending; ActiveRules returns the
// company's active rules in creation order.
type Store interface {
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)
	GetSteps(ctx context.Context, expenseID string) ([]models.ApprovalStep, error)
	SaveStep(ctx context.Context, step *models.ApprovalStep) error
	SaveExpense(ctx context.Context, expense *models.Expense) error
	ActiveRules(ctx context.Context, companyID string) ([]models.ApprovalRule, error)
}

// TxStore extends Store with a mutual-exclusion boundary. Transact runs fn
// against a store view that serializes concurrent decisions on the same
// expense; all writes inside fn commit or roll back together.
type TxStore interface {
	Store
	Transact(ctx context.Context, expenseID string, fn func(Store) error) error
}

// Engine records approver decisions and advances expense state. It is the
// only workflow component with side effects; rule judgement is delegated to
// Evaluate.
type Engine struct {
	store  TxStore
	logger *zap.Logger
}

// NewEngine constructs the workflow engine.
func NewEngine(store TxStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// DecisionResult carries the post-decision expense and full step list back
// to the caller.
type DecisionResult struct {
	Expense *models.Expense
	Steps   []models.ApprovalStep
	Outcome Outcome
}

// RecordDecision applies one approver's decision to their pending step and
// recomputes the expense status.
//
// Preconditions: the expense exists and is pending, and the caller holds a
// pending step on it. A rejection finalizes the expense immediately; an
// approval re-evaluates the chain against the company's active rules and
// either finalizes the expense or advances the advisory
// current_approver_step pointer to the lowest-order step still pending.
// Step and expense mutations are atomic.
func (e *Engine) RecordDecision(ctx context.Context, expenseID, approverID string, decision models.Decision, comment string) (*DecisionResult, error) {
	result := &DecisionResult{}

	err := e.store.Transact(ctx, expenseID, func(s Store) error {
		expense, err := s.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if expense.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidState, "expense is already "+string(expense.Status))
		}

		steps, err := s.GetSteps(ctx, expenseID)
		if err != nil {
			return err
		}

		step := findPendingStep(steps, approverID)
		if step == nil {
			return appErrors.ErrStepNotFound
		}

		now := time.Now().UTC()
		step.DecidedAt = &now
		step.UpdatedAt = now
		if comment != "" {
			step.Comment = &comment
		}
		if decision == models.DecisionReject {
			step.Status = models.StepStatusRejected
		} else {
			step.Status = models.StepStatusApproved
		}
		if err := s.SaveStep(ctx, step); err != nil {
			return err
		}

		if decision == models.DecisionReject {
			// A single rejection is terminal; no rule evaluation needed.
			expense.Status = models.ExpenseStatusRejected
			expense.UpdatedAt = now
			if err := s.SaveExpense(ctx, expense); err != nil {
				return err
			}
			result.Expense, result.Steps, result.Outcome = expense, steps, OutcomeRejected
			return nil
		}

		rules, err := s.ActiveRules(ctx, expense.CompanyID)
		if err != nil {
			return err
		}
		applicable := make([]models.ApprovalRule, 0, len(rules))
		for _, rule := range rules {
			if rule.Matches(expense) {
				applicable = append(applicable, rule)
			}
		}

		outcome, err := Evaluate(applicable, steps)
		if err != nil {
			return err
		}

		switch outcome {
		case OutcomeApproved:
			expense.Status = models.ExpenseStatusApproved
		case OutcomeRejected:
			expense.Status = models.ExpenseStatusRejected
		default:
			expense.CurrentApproverStep = lowestPendingOrder(steps)
		}
		expense.UpdatedAt = now
		if err := s.SaveExpense(ctx, expense); err != nil {
			return err
		}

		result.Expense, result.Steps, result.Outcome = expense, steps, outcome
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("approval decision recorded",
		zap.String("expense_id", expenseID),
		zap.String("approver_id", approverID),
		zap.String("decision", string(decision)),
		zap.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

// findPendingStep locates the caller's pending step in the fetched chain.
// The returned pointer aliases the slice so the mutation is visible in the
// result step list.
func findPendingStep(steps []models.ApprovalStep, approverID string) *models.ApprovalStep {
	for i := range steps {
		if steps[i].ApproverID == approverID && steps[i].Status == models.StepStatusPending {
			return &steps[i]
		}
	}
	return nil
}

func lowestPendingOrder(steps []models.ApprovalStep) int {
	lowest := 0
	for _, step := range steps {
		if step.Status != models.StepStatusPending {
			continue
		}
		if lowest == 0 || step.StepOrder < lowest {
			lowest = step.StepOrder
		}
	}
	return lowest
}
