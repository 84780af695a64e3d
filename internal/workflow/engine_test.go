package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

// stubStore is an in-memory TxStore whose Transact simply runs fn against
// itself, so engine tests exercise the full decision path without a
// database.
type stubStore struct {
	expense *models.Expense
	steps   []models.ApprovalStep
	rules   []models.ApprovalRule

	transactCalls int
	savedSteps    int
	savedExpenses int
}

func (s *stubStore) GetExpense(_ context.Context, expenseID string) (*models.Expense, error) {
	if s.expense == nil || s.expense.ID != expenseID {
		return nil, appErrors.ErrNotFound
	}
	return s.expense, nil
}

func (s *stubStore) GetSteps(_ context.Context, _ string) ([]models.ApprovalStep, error) {
	return s.steps, nil
}

func (s *stubStore) SaveStep(_ context.Context, _ *models.ApprovalStep) error {
	s.savedSteps++
	return nil
}

func (s *stubStore) SaveExpense(_ context.Context, _ *models.Expense) error {
	s.savedExpenses++
	return nil
}

func (s *stubStore) ActiveRules(_ context.Context, _ string) ([]models.ApprovalRule, error) {
	return s.rules, nil
}

func (s *stubStore) Transact(_ context.Context, _ string, fn func(Store) error) error {
	s.transactCalls++
	return fn(s)
}

func pendingExpense(amount float64) *models.Expense {
	return &models.Expense{
		ID:                      "e1",
		CompanyID:               "c1",
		EmployeeID:              "emp1",
		Status:                  models.ExpenseStatusPending,
		Amount:                  amount,
		AmountInCompanyCurrency: amount,
		Category:                "travel",
		CurrentApproverStep:     1,
		CreatedAt:               time.Now().UTC(),
	}
}

func newTestEngine(store *stubStore) *Engine {
	return NewEngine(store, zap.NewNop())
}

func TestRecordDecisionApproveFinalizesUnanimousChain(t *testing.T) {
	store := &stubStore{
		expense: pendingExpense(100),
		steps:   makeSteps(models.StepStatusApproved, models.StepStatusPending),
	}
	engine := newTestEngine(store)

	result, err := engine.RecordDecision(context.Background(), "e1", store.steps[1].ApproverID, models.DecisionApprove, "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeApproved, result.Outcome)
	assert.Equal(t, models.ExpenseStatusApproved, result.Expense.Status)
	assert.Equal(t, models.StepStatusApproved, result.Steps[1].Status)
	require.NotNil(t, result.Steps[1].DecidedAt)
	assert.Equal(t, 1, store.savedSteps)
	assert.Equal(t, 1, store.savedExpenses)
	assert.Equal(t, 1, store.transactCalls)
}

func TestRecordDecisionRejectIsTerminalWithoutEvaluation(t *testing.T) {
	store := &stubStore{
		expense: pendingExpense(100),
		steps:   makeSteps(models.StepStatusPending, models.StepStatusPending),
		// Even a trivially satisfiable rule must not rescue a rejection.
		rules: []models.ApprovalRule{percentageRule(1)},
	}
	engine := newTestEngine(store)

	result, err := engine.RecordDecision(context.Background(), "e1", store.steps[0].ApproverID, models.DecisionReject, "no receipt")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, models.ExpenseStatusRejected, result.Expense.Status)
	require.NotNil(t, result.Steps[0].Comment)
	assert.Equal(t, "no receipt", *result.Steps[0].Comment)
	require.NotNil(t, result.Steps[0].DecidedAt)
}

func TestRecordDecisionOnTerminalExpense(t *testing.T) {
	for _, status := range []models.ExpenseStatus{models.ExpenseStatusApproved, models.ExpenseStatusRejected} {
		expense := pendingExpense(100)
		expense.Status = status
		store := &stubStore{
			expense: expense,
			steps:   makeSteps(models.StepStatusPending),
		}
		engine := newTestEngine(store)

		_, err := engine.RecordDecision(context.Background(), "e1", store.steps[0].ApproverID, models.DecisionApprove, "")
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
		assert.Zero(t, store.savedSteps, "terminal expense must not be mutated")
		assert.Zero(t, store.savedExpenses)
	}
}

func TestRecordDecisionApproverWithoutPendingStep(t *testing.T) {
	steps := makeSteps(models.StepStatusApproved, models.StepStatusPending)
	store := &stubStore{expense: pendingExpense(100), steps: steps}
	engine := newTestEngine(store)

	// Unknown approver.
	_, err := engine.RecordDecision(context.Background(), "e1", "stranger", models.DecisionApprove, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStepNotFound))

	// Known approver who already decided.
	_, err = engine.RecordDecision(context.Background(), "e1", steps[0].ApproverID, models.DecisionApprove, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStepNotFound))
	assert.Zero(t, store.savedSteps)
}

func TestRecordDecisionAdvancesPointerToLowestPending(t *testing.T) {
	steps := makeSteps(models.StepStatusPending, models.StepStatusPending, models.StepStatusPending)
	store := &stubStore{expense: pendingExpense(100), steps: steps}
	engine := newTestEngine(store)

	// Step 2 decides out of order; step 1 remains the lowest pending.
	result, err := engine.RecordDecision(context.Background(), "e1", steps[1].ApproverID, models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, 1, result.Expense.CurrentApproverStep)

	result, err = engine.RecordDecision(context.Background(), "e1", steps[0].ApproverID, models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, 3, result.Expense.CurrentApproverStep)
}

func TestRecordDecisionSpecificApproverRuleFinalizesEarly(t *testing.T) {
	steps := makeSteps(models.StepStatusPending, models.StepStatusPending, models.StepStatusPending)
	store := &stubStore{
		expense: pendingExpense(100),
		steps:   steps,
		rules:   []models.ApprovalRule{specificRule(steps[2].ApproverID)},
	}
	engine := newTestEngine(store)

	result, err := engine.RecordDecision(context.Background(), "e1", steps[2].ApproverID, models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, result.Outcome)
	assert.Equal(t, models.ExpenseStatusApproved, result.Expense.Status)
}

func TestRecordDecisionFiltersRulesByScope(t *testing.T) {
	// The rule auto-approves any single approval, but only for expenses of
	// at least 500; a 100 expense falls back to unanimity.
	scoped := percentageRule(1)
	scoped.AmountThreshold = floatPtr(500)

	steps := makeSteps(models.StepStatusPending, models.StepStatusPending)
	store := &stubStore{expense: pendingExpense(100), steps: steps, rules: []models.ApprovalRule{scoped}}
	engine := newTestEngine(store)

	result, err := engine.RecordDecision(context.Background(), "e1", steps[0].ApproverID, models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)

	// Above the threshold the rule applies and one approval suffices.
	store2 := &stubStore{
		expense: pendingExpense(900),
		steps:   makeSteps(models.StepStatusPending, models.StepStatusPending),
		rules:   []models.ApprovalRule{scoped},
	}
	result, err = newTestEngine(store2).RecordDecision(context.Background(), "e1", store2.steps[0].ApproverID, models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, result.Outcome)
}

func TestRecordDecisionUnknownExpense(t *testing.T) {
	store := &stubStore{}
	engine := newTestEngine(store)

	_, err := engine.RecordDecision(context.Background(), "missing", "a", models.DecisionApprove, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
