package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	"github.com/expenseflow/expenseflow-api/internal/workflow"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type mockApprovalStepRepo struct {
	pending []models.ExpenseDetail
	chain   []models.ApprovalStepDetail
}

func (m *mockApprovalStepRepo) PendingForApprover(ctx context.Context, companyID, approverID string, page, pageSize int) ([]models.ExpenseDetail, int, error) {
	return m.pending, len(m.pending), nil
}

func (m *mockApprovalStepRepo) ListDetailByExpense(ctx context.Context, expenseID string) ([]models.ApprovalStepDetail, error) {
	return m.chain, nil
}

type mockEngine struct {
	result   *workflow.DecisionResult
	err      error
	decision models.Decision
	comment  string
}

func (m *mockEngine) RecordDecision(ctx context.Context, expenseID, approverID string, decision models.Decision, comment string) (*workflow.DecisionResult, error) {
	m.decision = decision
	m.comment = comment
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockDecisionNotifier struct {
	notified bool
	approved bool
}

func (m *mockDecisionNotifier) NotifyExpenseDecided(ctx context.Context, companyID, employeeID, expenseID string, approved bool, comment string) {
	m.notified = true
	m.approved = approved
}

type mockBudgetAccruer struct {
	accrued *models.Expense
}

func (m *mockBudgetAccruer) AccrueApproved(ctx context.Context, expense *models.Expense) {
	m.accrued = expense
}

type mockDashboardInvalidator struct {
	companies []string
}

func (m *mockDashboardInvalidator) Invalidate(ctx context.Context, companyID string) {
	m.companies = append(m.companies, companyID)
}

func decisionResult(status models.ExpenseStatus) *workflow.DecisionResult {
	return &workflow.DecisionResult{
		Expense: &models.Expense{ID: "exp-1", CompanyID: "c1", EmployeeID: "emp-1", Status: status, AmountInCompanyCurrency: 90},
	}
}

func approverClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "mgr-1", CompanyID: "c1", Role: models.RoleManager}
}

func TestDecideApproveRunsSideEffects(t *testing.T) {
	engine := &mockEngine{result: decisionResult(models.ExpenseStatusApproved)}
	notify := &mockDecisionNotifier{}
	budgets := &mockBudgetAccruer{}
	dashboard := &mockDashboardInvalidator{}
	svc := NewApprovalService(&mockApprovalStepRepo{}, engine, notify, budgets, dashboard, validator.New(), zap.NewNop())

	result, err := svc.Decide(context.Background(), approverClaims(), "exp-1", models.DecisionRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)

	assert.Equal(t, models.ExpenseStatusApproved, result.Expense.Status)
	assert.True(t, notify.notified)
	assert.True(t, notify.approved)
	require.NotNil(t, budgets.accrued)
	assert.Equal(t, "exp-1", budgets.accrued.ID)
	assert.Equal(t, []string{"c1"}, dashboard.companies)
}

func TestDecideRejectSkipsBudgetAccrual(t *testing.T) {
	engine := &mockEngine{result: decisionResult(models.ExpenseStatusRejected)}
	notify := &mockDecisionNotifier{}
	budgets := &mockBudgetAccruer{}
	svc := NewApprovalService(&mockApprovalStepRepo{}, engine, notify, budgets, &mockDashboardInvalidator{}, validator.New(), zap.NewNop())

	_, err := svc.Decide(context.Background(), approverClaims(), "exp-1", models.DecisionRequest{Decision: models.DecisionReject, Comment: "missing receipt"})
	require.NoError(t, err)

	assert.True(t, notify.notified)
	assert.False(t, notify.approved)
	assert.Nil(t, budgets.accrued)
	assert.Equal(t, "missing receipt", engine.comment)
}

func TestDecideNonTerminalStaysQuiet(t *testing.T) {
	engine := &mockEngine{result: decisionResult(models.ExpenseStatusPending)}
	notify := &mockDecisionNotifier{}
	budgets := &mockBudgetAccruer{}
	dashboard := &mockDashboardInvalidator{}
	svc := NewApprovalService(&mockApprovalStepRepo{}, engine, notify, budgets, dashboard, validator.New(), zap.NewNop())

	_, err := svc.Decide(context.Background(), approverClaims(), "exp-1", models.DecisionRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)

	assert.False(t, notify.notified)
	assert.Nil(t, budgets.accrued)
	// The dashboard counts pending approvals, so it refreshes either way.
	assert.Equal(t, []string{"c1"}, dashboard.companies)
}

func TestDecideRejectRequiresComment(t *testing.T) {
	svc := NewApprovalService(&mockApprovalStepRepo{}, &mockEngine{}, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Decide(context.Background(), approverClaims(), "exp-1", models.DecisionRequest{Decision: models.DecisionReject})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDecidePropagatesEngineErrors(t *testing.T) {
	engine := &mockEngine{err: appErrors.Clone(appErrors.ErrStepNotFound, "")}
	notify := &mockDecisionNotifier{}
	svc := NewApprovalService(&mockApprovalStepRepo{}, engine, notify, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Decide(context.Background(), approverClaims(), "exp-1", models.DecisionRequest{Decision: models.DecisionApprove})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStepNotFound))
	assert.False(t, notify.notified)
}

func chainStep(id, approverID string) models.ApprovalStepDetail {
	return models.ApprovalStepDetail{
		ApprovalStep: models.ApprovalStep{ID: id, CompanyID: "c1", ExpenseID: "exp-1", ApproverID: approverID},
	}
}

func TestChainManagersSeeOnlyOwnSteps(t *testing.T) {
	steps := &mockApprovalStepRepo{chain: []models.ApprovalStepDetail{
		chainStep("st-1", "mgr-1"),
		chainStep("st-2", "mgr-2"),
	}}
	svc := NewApprovalService(steps, nil, nil, nil, nil, validator.New(), zap.NewNop())

	chain, err := svc.Chain(context.Background(), approverClaims(), "exp-1")
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "st-1", chain[0].ID)
}

func TestChainAdminsSeeEverything(t *testing.T) {
	steps := &mockApprovalStepRepo{chain: []models.ApprovalStepDetail{
		chainStep("st-1", "mgr-1"),
		chainStep("st-2", "mgr-2"),
	}}
	svc := NewApprovalService(steps, nil, nil, nil, nil, validator.New(), zap.NewNop())

	chain, err := svc.Chain(context.Background(), &models.JWTClaims{UserID: "admin-1", CompanyID: "c1", Role: models.RoleAdmin}, "exp-1")
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestChainHidesOtherCompanies(t *testing.T) {
	steps := &mockApprovalStepRepo{chain: []models.ApprovalStepDetail{
		chainStep("st-1", "mgr-1"),
	}}
	svc := NewApprovalService(steps, nil, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Chain(context.Background(), &models.JWTClaims{UserID: "mgr-9", CompanyID: "c2", Role: models.RoleManager}, "exp-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPendingClampsPagination(t *testing.T) {
	repo := &mockApprovalStepRepo{pending: []models.ExpenseDetail{{Expense: models.Expense{ID: "exp-1"}}}}
	svc := NewApprovalService(repo, &mockEngine{}, nil, nil, nil, validator.New(), zap.NewNop())

	list, page, err := svc.Pending(context.Background(), approverClaims(), 0, 500)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)
}
