package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type mockBudgetRepo struct {
	budgets map[string]*models.Budget
	active  []models.Budget
	created *models.Budget
	spent   map[string]float64
}

func (m *mockBudgetRepo) Create(ctx context.Context, budget *models.Budget) error {
	budget.ID = "budget-1"
	m.created = budget
	return nil
}

func (m *mockBudgetRepo) FindByID(ctx context.Context, companyID, id string) (*models.Budget, error) {
	b, ok := m.budgets[id]
	if !ok || b.CompanyID != companyID {
		return nil, sql.ErrNoRows
	}
	return b, nil
}

func (m *mockBudgetRepo) List(ctx context.Context, companyID string) ([]models.Budget, error) {
	var out []models.Budget
	for _, b := range m.budgets {
		out = append(out, *b)
	}
	return out, nil
}

func (m *mockBudgetRepo) ListActive(ctx context.Context, companyID string, at time.Time) ([]models.Budget, error) {
	return m.active, nil
}

func (m *mockBudgetRepo) Update(ctx context.Context, budget *models.Budget) error {
	return nil
}

func (m *mockBudgetRepo) AddSpent(ctx context.Context, id string, amount float64) (*models.Budget, error) {
	if m.spent == nil {
		m.spent = make(map[string]float64)
	}
	m.spent[id] += amount
	for i := range m.active {
		if m.active[i].ID == id {
			updated := m.active[i]
			updated.Spent += m.spent[id]
			return &updated, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockBudgetRepo) Delete(ctx context.Context, companyID, id string) error {
	return nil
}

type mockBudgetUserRepo struct {
	admins []models.User
}

func (m *mockBudgetUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return m.admins, len(m.admins), nil
}

type mockBudgetNotifier struct {
	warned  int
	userIDs []string
}

func (m *mockBudgetNotifier) NotifyBudgetExceeded(ctx context.Context, companyID string, userIDs []string, budget *models.Budget) {
	m.warned++
	m.userIDs = userIDs
}

func activeBudget(id string, amount, spent float64) models.Budget {
	return models.Budget{
		ID:        id,
		CompanyID: "c1",
		Name:      "Travel Q1",
		Amount:    amount,
		Spent:     spent,
		Period:    models.BudgetPeriodQuarterly,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	}
}

func approvedExpense(amount float64) *models.Expense {
	return &models.Expense{
		ID:                      "exp-1",
		CompanyID:               "c1",
		AmountInCompanyCurrency: amount,
		Category:                "travel",
		ExpenseDate:             time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		Status:                  models.ExpenseStatusApproved,
	}
}

func TestCreateBudget(t *testing.T) {
	repo := &mockBudgetRepo{}
	svc := NewBudgetService(repo, &mockBudgetUserRepo{}, nil, validator.New(), zap.NewNop())

	budget, err := svc.Create(context.Background(), "c1", CreateBudgetRequest{
		Name:      "Travel Q1",
		Amount:    5000,
		Period:    models.BudgetPeriodQuarterly,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "budget-1", budget.ID)
	assert.True(t, budget.IsActive)
}

func TestCreateBudgetInvertedWindow(t *testing.T) {
	svc := NewBudgetService(&mockBudgetRepo{}, &mockBudgetUserRepo{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "c1", CreateBudgetRequest{
		Name:      "Backwards",
		Amount:    100,
		Period:    models.BudgetPeriodMonthly,
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAccrueApprovedBooksSpend(t *testing.T) {
	repo := &mockBudgetRepo{active: []models.Budget{activeBudget("budget-1", 5000, 0)}}
	svc := NewBudgetService(repo, &mockBudgetUserRepo{}, nil, validator.New(), zap.NewNop())

	svc.AccrueApproved(context.Background(), approvedExpense(300))

	assert.InDelta(t, 300, repo.spent["budget-1"], 0.001)
}

func TestAccrueApprovedWarnsOnTransition(t *testing.T) {
	repo := &mockBudgetRepo{active: []models.Budget{activeBudget("budget-1", 500, 400)}}
	users := &mockBudgetUserRepo{admins: []models.User{{ID: "admin-1"}, {ID: "admin-2"}}}
	notify := &mockBudgetNotifier{}
	svc := NewBudgetService(repo, users, notify, validator.New(), zap.NewNop())

	svc.AccrueApproved(context.Background(), approvedExpense(200))

	assert.Equal(t, 1, notify.warned)
	assert.ElementsMatch(t, []string{"admin-1", "admin-2"}, notify.userIDs)
}

func TestAccrueApprovedAlreadyExceededStaysQuiet(t *testing.T) {
	repo := &mockBudgetRepo{active: []models.Budget{activeBudget("budget-1", 500, 600)}}
	notify := &mockBudgetNotifier{}
	svc := NewBudgetService(repo, &mockBudgetUserRepo{}, notify, validator.New(), zap.NewNop())

	svc.AccrueApproved(context.Background(), approvedExpense(50))

	assert.Equal(t, 0, notify.warned)
	assert.InDelta(t, 50, repo.spent["budget-1"], 0.001)
}

func TestAccrueApprovedSkipsNonCoveringBudgets(t *testing.T) {
	category := "meals"
	scoped := activeBudget("budget-1", 1000, 0)
	scoped.Category = &category
	repo := &mockBudgetRepo{active: []models.Budget{scoped}}
	svc := NewBudgetService(repo, &mockBudgetUserRepo{}, nil, validator.New(), zap.NewNop())

	svc.AccrueApproved(context.Background(), approvedExpense(100))

	assert.Empty(t, repo.spent)
}
