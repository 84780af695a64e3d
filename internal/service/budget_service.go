package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type budgetRepository interface {
	Create(ctx context.Context, budget *models.Budget) error
	FindByID(ctx context.Context, companyID, id string) (*models.Budget, error)
	List(ctx context.Context, companyID string) ([]models.Budget, error)
	ListActive(ctx context.Context, companyID string, at time.Time) ([]models.Budget, error)
	Update(ctx context.Context, budget *models.Budget) error
	AddSpent(ctx context.Context, id string, amount float64) (*models.Budget, error)
	Delete(ctx context.Context, companyID, id string) error
}

type budgetUserRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type budgetNotifier interface {
	NotifyBudgetExceeded(ctx context.Context, companyID string, userIDs []string, budget *models.Budget)
}

// CreateBudgetRequest defines a new spending cap.
type CreateBudgetRequest struct {
	Name       string              `json:"name" validate:"required"`
	Amount     float64             `json:"amount" validate:"required,gt=0"`
	Category   *string             `json:"category,omitempty"`
	Department *string             `json:"department,omitempty"`
	Period     models.BudgetPeriod `json:"period" validate:"required,oneof=monthly quarterly yearly"`
	StartDate  time.Time           `json:"start_date" validate:"required"`
	EndDate    time.Time           `json:"end_date" validate:"required"`
}

// BudgetService manages spending budgets and accrues approved expenses
// against them. Exceeding a cap never blocks an approval; it raises a
// notification to the company admins.
type BudgetService struct {
	budgets   budgetRepository
	users     budgetUserRepository
	notify    budgetNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBudgetService constructs a BudgetService.
func NewBudgetService(budgets budgetRepository, users budgetUserRepository, notify budgetNotifier, validate *validator.Validate, logger *zap.Logger) *BudgetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BudgetService{budgets: budgets, users: users, notify: notify, validator: validate, logger: logger}
}

// Create validates and stores a new budget.
func (s *BudgetService) Create(ctx context.Context, companyID string, req CreateBudgetRequest) (*models.Budget, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid budget payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}

	budget := &models.Budget{
		CompanyID:  companyID,
		Name:       req.Name,
		Amount:     req.Amount,
		Category:   req.Category,
		Department: req.Department,
		Period:     req.Period,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		IsActive:   true,
	}
	if err := s.budgets.Create(ctx, budget); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create budget")
	}
	return budget, nil
}

// List returns all budgets of the company.
func (s *BudgetService) List(ctx context.Context, companyID string) ([]models.Budget, error) {
	budgets, err := s.budgets.List(ctx, companyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list budgets")
	}
	return budgets, nil
}

// Get returns one budget.
func (s *BudgetService) Get(ctx context.Context, companyID, id string) (*models.Budget, error) {
	budget, err := s.budgets.FindByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "budget not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load budget")
	}
	return budget, nil
}

// Update stores changes to a budget's cap, scope or window.
func (s *BudgetService) Update(ctx context.Context, companyID, id string, req CreateBudgetRequest) (*models.Budget, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid budget payload")
	}
	budget, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	budget.Name = req.Name
	budget.Amount = req.Amount
	budget.Category = req.Category
	budget.Department = req.Department
	budget.Period = req.Period
	budget.StartDate = req.StartDate
	budget.EndDate = req.EndDate
	if err := s.budgets.Update(ctx, budget); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update budget")
	}
	return budget, nil
}

// Delete removes a budget.
func (s *BudgetService) Delete(ctx context.Context, companyID, id string) error {
	if _, err := s.Get(ctx, companyID, id); err != nil {
		return err
	}
	if err := s.budgets.Delete(ctx, companyID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete budget")
	}
	return nil
}

// AccrueApproved books an approved expense against every matching budget.
// Called after the approval transaction commits; failures only log.
func (s *BudgetService) AccrueApproved(ctx context.Context, expense *models.Expense) {
	budgets, err := s.budgets.ListActive(ctx, expense.CompanyID, expense.ExpenseDate)
	if err != nil {
		s.logger.Warn("failed to load budgets for accrual", zap.Error(err), zap.String("expense_id", expense.ID))
		return
	}

	for i := range budgets {
		if !budgets[i].Covers(expense) {
			continue
		}
		wasExceeded := budgets[i].Exceeded()
		updated, err := s.budgets.AddSpent(ctx, budgets[i].ID, expense.AmountInCompanyCurrency)
		if err != nil {
			s.logger.Warn("failed to accrue budget spend", zap.Error(err), zap.String("budget_id", budgets[i].ID))
			continue
		}
		if !wasExceeded && updated.Exceeded() {
			s.warnAdmins(ctx, expense.CompanyID, updated)
		}
	}
}

func (s *BudgetService) warnAdmins(ctx context.Context, companyID string, budget *models.Budget) {
	if s.notify == nil {
		return
	}
	role := models.RoleAdmin
	admins, _, err := s.users.List(ctx, models.UserFilter{CompanyID: companyID, Role: &role, PageSize: 100})
	if err != nil {
		s.logger.Warn("failed to load admins for budget warning", zap.Error(err))
		return
	}
	ids := make([]string, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}
	s.notify.NotifyBudgetExceeded(ctx, companyID, ids, budget)
}
