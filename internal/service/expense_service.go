package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	"github.com/expenseflow/expenseflow-api/internal/workflow"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type expenseRepository interface {
	Create(ctx context.Context, expense *models.Expense) error
	FindByID(ctx context.Context, companyID, id string) (*models.Expense, error)
	List(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseDetail, int, error)
	Update(ctx context.Context, expense *models.Expense) error
}

type expenseUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Managers(ctx context.Context, companyID string) ([]models.User, error)
}

type expenseStepRepository interface {
	CreateBatch(ctx context.Context, steps []models.ApprovalStep) error
	ListDetailByExpense(ctx context.Context, expenseID string) ([]models.ApprovalStepDetail, error)
}

type expenseCompanyRepository interface {
	FindByID(ctx context.Context, id string) (*models.Company, error)
}

type notifier interface {
	NotifyApprovalRequired(ctx context.Context, companyID, approverID, expenseID, employeeName string, amount float64, currency string)
}

type receiptStore interface {
	SaveStream(name string, r io.Reader) (string, error)
}

// ExpenseDetailResponse bundles the expense with its approval chain.
type ExpenseDetailResponse struct {
	models.ExpenseDetail
	ApprovalSteps []models.ApprovalStepDetail `json:"approval_steps"`
}

// ExpenseService owns the expense lifecycle from submission through chain
// construction. Decision handling lives in ApprovalService.
type ExpenseService struct {
	expenses  expenseRepository
	users     expenseUserRepository
	steps     expenseStepRepository
	companies expenseCompanyRepository
	currency  RateProvider
	notify    notifier
	receipts  receiptStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExpenseService constructs an ExpenseService.
func NewExpenseService(expenses expenseRepository, users expenseUserRepository, steps expenseStepRepository, companies expenseCompanyRepository, currency RateProvider, notify notifier, receipts receiptStore, validate *validator.Validate, logger *zap.Logger) *ExpenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExpenseService{
		expenses:  expenses,
		users:     users,
		steps:     steps,
		companies: companies,
		currency:  currency,
		notify:    notify,
		receipts:  receipts,
		validator: validate,
		logger:    logger,
	}
}

// Create submits an expense, converts its amount to the company currency and
// builds the approval chain. A company with no managers yields an empty
// chain, in which case the expense is approved on the spot.
func (s *ExpenseService) Create(ctx context.Context, companyID, employeeID string, req models.CreateExpenseRequest) (*models.Expense, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}

	employee, err := s.users.FindByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	if employee.CompanyID != companyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "employee belongs to another company")
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company")
	}

	converted, err := s.currency.Rate(ctx, req.Currency, company.Currency)
	if err != nil {
		return nil, err
	}

	department := req.Department
	if department == nil {
		department = employee.Department
	}

	expense := &models.Expense{
		CompanyID:               companyID,
		EmployeeID:              employeeID,
		Amount:                  req.Amount,
		Currency:                strings.ToUpper(req.Currency),
		AmountInCompanyCurrency: req.Amount * converted,
		Category:                req.Category,
		Description:             req.Description,
		ExpenseDate:             req.ExpenseDate,
		ReceiptURL:              req.ReceiptURL,
		ProjectID:               req.ProjectID,
		Department:              department,
		Status:                  models.ExpenseStatusPending,
	}
	if err := s.expenses.Create(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create expense")
	}

	managers, err := s.users.Managers(ctx, companyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load manager roster")
	}

	steps := workflow.BuildChain(expense, employee, managers)
	if len(steps) == 0 {
		// Nobody can approve, so the claim completes immediately.
		expense.Status = models.ExpenseStatusApproved
		if err := s.expenses.Update(ctx, expense); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to auto-approve expense")
		}
		s.logger.Info("expense auto-approved with empty chain",
			zap.String("expense_id", expense.ID),
			zap.String("company_id", companyID),
		)
		return expense, nil
	}

	if err := s.steps.CreateBatch(ctx, steps); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create approval chain")
	}

	expense.CurrentApproverStep = 1
	if err := s.expenses.Update(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to set approver pointer")
	}

	if s.notify != nil {
		for _, step := range steps {
			s.notify.NotifyApprovalRequired(ctx, companyID, step.ApproverID, expense.ID, employee.FullName, expense.AmountInCompanyCurrency, company.Currency)
		}
	}

	s.logger.Info("expense submitted",
		zap.String("expense_id", expense.ID),
		zap.String("employee_id", employeeID),
		zap.Int("chain_length", len(steps)),
	)
	return expense, nil
}

// Get returns an expense with its approval chain. Employees may only read
// their own expenses.
func (s *ExpenseService) Get(ctx context.Context, claims *models.JWTClaims, expenseID string) (*ExpenseDetailResponse, error) {
	expense, err := s.expenses.FindByID(ctx, claims.CompanyID, expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load expense")
	}

	if claims.Role == models.RoleEmployee && expense.EmployeeID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another employee's expense")
	}

	chainSteps, err := s.steps.ListDetailByExpense(ctx, expenseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load approval chain")
	}

	employee, err := s.users.FindByID(ctx, expense.EmployeeID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	detail := models.ExpenseDetail{Expense: *expense}
	if employee != nil {
		detail.EmployeeName = employee.FullName
	}

	return &ExpenseDetailResponse{ExpenseDetail: detail, ApprovalSteps: chainSteps}, nil
}

// List returns expenses visible to the caller. Employees are pinned to their
// own submissions; managers and admins see the whole company.
func (s *ExpenseService) List(ctx context.Context, claims *models.JWTClaims, filter models.ExpenseFilter) ([]models.ExpenseDetail, *models.Pagination, error) {
	filter.CompanyID = claims.CompanyID
	if claims.Role == models.RoleEmployee {
		filter.EmployeeID = claims.UserID
	}

	expenses, total, err := s.expenses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list expenses")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return expenses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// AttachReceipt stores an uploaded receipt and links it to the expense. The
// stored path is opaque to callers.
func (s *ExpenseService) AttachReceipt(ctx context.Context, claims *models.JWTClaims, expenseID, filename string, r io.Reader) (*models.Expense, error) {
	if s.receipts == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "receipt storage is not configured")
	}

	expense, err := s.expenses.FindByID(ctx, claims.CompanyID, expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load expense")
	}
	if expense.EmployeeID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitter can attach a receipt")
	}

	name := fmt.Sprintf("receipts/%s/%s%s", claims.CompanyID, uuid.NewString(), filepath.Ext(filename))
	stored, err := s.receipts.SaveStream(name, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store receipt")
	}

	expense.ReceiptURL = &stored
	expense.UpdatedAt = time.Now().UTC()
	if err := s.expenses.Update(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to link receipt")
	}
	return expense, nil
}
