package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	"github.com/expenseflow/expenseflow-api/internal/workflow"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type approvalStepRepository interface {
	PendingForApprover(ctx context.Context, companyID, approverID string, page, pageSize int) ([]models.ExpenseDetail, int, error)
	ListDetailByExpense(ctx context.Context, expenseID string) ([]models.ApprovalStepDetail, error)
}

type decisionEngine interface {
	RecordDecision(ctx context.Context, expenseID, approverID string, decision models.Decision, comment string) (*workflow.DecisionResult, error)
}

type decisionNotifier interface {
	NotifyExpenseDecided(ctx context.Context, companyID, employeeID, expenseID string, approved bool, comment string)
}

type budgetAccruer interface {
	AccrueApproved(ctx context.Context, expense *models.Expense)
}

type dashboardInvalidator interface {
	Invalidate(ctx context.Context, companyID string)
}

// ApprovalService exposes the approver-facing workflow operations: the
// pending queue, chain inspection and decision recording. Post-decision side
// effects (notifications, budget accrual, cache invalidation) run here so the
// engine stays pure persistence-and-rules.
type ApprovalService struct {
	steps     approvalStepRepository
	engine    decisionEngine
	notify    decisionNotifier
	budgets   budgetAccruer
	dashboard dashboardInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(steps approvalStepRepository, engine decisionEngine, notify decisionNotifier, budgets budgetAccruer, dashboard dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApprovalService{
		steps:     steps,
		engine:    engine,
		notify:    notify,
		budgets:   budgets,
		dashboard: dashboard,
		validator: validate,
		logger:    logger,
	}
}

// Pending returns expenses awaiting the caller's decision.
func (s *ApprovalService) Pending(ctx context.Context, claims *models.JWTClaims, page, pageSize int) ([]models.ExpenseDetail, *models.Pagination, error) {
	expenses, total, err := s.steps.PendingForApprover(ctx, claims.CompanyID, claims.UserID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list pending approvals")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return expenses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Chain returns the approval chain of an expense. Admins see every step;
// managers see only their own.
func (s *ApprovalService) Chain(ctx context.Context, claims *models.JWTClaims, expenseID string) ([]models.ApprovalStepDetail, error) {
	chain, err := s.steps.ListDetailByExpense(ctx, expenseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load approval chain")
	}
	if len(chain) > 0 && chain[0].CompanyID != claims.CompanyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
	}
	if claims.Role == models.RoleAdmin {
		return chain, nil
	}
	own := make([]models.ApprovalStepDetail, 0, len(chain))
	for _, step := range chain {
		if step.ApproverID == claims.UserID {
			own = append(own, step)
		}
	}
	return own, nil
}

// Decide records the caller's decision and runs the follow-up effects when
// the expense reaches a terminal state.
func (s *ApprovalService) Decide(ctx context.Context, claims *models.JWTClaims, expenseID string, req models.DecisionRequest) (*workflow.DecisionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	if req.Decision == models.DecisionReject && req.Comment == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection requires a comment")
	}

	result, err := s.engine.RecordDecision(ctx, expenseID, claims.UserID, req.Decision, req.Comment)
	if err != nil {
		return nil, err
	}

	if result.Expense.Status.Terminal() {
		if s.notify != nil {
			s.notify.NotifyExpenseDecided(ctx, claims.CompanyID, result.Expense.EmployeeID, expenseID,
				result.Expense.Status == models.ExpenseStatusApproved, req.Comment)
		}
		if result.Expense.Status == models.ExpenseStatusApproved && s.budgets != nil {
			s.budgets.AccrueApproved(ctx, result.Expense)
		}
	}
	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx, claims.CompanyID)
	}

	return result, nil
}

// DashboardCacheInvalidator invalidates cached dashboard payloads for a
// company after its numbers change.
type DashboardCacheInvalidator struct {
	cache  dashboardCache
	logger *zap.Logger
}

// NewDashboardCacheInvalidator constructs a DashboardCacheInvalidator.
func NewDashboardCacheInvalidator(cache dashboardCache, logger *zap.Logger) *DashboardCacheInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardCacheInvalidator{cache: cache, logger: logger}
}

// Invalidate drops every cached dashboard entry of the company.
func (i *DashboardCacheInvalidator) Invalidate(ctx context.Context, companyID string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.DeleteByPattern(ctx, fmt.Sprintf("dashboard:%s:*", companyID)); err != nil {
		i.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
