package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type dashboardExpenseRepository interface {
	Summary(ctx context.Context, companyID string) (*models.ExpenseSummary, error)
}

type dashboardStepRepository interface {
	CountPendingForApprover(ctx context.Context, companyID, approverID string) (int, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// DashboardService composes the company expense summary. Company-wide
// aggregates cache per company; the caller's pending-approval count is
// resolved fresh on every request.
type DashboardService struct {
	expenses dashboardExpenseRepository
	steps    dashboardStepRepository
	cache    dashboardCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(expenses dashboardExpenseRepository, steps dashboardStepRepository, cache dashboardCache, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{expenses: expenses, steps: steps, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Summary returns the dashboard payload for the caller's company.
func (s *DashboardService) Summary(ctx context.Context, claims *models.JWTClaims) (*models.ExpenseSummary, error) {
	cacheKey := fmt.Sprintf("dashboard:%s:summary", claims.CompanyID)

	var summary *models.ExpenseSummary
	if s.cache != nil {
		var cached models.ExpenseSummary
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			summary = &cached
		}
	}

	if summary == nil {
		fresh, err := s.expenses.Summary(ctx, claims.CompanyID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to build dashboard summary")
		}
		summary = fresh
		if s.cache != nil {
			if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
				s.logger.Warn("failed to cache dashboard summary", zap.Error(err))
			}
		}
	}

	if claims.Role != models.RoleEmployee {
		awaiting, err := s.steps.CountPendingForApprover(ctx, claims.CompanyID, claims.UserID)
		if err != nil {
			s.logger.Warn("failed to count pending approvals", zap.Error(err))
		} else {
			summary.AwaitingMyAction = awaiting
		}
	}

	return summary, nil
}
