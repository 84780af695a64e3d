package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationService writes and reads per-user inbox entries. Notification
// failures never fail the triggering operation; they are logged and dropped.
type NotificationService struct {
	repo   notificationRepository
	logger *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// NotifyApprovalRequired tells an approver a new expense awaits them.
func (s *NotificationService) NotifyApprovalRequired(ctx context.Context, companyID, approverID, expenseID, employeeName string, amount float64, currency string) {
	n := &models.Notification{
		CompanyID: companyID,
		UserID:    approverID,
		Type:      models.NotificationApprovalRequired,
		Title:     "Expense awaiting your approval",
		Message:   fmt.Sprintf("%s submitted an expense of %.2f %s", employeeName, amount, currency),
		RefID:     &expenseID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("failed to create approval notification", zap.Error(err), zap.String("approver_id", approverID))
	}
}

// NotifyExpenseDecided tells the submitter their expense reached a verdict.
func (s *NotificationService) NotifyExpenseDecided(ctx context.Context, companyID, employeeID, expenseID string, approved bool, comment string) {
	n := &models.Notification{
		CompanyID: companyID,
		UserID:    employeeID,
		Type:      models.NotificationExpenseApproved,
		Title:     "Expense approved",
		Message:   "Your expense was approved",
		RefID:     &expenseID,
	}
	if !approved {
		n.Type = models.NotificationExpenseRejected
		n.Title = "Expense rejected"
		n.Message = "Your expense was rejected"
		if comment != "" {
			n.Message = fmt.Sprintf("Your expense was rejected: %s", comment)
		}
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("failed to create decision notification", zap.Error(err), zap.String("employee_id", employeeID))
	}
}

// NotifyBudgetExceeded warns the given users that a budget went over its cap.
func (s *NotificationService) NotifyBudgetExceeded(ctx context.Context, companyID string, userIDs []string, budget *models.Budget) {
	if len(userIDs) == 0 {
		return
	}
	notifications := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		notifications = append(notifications, models.Notification{
			CompanyID: companyID,
			UserID:    userID,
			Type:      models.NotificationBudgetExceeded,
			Title:     "Budget exceeded",
			Message:   fmt.Sprintf("Budget %q is over its cap: %.2f spent of %.2f", budget.Name, budget.Spent, budget.Amount),
			RefID:     &budget.ID,
		})
	}
	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		s.logger.Warn("failed to create budget notifications", zap.Error(err), zap.String("budget_id", budget.ID))
	}
}

// List returns the caller's notifications.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list notifications")
	}
	return notifications, nil
}

// UnreadCount returns the caller's unread total.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead clears the caller's unread notifications.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to mark notifications read")
	}
	return nil
}
