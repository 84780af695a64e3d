package models

import "time"

// NotificationType enumerates the events surfaced to users.
type NotificationType string

const (
	NotificationApprovalRequired NotificationType = "approval_required"
	NotificationExpenseApproved  NotificationType = "expense_approved"
	NotificationExpenseRejected  NotificationType = "expense_rejected"
	NotificationBudgetExceeded   NotificationType = "budget_exceeded"
)

// Notification is a per-user inbox entry.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	CompanyID string           `db:"company_id" json:"company_id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Read      bool             `db:"read" json:"read"`
	RefID     *string          `db:"ref_id" json:"ref_id,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
