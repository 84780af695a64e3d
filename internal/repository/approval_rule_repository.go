package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/expenseflow/expenseflow-api/internal/models"
)

const ruleColumns = `id, company_id, name, rule_type, percentage_threshold, specific_approver_id, amount_threshold, categories, is_active, created_at, updated_at`

// ApprovalRuleRepository manages persistence for approval rules.
type ApprovalRuleRepository struct {
	db *sqlx.DB
}

// NewApprovalRuleRepository constructs an ApprovalRuleRepository.
func NewApprovalRuleRepository(db *sqlx.DB) *ApprovalRuleRepository {
	return &ApprovalRuleRepository{db: db}
}

// Create inserts a new approval rule.
func (r *ApprovalRuleRepository) Create(ctx context.Context, rule *models.ApprovalRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	const query = `INSERT INTO approval_rules (id, company_id, name, rule_type, percentage_threshold, specific_approver_id, amount_threshold, categories, is_active, created_at, updated_at)
        VALUES (:id, :company_id, :name, :rule_type, :percentage_threshold, :specific_approver_id, :amount_threshold, :categories, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create approval rule: %w", err)
	}
	return nil
}

// FindByID returns a rule scoped to its company.
func (r *ApprovalRuleRepository) FindByID(ctx context.Context, companyID, id string) (*models.ApprovalRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_rules WHERE id = $1 AND company_id = $2 LIMIT 1`, ruleColumns)
	var rule models.ApprovalRule
	if err := r.db.GetContext(ctx, &rule, query, id, companyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find approval rule by id: %w", err)
	}
	return &rule, nil
}

// List returns all rules of a company in creation order.
func (r *ApprovalRuleRepository) List(ctx context.Context, companyID string) ([]models.ApprovalRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_rules WHERE company_id = $1 ORDER BY created_at, id`, ruleColumns)
	var rules []models.ApprovalRule
	if err := r.db.SelectContext(ctx, &rules, query, companyID); err != nil {
		return nil, fmt.Errorf("list approval rules: %w", err)
	}
	return rules, nil
}

// ListActive returns the active rules of a company in creation order, the
// order in which the evaluator consults them.
func (r *ApprovalRuleRepository) ListActive(ctx context.Context, companyID string) ([]models.ApprovalRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_rules WHERE company_id = $1 AND is_active = TRUE ORDER BY created_at, id`, ruleColumns)
	var rules []models.ApprovalRule
	if err := r.db.SelectContext(ctx, &rules, query, companyID); err != nil {
		return nil, fmt.Errorf("list active approval rules: %w", err)
	}
	return rules, nil
}

// Update updates mutable fields of a rule.
func (r *ApprovalRuleRepository) Update(ctx context.Context, rule *models.ApprovalRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE approval_rules SET name = :name, rule_type = :rule_type, percentage_threshold = :percentage_threshold, specific_approver_id = :specific_approver_id, amount_threshold = :amount_threshold, categories = :categories, is_active = :is_active, updated_at = :updated_at WHERE id = :id AND company_id = :company_id`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("update approval rule: %w", err)
	}
	return nil
}

// Delete removes a rule. In-flight expenses are unaffected: rules are
// consulted only at decision time.
func (r *ApprovalRuleRepository) Delete(ctx context.Context, companyID, id string) error {
	const query = `DELETE FROM approval_rules WHERE id = $1 AND company_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, companyID); err != nil {
		return fmt.Errorf("delete approval rule: %w", err)
	}
	return nil
}
