package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type ruleRepository interface {
	Create(ctx context.Context, rule *models.ApprovalRule) error
	FindByID(ctx context.Context, companyID, id string) (*models.ApprovalRule, error)
	List(ctx context.Context, companyID string) ([]models.ApprovalRule, error)
	Update(ctx context.Context, rule *models.ApprovalRule) error
	Delete(ctx context.Context, companyID, id string) error
}

type ruleUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// RuleService manages a company's approval rules. Variant-specific field
// requirements are enforced before anything reaches the database, and the
// named specific approver must be a user of the same company.
type RuleService struct {
	rules     ruleRepository
	users     ruleUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRuleService constructs a RuleService.
func NewRuleService(rules ruleRepository, users ruleUserRepository, validate *validator.Validate, logger *zap.Logger) *RuleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RuleService{rules: rules, users: users, validator: validate, logger: logger}
}

// Create validates and stores a new rule.
func (s *RuleService) Create(ctx context.Context, companyID string, rule *models.ApprovalRule) (*models.ApprovalRule, error) {
	rule.CompanyID = companyID
	if err := s.prepare(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create rule")
	}
	s.logger.Info("approval rule created",
		zap.String("rule_id", rule.ID),
		zap.String("company_id", companyID),
		zap.String("rule_type", string(rule.RuleType)),
	)
	return rule, nil
}

// List returns all rules of the company.
func (s *RuleService) List(ctx context.Context, companyID string) ([]models.ApprovalRule, error) {
	rules, err := s.rules.List(ctx, companyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list rules")
	}
	return rules, nil
}

// Get returns one rule.
func (s *RuleService) Get(ctx context.Context, companyID, id string) (*models.ApprovalRule, error) {
	rule, err := s.rules.FindByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load rule")
	}
	return rule, nil
}

// Update validates and stores rule changes. In-flight expenses pick up the
// new configuration on their next decision.
func (s *RuleService) Update(ctx context.Context, companyID, id string, rule *models.ApprovalRule) (*models.ApprovalRule, error) {
	existing, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	rule.ID = existing.ID
	rule.CompanyID = companyID
	rule.CreatedAt = existing.CreatedAt
	if err := s.prepare(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update rule")
	}
	return rule, nil
}

// Delete removes a rule.
func (s *RuleService) Delete(ctx context.Context, companyID, id string) error {
	if _, err := s.Get(ctx, companyID, id); err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, companyID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete rule")
	}
	return nil
}

func (s *RuleService) prepare(ctx context.Context, rule *models.ApprovalRule) error {
	if rule.Name == "" {
		return appErrors.Clone(appErrors.ErrInvalidRule, "rule name is required")
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	if rule.SpecificApproverID != nil && *rule.SpecificApproverID != "" {
		approver, err := s.users.FindByID(ctx, *rule.SpecificApproverID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidRule, "specific approver does not exist")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify approver")
		}
		if approver.CompanyID != rule.CompanyID {
			return appErrors.Clone(appErrors.ErrInvalidRule, "specific approver belongs to another company")
		}
	}
	return nil
}
