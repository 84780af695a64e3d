package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, companyID, id string) error
}

// CreateUserRequest adds a user to the caller's company.
type CreateUserRequest struct {
	Email             string          `json:"email" validate:"required,email"`
	Password          string          `json:"password" validate:"required,min=6"`
	FullName          string          `json:"full_name" validate:"required"`
	Role              models.UserRole `json:"role" validate:"required,oneof=ADMIN MANAGER EMPLOYEE"`
	ManagerID         *string         `json:"manager_id,omitempty"`
	IsManagerApprover bool            `json:"is_manager_approver"`
	Department        *string         `json:"department,omitempty"`
}

// UpdateUserRequest mutates role, reporting line and status.
type UpdateUserRequest struct {
	FullName          string          `json:"full_name" validate:"required"`
	Role              models.UserRole `json:"role" validate:"required,oneof=ADMIN MANAGER EMPLOYEE"`
	ManagerID         *string         `json:"manager_id,omitempty"`
	IsManagerApprover bool            `json:"is_manager_approver"`
	Department        *string         `json:"department,omitempty"`
	Active            bool            `json:"active"`
}

// UserService provides user management within one company.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// Create adds a user to the company. The manager reference, when present,
// must point at a manager-roled user of the same company.
func (s *UserService) Create(ctx context.Context, companyID string, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, strings.ToLower(req.Email)); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	if err := s.checkManager(ctx, companyID, req.ManagerID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		CompanyID:         companyID,
		Email:             strings.ToLower(req.Email),
		PasswordHash:      string(hash),
		FullName:          req.FullName,
		Role:              req.Role,
		ManagerID:         req.ManagerID,
		IsManagerApprover: req.IsManagerApprover,
		Department:        req.Department,
		Active:            true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create user")
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("company_id", companyID),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// List returns the company's users.
func (s *UserService) List(ctx context.Context, companyID string, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	filter.CompanyID = companyID
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one user of the company.
func (s *UserService) Get(ctx context.Context, companyID, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load user")
	}
	if user.CompanyID != companyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// Update mutates a user's profile, role and reporting line.
func (s *UserService) Update(ctx context.Context, companyID, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	if req.ManagerID != nil && *req.ManagerID == id {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a user cannot be their own manager")
	}
	if err := s.checkManager(ctx, companyID, req.ManagerID); err != nil {
		return nil, err
	}

	user.FullName = req.FullName
	user.Role = req.Role
	user.ManagerID = req.ManagerID
	user.IsManagerApprover = req.IsManagerApprover
	user.Department = req.Department
	user.Active = req.Active
	user.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update user")
	}
	return user, nil
}

// Delete deactivates a user. Their settled approval steps remain on record.
func (s *UserService) Delete(ctx context.Context, companyID, id string) error {
	if _, err := s.Get(ctx, companyID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete user")
	}
	return nil
}

func (s *UserService) checkManager(ctx context.Context, companyID string, managerID *string) error {
	if managerID == nil || *managerID == "" {
		return nil
	}
	manager, err := s.repo.FindByID(ctx, *managerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "manager does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify manager")
	}
	if manager.CompanyID != companyID {
		return appErrors.Clone(appErrors.ErrValidation, "manager belongs to another company")
	}
	if manager.Role != models.RoleManager && manager.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, "manager must hold the manager or admin role")
	}
	return nil
}
