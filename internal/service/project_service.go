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

type projectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, companyID, id string) (*models.Project, error)
	List(ctx context.Context, companyID string) ([]models.Project, error)
	Spend(ctx context.Context, companyID, projectID string) (float64, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, companyID, id string) error
}

// ProjectRequest creates or updates a project.
type ProjectRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description *string  `json:"description,omitempty"`
	Budget      *float64 `json:"budget,omitempty" validate:"omitempty,gt=0"`
}

// ProjectDetail is a project with its accrued approved spend.
type ProjectDetail struct {
	models.Project
	Spent float64 `json:"spent"`
}

// ProjectService manages client projects and their spend rollups.
type ProjectService struct {
	repo      projectRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProjectService constructs a ProjectService.
func NewProjectService(repo projectRepository, validate *validator.Validate, logger *zap.Logger) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProjectService{repo: repo, validator: validate, logger: logger}
}

// Create stores a new project.
func (s *ProjectService) Create(ctx context.Context, companyID string, req ProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	project := &models.Project{
		CompanyID:   companyID,
		Name:        req.Name,
		Description: req.Description,
		Budget:      req.Budget,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create project")
	}
	return project, nil
}

// List returns the company's projects.
func (s *ProjectService) List(ctx context.Context, companyID string) ([]models.Project, error) {
	projects, err := s.repo.List(ctx, companyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list projects")
	}
	return projects, nil
}

// Get returns one project with its approved spend.
func (s *ProjectService) Get(ctx context.Context, companyID, id string) (*ProjectDetail, error) {
	project, err := s.repo.FindByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load project")
	}

	spent, err := s.repo.Spend(ctx, companyID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load project spend")
	}
	return &ProjectDetail{Project: *project, Spent: spent}, nil
}

// Update stores project changes.
func (s *ProjectService) Update(ctx context.Context, companyID, id string, req ProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	detail, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	project := detail.Project
	project.Name = req.Name
	project.Description = req.Description
	project.Budget = req.Budget
	if err := s.repo.Update(ctx, &project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update project")
	}
	return &project, nil
}

// Delete deactivates a project.
func (s *ProjectService) Delete(ctx context.Context, companyID, id string) error {
	if _, err := s.Get(ctx, companyID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete project")
	}
	return nil
}
