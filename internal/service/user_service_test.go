package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	userList   []models.User
	lastFilter models.UserFilter
	created    *models.User
	updated    *models.User
	deletedID  string
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastFilter = filter
	return m.userList, len(m.userList), nil
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	user.ID = "new-user"
	m.created = user
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	m.updated = user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, companyID, id string) error {
	m.deletedID = id
	return nil
}

func strPtr(s string) *string { return &s }

func TestCreateUserHashesPasswordAndLowercasesEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	user, err := svc.Create(context.Background(), "c1", CreateUserRequest{
		Email:    "New.Hire@Example.COM",
		Password: "secret123",
		FullName: "New Hire",
		Role:     models.RoleEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.hire@example.com", user.Email)
	assert.NotEqual(t, "secret123", user.PasswordHash)
	assert.True(t, user.Active)
	assert.Equal(t, "c1", repo.created.CompanyID)
}

func TestCreateUserRejectsForeignManager(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"mgr-other": {ID: "mgr-other", CompanyID: "c2", Role: models.RoleManager},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "c1", CreateUserRequest{
		Email:     "emp@example.com",
		Password:  "secret123",
		FullName:  "Emp",
		Role:      models.RoleEmployee,
		ManagerID: strPtr("mgr-other"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateUserRejectsEmployeeManager(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"emp-1": {ID: "emp-1", CompanyID: "c1", Role: models.RoleEmployee},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "c1", CreateUserRequest{
		Email:     "emp2@example.com",
		Password:  "secret123",
		FullName:  "Emp Two",
		Role:      models.RoleEmployee,
		ManagerID: strPtr("emp-1"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGetUserHidesOtherCompanies(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", CompanyID: "c2", Role: models.RoleEmployee},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), "c1", "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateUserRejectsSelfManagement(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", CompanyID: "c1", Role: models.RoleManager},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "c1", "u1", UpdateUserRequest{
		FullName:  "Loop",
		Role:      models.RoleManager,
		ManagerID: strPtr("u1"),
		Active:    true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListUsersPinsCompany(t *testing.T) {
	repo := &mockUserRepo{userList: []models.User{{ID: "u1"}, {ID: "u2"}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	users, pagination, err := svc.List(context.Background(), "c1", models.UserFilter{CompanyID: "ignored"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "c1", repo.lastFilter.CompanyID)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestDeleteUserDeactivates(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", CompanyID: "c1", Role: models.RoleEmployee},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "c1", "u1"))
	assert.Equal(t, "u1", repo.deletedID)
}
