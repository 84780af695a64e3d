package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type mockAuthUserRepo struct {
	userByEmail      *models.User
	userByID         *models.User
	created          *models.User
	refreshTokens    map[string]*models.RefreshToken
	createRefreshErr error
	lastLoginUpdated bool
	passwordUpdated  string
	revokedUserIDs   []string
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail != nil {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "new-user"
	m.created = user
	return nil
}

func (m *mockAuthUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordUpdated = passwordHash
	return nil
}

func (m *mockAuthUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUserIDs = append(m.revokedUserIDs, userID)
	return nil
}

func (m *mockAuthUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

type mockCompanyRepo struct {
	created *models.Company
	company *models.Company
}

func (m *mockCompanyRepo) Create(ctx context.Context, company *models.Company) error {
	company.ID = "new-company"
	m.created = company
	return nil
}

func (m *mockCompanyRepo) FindByID(ctx context.Context, id string) (*models.Company, error) {
	if m.company == nil {
		return nil, sql.ErrNoRows
	}
	return m.company, nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: time.Hour * 24,
		Issuer:             "expenseflow-test",
	}
}

func TestSignupCreatesCompanyAndAdmin(t *testing.T) {
	users := &mockAuthUserRepo{}
	companies := &mockCompanyRepo{}
	svc := NewAuthService(users, companies, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "Founder@Example.com",
		Password: "password",
		FullName: "Ada Founder",
		Country:  "US",
		Currency: "usd",
	})
	require.NoError(t, err)

	require.NotNil(t, companies.created)
	assert.Equal(t, "USD", companies.created.Currency)
	require.NotNil(t, users.created)
	assert.Equal(t, models.RoleAdmin, users.created.Role)
	assert.Equal(t, "founder@example.com", users.created.Email)
	assert.Equal(t, "new-company", users.created.CompanyID)
	assert.True(t, users.created.Active)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "new-company", res.User.CompanyID)
}

func TestSignupDuplicateEmail(t *testing.T) {
	users := &mockAuthUserRepo{userByEmail: &models.User{ID: "u1", Email: "taken@example.com"}}
	svc := NewAuthService(users, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "taken@example.com",
		Password: "password",
		FullName: "Someone",
		Country:  "US",
		Currency: "USD",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLoginSuccess(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	users := &mockAuthUserRepo{userByEmail: &models.User{
		ID: "u1", CompanyID: "c1", Email: "user@example.com",
		PasswordHash: string(hash), Active: true, Role: models.RoleEmployee,
	}}
	companies := &mockCompanyRepo{company: &models.Company{ID: "c1", Currency: "EUR"}}
	svc := NewAuthService(users, companies, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, users.lastLoginUpdated)
	require.NotNil(t, res.Company)
	assert.Equal(t, "EUR", res.Company.Currency)
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	users := &mockAuthUserRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: true}}
	svc := NewAuthService(users, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	users := &mockAuthUserRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: false}}
	svc := NewAuthService(users, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	user := &models.User{ID: "u1", CompanyID: "c1", Email: "user@example.com", Active: true, Role: models.RoleManager}
	users := &mockAuthUserRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"old-token": {ID: "rt1", UserID: "u1", Token: "old-token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := NewAuthService(users, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "old-token", res.RefreshToken)
	assert.True(t, users.refreshTokens["old-token"].Revoked)
}

func TestRefreshTokenExpired(t *testing.T) {
	users := &mockAuthUserRepo{refreshTokens: map[string]*models.RefreshToken{
		"stale": {ID: "rt1", UserID: "u1", Token: "stale", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	svc := NewAuthService(users, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.DefaultCost)
	users := &mockAuthUserRepo{userByID: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}
	svc := NewAuthService(users, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old-pass", NewPassword: "new-password"})
	require.NoError(t, err)
	assert.NotEmpty(t, users.passwordUpdated)
	assert.NotEqual(t, string(oldHash), users.passwordUpdated)
	assert.Contains(t, users.revokedUserIDs, "u1")
}

func TestChangePasswordWrongOld(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.DefaultCost)
	users := &mockAuthUserRepo{userByID: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}
	svc := NewAuthService(users, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "new-password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(&mockAuthUserRepo{}, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())
	user := &models.User{ID: "u1", CompanyID: "c1", Email: "user@example.com", Role: models.RoleAdmin}

	token, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "c1", claims.CompanyID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewAuthService(&mockAuthUserRepo{}, &mockCompanyRepo{}, validator.New(), zap.NewNop(), testAuthConfig())
	token, err := issuer.generateAccessToken(&models.User{ID: "u1"})
	require.NoError(t, err)

	cfg := testAuthConfig()
	cfg.AccessTokenSecret = "other-secret"
	verifier := NewAuthService(&mockAuthUserRepo{}, &mockCompanyRepo{}, validator.New(), zap.NewNop(), cfg)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
