package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type mockExpenseRepo struct {
	created *models.Expense
	updated *models.Expense
	byID    *models.Expense
	list    []models.ExpenseDetail
	filter  models.ExpenseFilter
}

func (m *mockExpenseRepo) Create(ctx context.Context, expense *models.Expense) error {
	expense.ID = "exp-1"
	m.created = expense
	return nil
}

func (m *mockExpenseRepo) FindByID(ctx context.Context, companyID, id string) (*models.Expense, error) {
	if m.byID == nil || m.byID.ID != id || m.byID.CompanyID != companyID {
		return nil, sql.ErrNoRows
	}
	return m.byID, nil
}

func (m *mockExpenseRepo) List(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseDetail, int, error) {
	m.filter = filter
	return m.list, len(m.list), nil
}

func (m *mockExpenseRepo) Update(ctx context.Context, expense *models.Expense) error {
	m.updated = expense
	return nil
}

type mockExpenseUserRepo struct {
	users    map[string]*models.User
	managers []models.User
}

func (m *mockExpenseUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockExpenseUserRepo) Managers(ctx context.Context, companyID string) ([]models.User, error) {
	return m.managers, nil
}

type mockStepRepo struct {
	created []models.ApprovalStep
	details []models.ApprovalStepDetail
}

func (m *mockStepRepo) CreateBatch(ctx context.Context, steps []models.ApprovalStep) error {
	m.created = steps
	return nil
}

func (m *mockStepRepo) ListDetailByExpense(ctx context.Context, expenseID string) ([]models.ApprovalStepDetail, error) {
	return m.details, nil
}

type mockExpenseCompanyRepo struct {
	company *models.Company
}

func (m *mockExpenseCompanyRepo) FindByID(ctx context.Context, id string) (*models.Company, error) {
	if m.company == nil {
		return nil, sql.ErrNoRows
	}
	return m.company, nil
}

type fixedRateProvider struct {
	rate float64
}

func (f fixedRateProvider) Rate(ctx context.Context, from, to string) (float64, error) {
	return f.rate, nil
}

type recordingNotifier struct {
	approvers []string
}

func (r *recordingNotifier) NotifyApprovalRequired(ctx context.Context, companyID, approverID, expenseID, employeeName string, amount float64, currency string) {
	r.approvers = append(r.approvers, approverID)
}

type memoryReceiptStore struct {
	saved map[string][]byte
}

func (m *memoryReceiptStore) SaveStream(name string, r io.Reader) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.saved[name] = data
	return name, nil
}

func managerUser(id string, createdAt time.Time) models.User {
	return models.User{ID: id, CompanyID: "c1", Role: models.RoleManager, Active: true, CreatedAt: createdAt}
}

func validExpenseRequest() models.CreateExpenseRequest {
	return models.CreateExpenseRequest{
		Amount:      120,
		Currency:    "USD",
		Category:    "travel",
		Description: "Client visit",
		ExpenseDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newExpenseService(expenses *mockExpenseRepo, users *mockExpenseUserRepo, steps *mockStepRepo, companies *mockExpenseCompanyRepo, notify *recordingNotifier, receipts *memoryReceiptStore) *ExpenseService {
	var n notifier
	if notify != nil {
		n = notify
	}
	var r receiptStore
	if receipts != nil {
		r = receipts
	}
	return NewExpenseService(expenses, users, steps, companies, fixedRateProvider{rate: 0.5}, n, r, validator.New(), zap.NewNop())
}

func TestCreateExpenseBuildsChain(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	managerID := "mgr-1"
	employee := &models.User{ID: "emp-1", CompanyID: "c1", FullName: "Eve Employee", Role: models.RoleEmployee, ManagerID: &managerID, IsManagerApprover: true, Active: true}
	users := &mockExpenseUserRepo{
		users: map[string]*models.User{"emp-1": employee},
		managers: []models.User{
			managerUser("mgr-1", base),
			managerUser("mgr-2", base.Add(time.Hour)),
		},
	}
	expenses := &mockExpenseRepo{}
	steps := &mockStepRepo{}
	notify := &recordingNotifier{}
	svc := newExpenseService(expenses, users, steps, &mockExpenseCompanyRepo{company: &models.Company{ID: "c1", Currency: "EUR"}}, notify, nil)

	expense, err := svc.Create(context.Background(), "c1", "emp-1", validExpenseRequest())
	require.NoError(t, err)

	assert.Equal(t, models.ExpenseStatusPending, expense.Status)
	assert.Equal(t, 1, expense.CurrentApproverStep)
	assert.InDelta(t, 60.0, expense.AmountInCompanyCurrency, 0.001)

	require.Len(t, steps.created, 2)
	assert.Equal(t, "mgr-1", steps.created[0].ApproverID)
	assert.Equal(t, 1, steps.created[0].StepOrder)
	assert.Equal(t, "mgr-2", steps.created[1].ApproverID)
	assert.ElementsMatch(t, []string{"mgr-1", "mgr-2"}, notify.approvers)
}

func TestCreateExpenseAutoApprovesWithoutManagers(t *testing.T) {
	employee := &models.User{ID: "emp-1", CompanyID: "c1", Role: models.RoleEmployee, Active: true}
	users := &mockExpenseUserRepo{users: map[string]*models.User{"emp-1": employee}}
	expenses := &mockExpenseRepo{}
	steps := &mockStepRepo{}
	svc := newExpenseService(expenses, users, steps, &mockExpenseCompanyRepo{company: &models.Company{ID: "c1", Currency: "USD"}}, nil, nil)

	expense, err := svc.Create(context.Background(), "c1", "emp-1", validExpenseRequest())
	require.NoError(t, err)

	assert.Equal(t, models.ExpenseStatusApproved, expense.Status)
	assert.Empty(t, steps.created)
	require.NotNil(t, expenses.updated)
	assert.Equal(t, models.ExpenseStatusApproved, expenses.updated.Status)
}

func TestCreateExpenseCrossCompanyEmployee(t *testing.T) {
	employee := &models.User{ID: "emp-1", CompanyID: "other", Role: models.RoleEmployee, Active: true}
	users := &mockExpenseUserRepo{users: map[string]*models.User{"emp-1": employee}}
	svc := newExpenseService(&mockExpenseRepo{}, users, &mockStepRepo{}, &mockExpenseCompanyRepo{company: &models.Company{ID: "c1", Currency: "USD"}}, nil, nil)

	_, err := svc.Create(context.Background(), "c1", "emp-1", validExpenseRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateExpenseRejectsInvalidPayload(t *testing.T) {
	svc := newExpenseService(&mockExpenseRepo{}, &mockExpenseUserRepo{}, &mockStepRepo{}, &mockExpenseCompanyRepo{}, nil, nil)

	req := validExpenseRequest()
	req.Amount = 0
	_, err := svc.Create(context.Background(), "c1", "emp-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGetExpenseEmployeeScope(t *testing.T) {
	expenses := &mockExpenseRepo{byID: &models.Expense{ID: "exp-1", CompanyID: "c1", EmployeeID: "emp-1", Status: models.ExpenseStatusPending}}
	users := &mockExpenseUserRepo{users: map[string]*models.User{"emp-1": {ID: "emp-1", FullName: "Eve Employee"}}}
	svc := newExpenseService(expenses, users, &mockStepRepo{}, &mockExpenseCompanyRepo{}, nil, nil)

	claims := &models.JWTClaims{UserID: "emp-2", CompanyID: "c1", Role: models.RoleEmployee}
	_, err := svc.Get(context.Background(), claims, "exp-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	claims.UserID = "emp-1"
	detail, err := svc.Get(context.Background(), claims, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "Eve Employee", detail.EmployeeName)
}

func TestListExpensesPinsEmployeeFilter(t *testing.T) {
	expenses := &mockExpenseRepo{}
	svc := newExpenseService(expenses, &mockExpenseUserRepo{}, &mockStepRepo{}, &mockExpenseCompanyRepo{}, nil, nil)

	claims := &models.JWTClaims{UserID: "emp-1", CompanyID: "c1", Role: models.RoleEmployee}
	_, page, err := svc.List(context.Background(), claims, models.ExpenseFilter{EmployeeID: "someone-else"})
	require.NoError(t, err)

	assert.Equal(t, "c1", expenses.filter.CompanyID)
	assert.Equal(t, "emp-1", expenses.filter.EmployeeID)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
}

func TestAttachReceipt(t *testing.T) {
	expenses := &mockExpenseRepo{byID: &models.Expense{ID: "exp-1", CompanyID: "c1", EmployeeID: "emp-1", Status: models.ExpenseStatusPending}}
	receipts := &memoryReceiptStore{}
	svc := newExpenseService(expenses, &mockExpenseUserRepo{}, &mockStepRepo{}, &mockExpenseCompanyRepo{}, nil, receipts)

	claims := &models.JWTClaims{UserID: "emp-1", CompanyID: "c1", Role: models.RoleEmployee}
	expense, err := svc.AttachReceipt(context.Background(), claims, "exp-1", "receipt.pdf", bytes.NewBufferString("%PDF-1.4"))
	require.NoError(t, err)

	require.NotNil(t, expense.ReceiptURL)
	assert.True(t, strings.HasPrefix(*expense.ReceiptURL, "receipts/c1/"))
	assert.True(t, strings.HasSuffix(*expense.ReceiptURL, ".pdf"))
	assert.Len(t, receipts.saved, 1)
}

func TestAttachReceiptOnlySubmitter(t *testing.T) {
	expenses := &mockExpenseRepo{byID: &models.Expense{ID: "exp-1", CompanyID: "c1", EmployeeID: "emp-1", Status: models.ExpenseStatusPending}}
	svc := newExpenseService(expenses, &mockExpenseUserRepo{}, &mockStepRepo{}, &mockExpenseCompanyRepo{}, nil, &memoryReceiptStore{})

	claims := &models.JWTClaims{UserID: "emp-2", CompanyID: "c1", Role: models.RoleEmployee}
	_, err := svc.AttachReceipt(context.Background(), claims, "exp-1", "receipt.png", bytes.NewBufferString("png"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
