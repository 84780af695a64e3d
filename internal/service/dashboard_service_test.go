package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

type mockDashboardExpenseRepo struct {
	summary *models.ExpenseSummary
	calls   int
}

func (m *mockDashboardExpenseRepo) Summary(ctx context.Context, companyID string) (*models.ExpenseSummary, error) {
	m.calls++
	out := *m.summary
	return &out, nil
}

type mockDashboardStepRepo struct {
	pending int
}

func (m *mockDashboardStepRepo) CountPendingForApprover(ctx context.Context, companyID, approverID string) (int, error) {
	return m.pending, nil
}

type memoryDashboardCache struct {
	values  map[string][]byte
	deleted []string
}

func (m *memoryDashboardCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := m.values[key]
	if !ok {
		return appErrors.Clone(appErrors.ErrCacheMiss, "")
	}
	return json.Unmarshal(data, dest)
}

func (m *memoryDashboardCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = data
	return nil
}

func (m *memoryDashboardCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	for key := range m.values {
		delete(m.values, key)
	}
	return nil
}

func TestSummaryCachesCompanyAggregates(t *testing.T) {
	expenses := &mockDashboardExpenseRepo{summary: &models.ExpenseSummary{TotalCount: 12, PendingCount: 3}}
	cache := &memoryDashboardCache{}
	svc := NewDashboardService(expenses, &mockDashboardStepRepo{}, cache, time.Minute, zap.NewNop())

	claims := &models.JWTClaims{UserID: "emp-1", CompanyID: "c1", Role: models.RoleEmployee}

	first, err := svc.Summary(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, 12, first.TotalCount)
	assert.Equal(t, 1, expenses.calls)

	second, err := svc.Summary(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, 12, second.TotalCount)
	assert.Equal(t, 1, expenses.calls)
}

func TestSummaryAddsPendingCountForApprovers(t *testing.T) {
	expenses := &mockDashboardExpenseRepo{summary: &models.ExpenseSummary{TotalCount: 5}}
	steps := &mockDashboardStepRepo{pending: 4}
	svc := NewDashboardService(expenses, steps, nil, time.Minute, zap.NewNop())

	manager := &models.JWTClaims{UserID: "mgr-1", CompanyID: "c1", Role: models.RoleManager}
	summary, err := svc.Summary(context.Background(), manager)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.AwaitingMyAction)

	employee := &models.JWTClaims{UserID: "emp-1", CompanyID: "c1", Role: models.RoleEmployee}
	summary, err = svc.Summary(context.Background(), employee)
	require.NoError(t, err)
	assert.Zero(t, summary.AwaitingMyAction)
}

func TestInvalidatorDropsCompanyEntries(t *testing.T) {
	cache := &memoryDashboardCache{values: map[string][]byte{"dashboard:c1:summary": []byte("{}")}}
	inv := NewDashboardCacheInvalidator(cache, zap.NewNop())

	inv.Invalidate(context.Background(), "c1")

	assert.Equal(t, []string{"dashboard:c1:*"}, cache.deleted)
	assert.Empty(t, cache.values)
}
