package service

import (
	"context"
	"testing"
	"time"

	"knova/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQuotaStore struct {
	quota      *models.Quota
	resetCalls int
}

func (f *fakeQuotaStore) Get(ctx context.Context, userID uuid.UUID) (*models.Quota, error) {
	copied := *f.quota
	return &copied, nil
}

func (f *fakeQuotaStore) Consume(ctx context.Context, userID uuid.UUID, tokens int64) (*models.Quota, error) {
	if tokens > 0 {
		f.quota.UsedQuota += tokens
	}
	copied := *f.quota
	return &copied, nil
}

func (f *fakeQuotaStore) Reset(ctx context.Context, userID uuid.UUID, nextReset time.Time) error {
	f.resetCalls++
	f.quota.UsedQuota = 0
	f.quota.ResetDate = nextReset
	return nil
}

func newQuotaFixture(monthly, used int64) (*fakeQuotaStore, *QuotaService) {
	store := &fakeQuotaStore{
		quota: &models.Quota{
			UserID:       uuid.New(),
			MonthlyQuota: monthly,
			UsedQuota:    used,
			ResetDate:    time.Now().AddDate(0, 1, 0),
		},
	}
	return store, NewQuotaService(store, nil, zap.NewNop())
}

func TestCheckWithinBudget(t *testing.T) {
	_, s := newQuotaFixture(1000, 500)
	assert.NoError(t, s.Check(context.Background(), uuid.New(), 400))
}

func TestCheckInsufficientBudget(t *testing.T) {
	_, s := newQuotaFixture(1000, 995)

	err := s.Check(context.Background(), uuid.New(), 10)

	var quotaErr *InsufficientQuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(5), quotaErr.Remaining)
	assert.Equal(t, int64(10), quotaErr.Required)
}

func TestCheckExactRemainingPasses(t *testing.T) {
	_, s := newQuotaFixture(1000, 990)
	assert.NoError(t, s.Check(context.Background(), uuid.New(), 10))
}

func TestConsumeRecordsUsage(t *testing.T) {
	store, s := newQuotaFixture(1000, 100)

	require.NoError(t, s.Consume(context.Background(), uuid.New(), 250))
	assert.Equal(t, int64(350), store.quota.UsedQuota)
}

func TestConsumeOverageIsRecordedNotRejected(t *testing.T) {
	store, s := newQuotaFixture(1000, 950)

	require.NoError(t, s.Consume(context.Background(), uuid.New(), 100))
	assert.Equal(t, int64(1050), store.quota.UsedQuota)
}

func TestConsumeNegativeClampsToZero(t *testing.T) {
	store, s := newQuotaFixture(1000, 100)

	require.NoError(t, s.Consume(context.Background(), uuid.New(), -50))
	assert.Equal(t, int64(100), store.quota.UsedQuota)
}

func TestCheckRollsPeriodOver(t *testing.T) {
	store, s := newQuotaFixture(1000, 999)
	store.quota.ResetDate = time.Now().Add(-time.Hour)

	require.NoError(t, s.Check(context.Background(), uuid.New(), 500))
	assert.Equal(t, 1, store.resetCalls)
	assert.True(t, store.quota.ResetDate.After(time.Now()))
}

func TestUsageReflectsLedger(t *testing.T) {
	_, s := newQuotaFixture(1000, 300)

	quota, err := s.Usage(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(700), quota.Remaining())
}

func TestQuotaErrorMessage(t *testing.T) {
	err := &InsufficientQuotaError{Remaining: 3, Required: 40}
	assert.Equal(t, "insufficient quota: 3 tokens remaining, 40 required", err.Error())
}
