package usage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiprep/lexiprep/internal/quota"
	"github.com/lexiprep/lexiprep/internal/users"
)

type fakeUserRepo struct {
	users.Repository
	counts users.TierCounts
}

func (f *fakeUserRepo) CountByTier(context.Context) (users.TierCounts, error) {
	return f.counts, nil
}

func setupAggregator(t *testing.T) (*Aggregator, *MemoryStore, *quota.MemoryStore, *fixedClock) {
	t.Helper()
	store := NewMemoryStore()
	quotaStore := quota.NewMemoryStore()
	clock := &fixedClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	limiter := quota.NewLimiter(quotaStore, quota.NewPolicy(100, 500), clock)
	userRepo := &fakeUserRepo{counts: users.TierCounts{Total: 10, Premium: 3, Free: 7}}
	return NewAggregator(store, userRepo, limiter, clock), store, quotaStore, clock
}

func seedQuota(qs *quota.MemoryStore, clock *fixedClock, tier quota.Tier, remaining int) uuid.UUID {
	id := uuid.New()
	qs.Seed(quota.State{
		UserID:    id,
		Tier:      tier,
		Remaining: remaining,
		ResetAt:   quota.StartOfNextUTCDay(clock.now),
	})
	return id
}

func TestUserStats_CurrentPeriodDerivedFromQuotaState(t *testing.T) {
	agg, _, qs, clock := setupAggregator(t)
	id := seedQuota(qs, clock, quota.TierFree, 73)

	view, err := agg.UserStats(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 27, view.CurrentPeriod.Used)
	assert.Equal(t, 73, view.CurrentPeriod.Remaining)
	assert.Equal(t, 100, view.CurrentPeriod.Limit)
	assert.Equal(t, "daily", view.CurrentPeriod.PeriodType)
	assert.Equal(t, "free", view.SubscriptionTier)
	assert.Equal(t, quota.StartOfNextUTCDay(clock.now), view.CurrentPeriod.ResetAt)
}

func TestUserStats_UnknownUser(t *testing.T) {
	agg, _, _, _ := setupAggregator(t)

	_, err := agg.UserStats(context.Background(), uuid.New())
	assert.ErrorIs(t, err, quota.ErrUserNotFound)
}

func TestUserStats_RecordIncrementsLifetimeAndTokens(t *testing.T) {
	agg, store, qs, clock := setupAggregator(t)
	id := seedQuota(qs, clock, quota.TierFree, 99)
	ctx := context.Background()

	before, err := agg.UserStats(ctx, id)
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, &Event{
		UserID:     id,
		Endpoint:   EndpointEnhanceVocab,
		Timestamp:  clock.now,
		TokensUsed: 120,
		Success:    true,
	}))

	after, err := agg.UserStats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.TotalLifetimeRequests+1, after.TotalLifetimeRequests)
	require.NotEmpty(t, after.RecentUsage)
	assert.Equal(t, int64(120), after.RecentUsage[0].TokensUsed)
}

func TestUserStats_RecentUsageOrderedAndCapped(t *testing.T) {
	agg, store, qs, clock := setupAggregator(t)
	id := seedQuota(qs, clock, quota.TierPremium, 500)
	ctx := context.Background()

	// Events on 40 consecutive days; only the 30 inside the window survive,
	// most recent first.
	for i := 0; i < 40; i++ {
		require.NoError(t, store.Insert(ctx, &Event{
			UserID:    id,
			Endpoint:  EndpointSuggestions,
			Timestamp: clock.now.AddDate(0, 0, -i),
			Success:   true,
		}))
	}

	view, err := agg.UserStats(ctx, id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(view.RecentUsage), 30)
	assert.Equal(t, clock.now.Format("2006-01-02"), view.RecentUsage[0].Date)
	for i := 1; i < len(view.RecentUsage); i++ {
		assert.Greater(t, view.RecentUsage[i-1].Date, view.RecentUsage[i].Date)
	}
}

func TestUserStats_SuccessRateRoundedAtBoundary(t *testing.T) {
	agg, store, qs, clock := setupAggregator(t)
	id := seedQuota(qs, clock, quota.TierFree, 100)
	ctx := context.Background()

	// 2 successes out of 3 → 66.67% → rounds to 67.
	for _, ok := range []bool{true, true, false} {
		require.NoError(t, store.Insert(ctx, &Event{
			UserID:    id,
			Endpoint:  EndpointPracticeFeedback,
			Timestamp: clock.now,
			Success:   ok,
		}))
	}

	view, err := agg.UserStats(ctx, id)
	require.NoError(t, err)
	require.Len(t, view.RecentUsage, 1)
	assert.Equal(t, 67, view.RecentUsage[0].SuccessRate)
}

func TestSystemStats_ZeroValuedOnEmptyStore(t *testing.T) {
	agg, _, _, _ := setupAggregator(t)

	view, err := agg.SystemStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PeriodTotals{}, view.Today)
	assert.Equal(t, MonthTotals{}, view.ThisMonth)
	assert.Equal(t, int64(10), view.Users.Total)
	assert.Equal(t, int64(3), view.Users.Premium)
	assert.Equal(t, int64(7), view.Users.Free)
}

func TestSystemStats_TodayExcludesYesterday(t *testing.T) {
	agg, store, qs, clock := setupAggregator(t)
	id := seedQuota(qs, clock, quota.TierFree, 100)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &Event{
		UserID:         id,
		Endpoint:       EndpointEnhanceVocab,
		Timestamp:      clock.now,
		TokensUsed:     50,
		ResponseTimeMs: 200,
		Success:        true,
	}))
	require.NoError(t, store.Insert(ctx, &Event{
		UserID:     id,
		Endpoint:   EndpointEnhanceVocab,
		Timestamp:  clock.now.AddDate(0, 0, -1),
		TokensUsed: 999,
		Success:    true,
	}))

	view, err := agg.SystemStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Today.TotalRequests)
	assert.Equal(t, int64(50), view.Today.TotalTokens)
	assert.InDelta(t, 1.0, view.Today.SuccessRate, 1e-9)
	assert.InDelta(t, 200.0, view.Today.AvgResponseTimeMs, 1e-9)

	// Month-to-date includes both.
	assert.Equal(t, int64(2), view.ThisMonth.TotalRequests)
	assert.Equal(t, int64(1049), view.ThisMonth.TotalTokens)
}
