package usage

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/lexiprep/lexiprep/internal/quota"
	"github.com/lexiprep/lexiprep/internal/users"
)

const recentUsageDays = 30

// Aggregator produces read-only statistics from the quota state and the
// usage ledger. Quota state answers "now"; the ledger answers "history";
// the two are never reconciled against each other.
type Aggregator struct {
	store   Store
	users   users.Repository
	limiter *quota.Limiter
	clock   quota.Clock
}

// NewAggregator creates an Aggregator.
func NewAggregator(store Store, userRepo users.Repository, limiter *quota.Limiter, clock quota.Clock) *Aggregator {
	return &Aggregator{store: store, users: userRepo, limiter: limiter, clock: clock}
}

// UserStats assembles the per-user view: current window from quota state,
// lifetime count (bounded by retention) and a last-30-days daily breakdown.
func (a *Aggregator) UserStats(ctx context.Context, userID uuid.UUID) (*UserStatsView, error) {
	st, err := a.limiter.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := a.limiter.Policy().LimitFor(st.Tier)

	total, err := a.store.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	since := a.clock.Now().AddDate(0, 0, -recentUsageDays)
	buckets, err := a.store.DailyBreakdown(ctx, userID, since, recentUsageDays)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	recent := make([]DayStat, 0, len(buckets))
	for _, b := range buckets {
		recent = append(recent, DayStat{
			Date:        b.Date,
			Requests:    b.Requests,
			TokensUsed:  b.TokensUsed,
			SuccessRate: toPercent(b.SuccessRate),
		})
	}

	return &UserStatsView{
		CurrentPeriod: CurrentPeriod{
			Used:       limit - st.Remaining,
			Remaining:  st.Remaining,
			Limit:      limit,
			ResetAt:    st.ResetAt,
			PeriodType: string(a.limiter.Policy().WindowFor(st.Tier)),
		},
		SubscriptionTier:      string(st.Tier),
		TotalLifetimeRequests: total,
		RecentUsage:           recent,
	}, nil
}

// SystemStats assembles the admin view: today's totals, month-to-date
// totals and per-tier user counts. Empty data yields zero values, not an
// error.
func (a *Aggregator) SystemStats(ctx context.Context) (*SystemStatsView, error) {
	now := a.clock.Now()

	today, err := a.store.TotalsSince(ctx, quota.StartOfUTCDay(now))
	if err != nil {
		return nil, fmt.Errorf("system stats: %w", err)
	}

	month, err := a.store.MonthTotalsSince(ctx, quota.StartOfUTCMonth(now))
	if err != nil {
		return nil, fmt.Errorf("system stats: %w", err)
	}

	counts, err := a.users.CountByTier(ctx)
	if err != nil {
		return nil, fmt.Errorf("system stats: %w", err)
	}

	return &SystemStatsView{
		Today:     today,
		ThisMonth: month,
		Users:     counts,
	}, nil
}

func toPercent(fraction float64) int {
	return int(math.Round(fraction * 100))
}
