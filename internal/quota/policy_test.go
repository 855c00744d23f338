package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_LimitFor(t *testing.T) {
	p := NewPolicy(100, 500)

	assert.Equal(t, 100, p.LimitFor(TierFree))
	assert.Equal(t, 500, p.LimitFor(TierPremium))
}

func TestPolicy_LimitForUnknownTierPanics(t *testing.T) {
	p := NewPolicy(100, 500)

	assert.Panics(t, func() { p.LimitFor(Tier("enterprise")) })
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("premium")
	require.NoError(t, err)
	assert.Equal(t, TierPremium, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)
}

func TestStartOfNextUTCDay(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 535, time.UTC)
	next := StartOfNextUTCDay(now)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), next)

	// Already at midnight: next boundary is tomorrow, not now.
	midnight := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), StartOfNextUTCDay(midnight))
}

func TestStartOfNextUTCDay_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:30 on the 15th local is 21:30 on the 14th UTC.
	local := time.Date(2025, 3, 15, 2, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), StartOfNextUTCDay(local))
}

func TestStartOfNextUTCMonth(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), StartOfNextUTCMonth(now))
}

func TestPolicy_NextResetFollowsWindow(t *testing.T) {
	p := NewPolicy(100, 500)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), p.NextReset(TierFree, now))
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), p.NextReset(TierPremium, now))

	// A tier moved to monthly windows changes only the policy table.
	p.tiers[TierPremium] = TierPolicy{Limit: 500, Window: WindowMonthly}
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), p.NextReset(TierPremium, now))
}
