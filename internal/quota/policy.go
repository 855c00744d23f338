package quota

import (
	"fmt"
	"time"
)

// Tier is a subscription class. The set is closed.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier validates a tier string coming from storage or a request body.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPremium:
		return Tier(s), nil
	}
	return "", fmt.Errorf("unknown subscription tier %q", s)
}

// Window is the span a quota allowance covers before resetting.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// TierPolicy is the per-tier quota configuration.
type TierPolicy struct {
	Limit  int
	Window Window
}

// Policy is the single source of truth for quota magnitudes and windowing.
// Both the limiter and the admin reseed path consult it, so reset values
// and limit checks can never drift apart.
type Policy struct {
	tiers map[Tier]TierPolicy
}

// NewPolicy builds the tier table. Both tiers reset on the daily UTC
// boundary; only the magnitudes differ.
func NewPolicy(freeDailyLimit, premiumDailyLimit int) *Policy {
	return &Policy{
		tiers: map[Tier]TierPolicy{
			TierFree:    {Limit: freeDailyLimit, Window: WindowDaily},
			TierPremium: {Limit: premiumDailyLimit, Window: WindowDaily},
		},
	}
}

// LimitFor returns the quota magnitude for a tier. An unknown tier is a
// programming error, not a recoverable condition.
func (p *Policy) LimitFor(tier Tier) int {
	tp, ok := p.tiers[tier]
	if !ok {
		panic(fmt.Sprintf("quota: no policy for tier %q", tier))
	}
	return tp.Limit
}

// WindowFor returns the reset window kind for a tier.
func (p *Policy) WindowFor(tier Tier) Window {
	tp, ok := p.tiers[tier]
	if !ok {
		panic(fmt.Sprintf("quota: no policy for tier %q", tier))
	}
	return tp.Window
}

// NextReset computes the next window boundary after now for a tier.
func (p *Policy) NextReset(tier Tier, now time.Time) time.Time {
	switch p.WindowFor(tier) {
	case WindowMonthly:
		return StartOfNextUTCMonth(now)
	default:
		return StartOfNextUTCDay(now)
	}
}

// StartOfNextUTCDay truncates t to the next midnight UTC.
func StartOfNextUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// StartOfUTCDay truncates t to the current midnight UTC.
func StartOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfNextUTCMonth truncates t to the first instant of the next month, UTC.
func StartOfNextUTCMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// StartOfUTCMonth truncates t to the first instant of its month, UTC.
func StartOfUTCMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
