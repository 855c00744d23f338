package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Limiter decides whether an AI request may proceed and consumes one quota
// unit when it may. Two transitions exist: decrement within the current
// window, or reset-then-decrement when the window has expired. Both mutate
// storage through atomic conditional updates, so concurrent gate checks at
// the boundary or near zero can never over-grant.
type Limiter struct {
	store  Store
	policy *Policy
	clock  Clock
}

// NewLimiter creates a Limiter.
func NewLimiter(store Store, policy *Policy, clock Clock) *Limiter {
	return &Limiter{store: store, policy: policy, clock: clock}
}

// CheckAndConsume loads the user's state, performs a lazy window reset if
// due, and consumes one unit when any remain. The result is durably
// persisted before returning; the caller gates an expensive downstream AI
// call on it. Storage failures propagate — the caller must treat them as
// a failed gating decision, never as permission.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID uuid.UUID) (Decision, error) {
	st, err := l.store.Get(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	now := l.clock.Now()
	if !now.Before(st.ResetAt) {
		reset, err := l.store.ResetWindow(ctx, userID, now,
			l.policy.LimitFor(st.Tier), l.policy.NextReset(st.Tier, now))
		if err != nil {
			return Decision{}, err
		}
		if reset {
			slog.Debug("quota window reset", "user_id", userID, "tier", st.Tier)
		}
		// Re-read regardless: a concurrent request may have won the reset.
		st, err = l.store.Get(ctx, userID)
		if err != nil {
			return Decision{}, err
		}
	}

	if st.Remaining <= 0 {
		return Decision{Allowed: false, Remaining: 0, ResetAt: st.ResetAt, Tier: st.Tier}, nil
	}

	remaining, consumed, err := l.store.ConsumeOne(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if !consumed {
		// Lost the race for the last unit.
		return Decision{Allowed: false, Remaining: 0, ResetAt: st.ResetAt, Tier: st.Tier}, nil
	}

	return Decision{Allowed: true, Remaining: remaining, ResetAt: st.ResetAt, Tier: st.Tier}, nil
}

// Current returns the user's quota state without consuming or resetting.
// Stats derive the current period from this, never from the ledger.
func (l *Limiter) Current(ctx context.Context, userID uuid.UUID) (State, error) {
	return l.store.Get(ctx, userID)
}

// Reseed applies an admin tier change: the new tier immediately gets a
// fresh full window. The prior remaining count is discarded, never
// prorated.
func (l *Limiter) Reseed(ctx context.Context, userID uuid.UUID, tier Tier) (State, error) {
	now := l.clock.Now()
	st := State{
		UserID:    userID,
		Tier:      tier,
		Remaining: l.policy.LimitFor(tier),
		ResetAt:   l.policy.NextReset(tier, now),
	}
	if err := l.store.Reseed(ctx, userID, tier, st.Remaining, st.ResetAt); err != nil {
		return State{}, fmt.Errorf("reseeding %s to %s: %w", userID, tier, err)
	}
	return st, nil
}

// Policy exposes the tier table for read-side consumers (stats views).
func (l *Limiter) Policy() *Policy {
	return l.policy
}
