package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound means the quota owner does not exist. Fatal for the
// calling request; surfaced upstream as an authorization failure.
var ErrUserNotFound = errors.New("quota: user not found")

// Store persists per-user quota state. Implementations must make each
// method a single atomic operation so concurrent gate checks can never
// lose updates or drive the counter negative.
type Store interface {
	// Get returns the current state, or ErrUserNotFound.
	Get(ctx context.Context, userID uuid.UUID) (State, error)

	// ResetWindow re-seeds remaining and resetAt, but only if the stored
	// resetAt is at or before asOf. Idempotent per window: concurrent
	// callers at the boundary perform exactly one reset between them.
	// Returns true when this call performed the reset.
	ResetWindow(ctx context.Context, userID uuid.UUID, asOf time.Time, remaining int, resetAt time.Time) (bool, error)

	// ConsumeOne decrements remaining by one, but only if it is positive.
	// Returns the new remaining and whether a unit was consumed.
	ConsumeOne(ctx context.Context, userID uuid.UUID) (int, bool, error)

	// Reseed unconditionally sets tier, remaining and resetAt. Admin
	// tier changes are the only caller.
	Reseed(ctx context.Context, userID uuid.UUID, tier Tier, remaining int, resetAt time.Time) error
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed Store over the users table.
func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Get(ctx context.Context, userID uuid.UUID) (State, error) {
	var st State
	var tier string
	err := s.pool.QueryRow(ctx,
		`SELECT id, subscription_tier, ai_requests_remaining, ai_reset_at
		 FROM users WHERE id = $1`, userID,
	).Scan(&st.UserID, &tier, &st.Remaining, &st.ResetAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, ErrUserNotFound
		}
		return State{}, fmt.Errorf("fetching quota state: %w", err)
	}

	st.Tier, err = ParseTier(tier)
	if err != nil {
		return State{}, fmt.Errorf("fetching quota state: %w", err)
	}
	return st, nil
}

func (s *postgresStore) ResetWindow(ctx context.Context, userID uuid.UUID, asOf time.Time, remaining int, resetAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users
		 SET ai_requests_remaining = $3,
		     ai_reset_at = $4,
		     updated_at = NOW()
		 WHERE id = $1 AND ai_reset_at <= $2`, userID, asOf, remaining, resetAt)
	if err != nil {
		return false, fmt.Errorf("resetting quota window: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) ConsumeOne(ctx context.Context, userID uuid.UUID) (int, bool, error) {
	var remaining int
	err := s.pool.QueryRow(ctx,
		`UPDATE users
		 SET ai_requests_remaining = ai_requests_remaining - 1,
		     updated_at = NOW()
		 WHERE id = $1 AND ai_requests_remaining > 0
		 RETURNING ai_requests_remaining`, userID,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Raced to zero between the check and the decrement.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("consuming quota unit: %w", err)
	}
	return remaining, true, nil
}

func (s *postgresStore) Reseed(ctx context.Context, userID uuid.UUID, tier Tier, remaining int, resetAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users
		 SET subscription_tier = $2,
		     ai_requests_remaining = $3,
		     ai_reset_at = $4,
		     updated_at = NOW()
		 WHERE id = $1`, userID, string(tier), remaining, resetAt)
	if err != nil {
		return fmt.Errorf("reseeding quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
