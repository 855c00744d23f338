package users

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lexiprep/lexiprep/internal/quota"
)

type Service struct {
	repo   Repository
	policy *quota.Policy
	clock  quota.Clock
}

func NewService(repo Repository, policy *quota.Policy, clock quota.Clock) *Service {
	return &Service{repo: repo, policy: policy, clock: clock}
}

// Create registers a user with free-tier defaults. The quota allowance is
// seeded from the policy table so a fresh account starts with a full window.
func (s *Service) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	now := s.clock.Now()
	user := &User{
		ID:                  uuid.New(),
		Email:               email,
		PasswordHash:        passwordHash,
		Role:                RoleUser,
		SubscriptionTier:    string(quota.TierFree),
		AIRequestsRemaining: s.policy.LimitFor(quota.TierFree),
		AIResetAt:           s.policy.NextReset(quota.TierFree, now),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.repo.ExistsByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context, params ListParams) ([]User, int64, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) CountByTier(ctx context.Context) (TierCounts, error) {
	return s.repo.CountByTier(ctx)
}

func (s *Service) UpdateTier(ctx context.Context, id uuid.UUID, tier string, expiresAt *time.Time) error {
	return s.repo.UpdateTier(ctx, id, tier, expiresAt)
}
