package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, role, subscription_tier, subscription_expires_at,
	ai_requests_remaining, ai_reset_at, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, params ListParams) ([]User, int64, error)
	CountByTier(ctx context.Context) (TierCounts, error)
	UpdateTier(ctx context.Context, id uuid.UUID, tier string, expiresAt *time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, subscription_tier,
			ai_requests_remaining, ai_reset_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Role, user.SubscriptionTier,
		user.AIRequestsRemaining, user.AIResetAt, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user := &User{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.SubscriptionTier, &user.SubscriptionExpiresAt,
		&user.AIRequestsRemaining, &user.AIResetAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)

	user := &User{}
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.SubscriptionTier, &user.SubscriptionExpiresAt,
		&user.AIRequestsRemaining, &user.AIResetAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) List(ctx context.Context, params ListParams) ([]User, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	var conditions []string
	var args []any
	argIdx := 1

	if params.Tier != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_tier = $%d", argIdx))
		args = append(args, params.Tier)
		argIdx++
	}
	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf("email ILIKE $%d", argIdx))
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM users WHERE %s", where)
	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM users WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, userColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var list []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
			&u.SubscriptionTier, &u.SubscriptionExpiresAt,
			&u.AIRequestsRemaining, &u.AIResetAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning user: %w", err)
		}
		list = append(list, u)
	}

	return list, totalCount, nil
}

func (r *postgresRepository) CountByTier(ctx context.Context) (TierCounts, error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE subscription_tier = 'premium') FROM users`

	var counts TierCounts
	if err := r.pool.QueryRow(ctx, query).Scan(&counts.Total, &counts.Premium); err != nil {
		return TierCounts{}, fmt.Errorf("counting users by tier: %w", err)
	}
	counts.Free = counts.Total - counts.Premium
	return counts, nil
}

func (r *postgresRepository) UpdateTier(ctx context.Context, id uuid.UUID, tier string, expiresAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET subscription_tier = $2, subscription_expires_at = $3, updated_at = NOW()
		 WHERE id = $1`, id, tier, expiresAt)
	if err != nil {
		return fmt.Errorf("updating user tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating user tier: user %s not found", id)
	}
	return nil
}
