package users

import (
	"time"

	"github.com/google/uuid"
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User matches the users table schema. The ai_* columns are the user's
// current quota allowance; the usage ledger is the historical trail and is
// never used to recompute them.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`

	SubscriptionTier      string     `json:"subscription_tier"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`

	AIRequestsRemaining int       `json:"ai_requests_remaining"`
	AIResetAt           time.Time `json:"ai_reset_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListParams holds pagination and filtering for the admin user listing.
type ListParams struct {
	Tier     string
	Search   string
	Page     int
	PageSize int
}

// TierCounts holds per-tier user totals for the admin dashboard.
type TierCounts struct {
	Total   int64 `json:"total"`
	Premium int64 `json:"premium"`
	Free    int64 `json:"free"`
}
