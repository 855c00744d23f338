package usage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lexiprep/lexiprep/internal/users"
)

// Known AI endpoints. The set is closed; the ledger rejects anything else.
const (
	EndpointEnhanceVocab     = "/ai/enhance-vocab"
	EndpointPracticeFeedback = "/ai/practice-feedback"
	EndpointSuggestions      = "/ai/suggestions"
	EndpointQuizGeneration   = "/ai/quiz-generation"
)

// ErrUnknownEndpoint means a caller passed an endpoint outside the known
// enum. Caller error; never retried.
var ErrUnknownEndpoint = errors.New("usage: unknown AI endpoint")

// ValidEndpoint reports whether s is a known AI endpoint.
func ValidEndpoint(s string) bool {
	switch s {
	case EndpointEnhanceVocab, EndpointPracticeFeedback, EndpointSuggestions, EndpointQuizGeneration:
		return true
	}
	return false
}

// Event is one row of the append-only ledger: a single AI invocation
// attempt, success or failure. Immutable once created; removed only by the
// retention sweep.
type Event struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Endpoint       string     `json:"endpoint"`
	Timestamp      time.Time  `json:"request_timestamp"`
	TokensUsed     int        `json:"tokens_used"`
	ResponseTimeMs int        `json:"response_time_ms"`
	Success        bool       `json:"success"`
	ErrorMessage   string     `json:"error_message,omitempty"`

	// Weak references to the learning records the request concerned.
	VocabularyID *uuid.UUID `json:"vocabulary_id,omitempty"`
	PracticeID   *uuid.UUID `json:"practice_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DayBucket is one per-UTC-day aggregation row. SuccessRate is a fraction
// in [0,1]; conversion to a whole percent happens only at the view
// boundary so averaging is never done post-rounding.
type DayBucket struct {
	Date        string
	Requests    int64
	TokensUsed  int64
	SuccessRate float64
}

// DayStat is the user-facing shape of a DayBucket.
type DayStat struct {
	Date        string `json:"date"`
	Requests    int64  `json:"requests"`
	TokensUsed  int64  `json:"tokens_used"`
	SuccessRate int    `json:"success_rate"`
}

// PeriodTotals aggregates all events since some instant. Zero-valued on
// empty input, never an error.
type PeriodTotals struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalTokens       int64   `json:"total_tokens"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time"`
}

// MonthTotals is the reduced month-to-date shape.
type MonthTotals struct {
	TotalRequests int64 `json:"total_requests"`
	TotalTokens   int64 `json:"total_tokens"`
}

// CurrentPeriod describes the live quota window, derived from quota state
// (authoritative for "now") rather than recomputed from ledger history.
type CurrentPeriod struct {
	Used       int       `json:"used"`
	Remaining  int       `json:"remaining"`
	Limit      int       `json:"limit"`
	ResetAt    time.Time `json:"reset_at"`
	PeriodType string    `json:"period_type"`
}

// UserStatsView is returned by the per-user stats endpoint.
type UserStatsView struct {
	CurrentPeriod         CurrentPeriod `json:"current_period"`
	SubscriptionTier      string        `json:"subscription_tier"`
	TotalLifetimeRequests int64         `json:"total_lifetime_requests"`
	RecentUsage           []DayStat     `json:"recent_usage"`
}

// SystemStatsView is returned by the admin stats endpoint.
type SystemStatsView struct {
	Today     PeriodTotals     `json:"today"`
	ThisMonth MonthTotals      `json:"this_month"`
	Users     users.TierCounts `json:"users"`
}
