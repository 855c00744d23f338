package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists and aggregates ledger rows. Rows are insert-only; the
// only delete path is the retention purge.
type Store interface {
	Insert(ctx context.Context, ev *Event) error
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DailyBreakdown(ctx context.Context, userID uuid.UUID, since time.Time, maxDays int) ([]DayBucket, error)
	TotalsSince(ctx context.Context, since time.Time) (PeriodTotals, error)
	MonthTotalsSince(ctx context.Context, since time.Time) (MonthTotals, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed usage Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Insert(ctx context.Context, ev *Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_usage (id, user_id, endpoint, request_timestamp, tokens_used,
			response_time_ms, success, error_message, vocabulary_id, practice_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.UserID, ev.Endpoint, ev.Timestamp, ev.TokensUsed,
		ev.ResponseTimeMs, ev.Success, nullIfEmpty(ev.ErrorMessage), ev.VocabularyID, ev.PracticeID)
	if err != nil {
		return fmt.Errorf("inserting usage event: %w", err)
	}
	return nil
}

func (s *postgresStore) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ai_usage WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage events: %w", err)
	}
	return count, nil
}

func (s *postgresStore) DailyBreakdown(ctx context.Context, userID uuid.UUID, since time.Time, maxDays int) ([]DayBucket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(request_timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		        COUNT(*),
		        COALESCE(SUM(tokens_used), 0),
		        AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END)
		 FROM ai_usage
		 WHERE user_id = $1 AND request_timestamp >= $2
		 GROUP BY day
		 ORDER BY day DESC
		 LIMIT $3`, userID, since, maxDays)
	if err != nil {
		return nil, fmt.Errorf("querying daily breakdown: %w", err)
	}
	defer rows.Close()

	var buckets []DayBucket
	for rows.Next() {
		var b DayBucket
		if err := rows.Scan(&b.Date, &b.Requests, &b.TokensUsed, &b.SuccessRate); err != nil {
			return nil, fmt.Errorf("scanning daily bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *postgresStore) TotalsSince(ctx context.Context, since time.Time) (PeriodTotals, error) {
	var t PeriodTotals
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(tokens_used), 0),
		        COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0),
		        COALESCE(AVG(response_time_ms), 0)
		 FROM ai_usage WHERE request_timestamp >= $1`, since,
	).Scan(&t.TotalRequests, &t.TotalTokens, &t.SuccessRate, &t.AvgResponseTimeMs)
	if err != nil {
		return PeriodTotals{}, fmt.Errorf("aggregating usage totals: %w", err)
	}
	return t, nil
}

func (s *postgresStore) MonthTotalsSince(ctx context.Context, since time.Time) (MonthTotals, error) {
	var t MonthTotals
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens_used), 0)
		 FROM ai_usage WHERE request_timestamp >= $1`, since,
	).Scan(&t.TotalRequests, &t.TotalTokens)
	if err != nil {
		return MonthTotals{}, fmt.Errorf("aggregating month totals: %w", err)
	}
	return t, nil
}

func (s *postgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ai_usage WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging usage events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
