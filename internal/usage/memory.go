package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Len returns the number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *MemoryStore) Insert(_ context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *MemoryStore) CountByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, ev := range m.events {
		if ev.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) DailyBreakdown(_ context.Context, userID uuid.UUID, since time.Time, maxDays int) ([]DayBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type acc struct {
		requests  int64
		tokens    int64
		successes int64
	}
	days := make(map[string]*acc)
	for _, ev := range m.events {
		if ev.UserID != userID || ev.Timestamp.Before(since) {
			continue
		}
		day := ev.Timestamp.UTC().Format("2006-01-02")
		a, ok := days[day]
		if !ok {
			a = &acc{}
			days[day] = a
		}
		a.requests++
		a.tokens += int64(ev.TokensUsed)
		if ev.Success {
			a.successes++
		}
	}

	var buckets []DayBucket
	for day, a := range days {
		buckets = append(buckets, DayBucket{
			Date:        day,
			Requests:    a.requests,
			TokensUsed:  a.tokens,
			SuccessRate: float64(a.successes) / float64(a.requests),
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Date > buckets[j].Date })
	if len(buckets) > maxDays {
		buckets = buckets[:maxDays]
	}
	return buckets, nil
}

func (m *MemoryStore) TotalsSince(_ context.Context, since time.Time) (PeriodTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var t PeriodTotals
	var successes, latencySum int64
	for _, ev := range m.events {
		if ev.Timestamp.Before(since) {
			continue
		}
		t.TotalRequests++
		t.TotalTokens += int64(ev.TokensUsed)
		latencySum += int64(ev.ResponseTimeMs)
		if ev.Success {
			successes++
		}
	}
	if t.TotalRequests > 0 {
		t.SuccessRate = float64(successes) / float64(t.TotalRequests)
		t.AvgResponseTimeMs = float64(latencySum) / float64(t.TotalRequests)
	}
	return t, nil
}

func (m *MemoryStore) MonthTotalsSince(ctx context.Context, since time.Time) (MonthTotals, error) {
	t, err := m.TotalsSince(ctx, since)
	if err != nil {
		return MonthTotals{}, err
	}
	return MonthTotals{TotalRequests: t.TotalRequests, TotalTokens: t.TotalTokens}, nil
}

func (m *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var purged int64
	for _, ev := range m.events {
		if ev.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return purged, nil
}
