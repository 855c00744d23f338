package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/lexiprep/lexiprep/internal/nats"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type failingStore struct {
	Store
}

func (failingStore) Insert(context.Context, *Event) error {
	return errors.New("storage unavailable")
}

type capturingPublisher struct {
	published []inats.UsageEventMessage
	err       error
}

func (p *capturingPublisher) PublishUsageEvent(_ context.Context, msg inats.UsageEventMessage) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, msg)
	return nil
}

func newTestLedger(store Store, pub EventPublisher) (*Ledger, *fixedClock) {
	clock := &fixedClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	return NewLedger(store, pub, clock, 90*24*time.Hour), clock
}

func TestRecord_RejectsUnknownEndpoint(t *testing.T) {
	store := NewMemoryStore()
	ledger, _ := newTestLedger(store, nil)

	err := ledger.Record(context.Background(), Event{
		UserID:   uuid.New(),
		Endpoint: "/ai/translate",
	})
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
	assert.Equal(t, 0, store.Len())
}

func TestRecord_StampsServerTime(t *testing.T) {
	store := NewMemoryStore()
	ledger, clock := newTestLedger(store, nil)
	userID := uuid.New()

	err := ledger.Record(context.Background(), Event{
		UserID:     userID,
		Endpoint:   EndpointEnhanceVocab,
		TokensUsed: 120,
		Success:    true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	buckets, err := store.DailyBreakdown(context.Background(), userID, clock.now.Add(-time.Hour), 30)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, clock.now.Format("2006-01-02"), buckets[0].Date)
}

func TestRecord_KeepsCallerTimestamp(t *testing.T) {
	store := NewMemoryStore()
	ledger, clock := newTestLedger(store, nil)
	userID := uuid.New()
	earlier := clock.now.Add(-48 * time.Hour)

	err := ledger.Record(context.Background(), Event{
		UserID:    userID,
		Endpoint:  EndpointSuggestions,
		Timestamp: earlier,
		Success:   true,
	})
	require.NoError(t, err)

	buckets, err := store.DailyBreakdown(context.Background(), userID, earlier.Add(-time.Hour), 30)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, earlier.Format("2006-01-02"), buckets[0].Date)
}

func TestRecord_SwallowsStorageFailure(t *testing.T) {
	ledger, _ := newTestLedger(failingStore{}, nil)

	err := ledger.Record(context.Background(), Event{
		UserID:   uuid.New(),
		Endpoint: EndpointPracticeFeedback,
		Success:  false,
	})
	assert.NoError(t, err, "a storage failure must never reach the AI response path")
}

func TestRecord_PrefersPublisher(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturingPublisher{}
	ledger, _ := newTestLedger(store, pub)

	err := ledger.Record(context.Background(), Event{
		UserID:     uuid.New(),
		Endpoint:   EndpointQuizGeneration,
		TokensUsed: 77,
		Success:    true,
	})
	require.NoError(t, err)
	assert.Len(t, pub.published, 1)
	assert.Equal(t, 77, pub.published[0].TokensUsed)
	assert.Equal(t, 0, store.Len(), "published events are persisted by the consumer, not inline")
}

func TestRecord_FallsBackToStoreWhenPublishFails(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturingPublisher{err: errors.New("nats down")}
	ledger, _ := newTestLedger(store, pub)

	err := ledger.Record(context.Background(), Event{
		UserID:   uuid.New(),
		Endpoint: EndpointEnhanceVocab,
		Success:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestRetentionSweep_PurgesExpiredEvents(t *testing.T) {
	store := NewMemoryStore()
	ledger, clock := newTestLedger(store, nil)
	ctx := context.Background()

	old := Event{
		UserID:    uuid.New(),
		Endpoint:  EndpointEnhanceVocab,
		Timestamp: clock.now.Add(-91 * 24 * time.Hour),
		Success:   true,
	}
	fresh := Event{
		UserID:    uuid.New(),
		Endpoint:  EndpointEnhanceVocab,
		Timestamp: clock.now.Add(-time.Hour),
		Success:   true,
	}
	require.NoError(t, ledger.Record(ctx, old))
	require.NoError(t, ledger.Record(ctx, fresh))
	require.Equal(t, 2, store.Len())

	ledger.sweep(ctx)
	assert.Equal(t, 1, store.Len())
}
