package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexiprep/lexiprep/internal/metrics"
	inats "github.com/lexiprep/lexiprep/internal/nats"
	"github.com/lexiprep/lexiprep/internal/quota"
)

// EventPublisher dispatches a usage event for asynchronous persistence.
// *nats.Publisher satisfies it.
type EventPublisher interface {
	PublishUsageEvent(ctx context.Context, msg inats.UsageEventMessage) error
}

// Ledger appends one Event per AI invocation attempt. Recording is
// fire-and-forget from the caller's perspective: a failure to record can
// never fail or delay the user's AI response. With a publisher configured,
// events travel through JetStream and a durable consumer persists them;
// otherwise the insert is synchronous but failures are logged and
// swallowed.
type Ledger struct {
	store     Store
	pub       EventPublisher
	clock     quota.Clock
	retention time.Duration
}

// NewLedger creates a Ledger. pub may be nil for synchronous persistence.
func NewLedger(store Store, pub EventPublisher, clock quota.Clock, retention time.Duration) *Ledger {
	return &Ledger{store: store, pub: pub, clock: clock, retention: retention}
}

// Record validates and dispatches one usage event. The only error returned
// is ErrUnknownEndpoint — a caller bug. Storage and transport failures are
// absorbed here.
func (l *Ledger) Record(ctx context.Context, ev Event) error {
	if !ValidEndpoint(ev.Endpoint) {
		slog.Error("usage: rejecting event with unknown endpoint", "endpoint", ev.Endpoint, "user_id", ev.UserID)
		return ErrUnknownEndpoint
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.clock.Now()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = ev.Timestamp
	}

	if l.pub != nil {
		msg := inats.UsageEventMessage{
			UserID:         ev.UserID,
			Endpoint:       ev.Endpoint,
			Timestamp:      ev.Timestamp,
			TokensUsed:     ev.TokensUsed,
			ResponseTimeMs: ev.ResponseTimeMs,
			Success:        ev.Success,
			ErrorMessage:   ev.ErrorMessage,
			VocabularyID:   ev.VocabularyID,
			PracticeID:     ev.PracticeID,
		}
		if err := l.pub.PublishUsageEvent(ctx, msg); err == nil {
			return nil
		} else {
			slog.Warn("usage: publish failed, falling back to direct insert", "error", err)
		}
	}

	if err := l.store.Insert(ctx, &ev); err != nil {
		metrics.UsageRecordFailuresTotal.Inc()
		slog.Error("usage: recording event failed", "error", err, "endpoint", ev.Endpoint, "user_id", ev.UserID)
	}
	return nil
}

// StartRetentionSweep launches the purge loop: events older than the
// retention horizon stop being queryable. Runs until ctx is cancelled.
func (l *Ledger) StartRetentionSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep(ctx)
			}
		}
	}()
}

func (l *Ledger) sweep(ctx context.Context) {
	cutoff := l.clock.Now().Add(-l.retention)
	purged, err := l.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("usage: retention sweep failed", "error", err)
		return
	}
	if purged > 0 {
		metrics.UsageEventsPurgedTotal.Add(float64(purged))
		slog.Info("usage: retention sweep", "purged", purged, "cutoff", cutoff)
	}
}
