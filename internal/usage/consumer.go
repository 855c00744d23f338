package usage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/lexiprep/lexiprep/internal/nats"
)

// Consumer drains the usage-event subject and persists entries to the
// ledger table. Running it out of band keeps the write off the AI
// response path.
type Consumer struct {
	store       Store
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a usage event Consumer.
func NewConsumer(store Store, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		store:       store,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "usage-persister", inats.SubjectUsageEvent)
	if err != nil {
		return err
	}

	slog.Info("usage consumer started", "consumer", "usage-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("usage consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var m inats.UsageEventMessage
	if err := json.Unmarshal(msg.Data(), &m); err != nil {
		slog.Error("usage consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	ev := Event{
		UserID:         m.UserID,
		Endpoint:       m.Endpoint,
		Timestamp:      m.Timestamp,
		TokensUsed:     m.TokensUsed,
		ResponseTimeMs: m.ResponseTimeMs,
		Success:        m.Success,
		ErrorMessage:   m.ErrorMessage,
		VocabularyID:   m.VocabularyID,
		PracticeID:     m.PracticeID,
		CreatedAt:      m.Timestamp,
	}

	if err := c.store.Insert(ctx, &ev); err != nil {
		slog.Error("usage consumer: persisting event", "error", err, "endpoint", m.Endpoint)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("usage consumer: persisted event",
		"endpoint", m.Endpoint,
		"user_id", m.UserID,
		"success", m.Success,
	)
}
