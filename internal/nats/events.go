package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "LEXIPREP_EVENTS"
)

// Subjects.
const (
	SubjectUsageEvent = "lexiprep.events.ai.usage"
)

// UsageEventMessage is published once per AI invocation attempt and
// persisted to the ledger by a durable consumer.
type UsageEventMessage struct {
	UserID         uuid.UUID  `json:"user_id"`
	Endpoint       string     `json:"endpoint"`
	Timestamp      time.Time  `json:"timestamp"`
	TokensUsed     int        `json:"tokens_used"`
	ResponseTimeMs int        `json:"response_time_ms"`
	Success        bool       `json:"success"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	VocabularyID   *uuid.UUID `json:"vocabulary_id,omitempty"`
	PracticeID     *uuid.UUID `json:"practice_id,omitempty"`
}
