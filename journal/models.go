package journal

import "time"

// Entry mirrors a row of onboarding_events.
type Entry struct {
	ID         int64
	WorkflowID string
	Seq        int
	Type       string
	Stage      string
	Progress   int
	Payload    []byte
	OccurredAt time.Time
	RecordedAt time.Time
}

// OutboxMessage represents a transactional outbox entry.
type OutboxMessage struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// AppendParams enumerates the writes executed inside a single transaction.
type AppendParams struct {
	WorkflowID    string
	Type          string
	Stage         string
	Progress      int
	OccurredAt    time.Time
	Payload       map[string]any
	OutboxTopic   string
	OutboxPayload map[string]any
}

// OutboxTopicPrefix starts the topic of every onboarding outbox message;
// the event type completes it, e.g. "onboarding.transfer_completed".
const OutboxTopicPrefix = "onboarding."
