package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"investflow/stage"
)

// EventType names an onboarding event.
type EventType string

const (
	EventStageEntered      EventType = "stage_entered"
	EventCommitted         EventType = "committed"
	EventDocumentSigned    EventType = "document_signed"
	EventIdentityVerified  EventType = "identity_verified"
	EventTransferCompleted EventType = "transfer_completed"
	EventSessionCancelled  EventType = "session_cancelled"
	EventSessionFailed     EventType = "session_failed"
)

// Event is published for every accepted state change and session outcome.
// Fields that do not apply to the event type are left zero.
type Event struct {
	ID         string
	WorkflowID string
	Type       EventType
	Stage      stage.ID
	SessionID  string
	DocumentID string
	SignerName string
	Digest     string
	Receipt    string
	Amount     decimal.Decimal
	AccountID  string
	Reference  string
	Reason     string
	Progress   int
	OccurredAt time.Time
}

// Sink receives published events. Record must not block for long: it is
// called on the workflow's event loop. Errors are logged and otherwise ignored.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }
