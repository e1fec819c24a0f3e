package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"investflow/migrations"
	"investflow/stage"
	"investflow/workflow"
)

// TestRecord_Integration connects to a real PostgreSQL via DATABASE_URL and
// verifies timeline, outbox, and idempotency behavior end to end.
func TestRecord_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	workflowID := uuid.NewString()
	signed := workflow.Event{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Type:       workflow.EventDocumentSigned,
		Stage:      stage.Signing,
		DocumentID: "subscription-agreement",
		SignerName: "Ada Lovelace",
		Progress:   33,
		OccurredAt: time.Now().UTC(),
	}
	funded := workflow.Event{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Type:       workflow.EventTransferCompleted,
		Stage:      stage.Wire,
		Amount:     decimal.NewFromInt(25000),
		AccountID:  "chk-4821",
		Reference:  "INV-ITEST00001",
		Progress:   100,
		OccurredAt: time.Now().UTC(),
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM onboarding_events WHERE workflow_id = $1`, workflowID)
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'workflow_id' = $1`, workflowID)
		pool.Exec(ctx2, `DELETE FROM idempotency WHERE key IN ($1, $2)`, "event:"+signed.ID, "event:"+funded.ID)
	})

	svc := NewService(pool, NewRepository())

	for _, ev := range []workflow.Event{signed, funded} {
		if err := svc.Record(ctx, ev); err != nil {
			t.Fatalf("record %s: %v", ev.Type, err)
		}
	}

	var (
		count  int
		maxSeq int
	)
	if err := pool.QueryRow(ctx, `SELECT COUNT(*), MAX(seq) FROM onboarding_events WHERE workflow_id = $1`, workflowID).Scan(&count, &maxSeq); err != nil {
		t.Fatalf("verify events: %v", err)
	}
	if count != 2 || maxSeq != 2 {
		t.Fatalf("unexpected timeline state: count=%d max_seq=%d", count, maxSeq)
	}

	var amount string
	if err := pool.QueryRow(ctx, `SELECT payload->>'amount' FROM outbox WHERE topic = 'onboarding.transfer_completed' AND payload->>'workflow_id' = $1`, workflowID).Scan(&amount); err != nil {
		t.Fatalf("verify outbox: %v", err)
	}
	if amount != "25000.00" {
		t.Fatalf("expected outbox amount 25000.00, got %q", amount)
	}

	// Replaying an event is a no-op.
	if err := svc.Record(ctx, funded); err != nil {
		t.Fatalf("record replay: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM onboarding_events WHERE workflow_id = $1`, workflowID).Scan(&count); err != nil {
		t.Fatalf("re-verify events: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected timeline events to remain 2 after replay, got %d", count)
	}
	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE payload->>'workflow_id' = $1`, workflowID).Scan(&outCount); err != nil {
		t.Fatalf("re-verify outbox: %v", err)
	}
	if outCount != 2 {
		t.Fatalf("expected outbox messages to remain 2 after replay, got %d", outCount)
	}
}
