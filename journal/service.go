// Package journal persists onboarding events as an append-only audit trail.
// Each event becomes a timeline row and an outbox message written in one
// transaction and guarded by an idempotency key, so replays are harmless.
// Workflow state is never reloaded from the journal.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"investflow/workflow"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EntryRepository defines the data access required by the service.
type EntryRepository interface {
	InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
	AppendEntryTx(ctx context.Context, tx pgx.Tx, params AppendParams) (int, error)
}

type Service struct {
	pool TxBeginner
	repo EntryRepository
}

func NewService(pool TxBeginner, repo EntryRepository) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool: pool,
		repo: repo,
	}
}

// Record journals ev. The event id is the idempotency key: recording the same
// event twice writes once and returns nil both times.
func (s *Service) Record(ctx context.Context, ev workflow.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("journal: missing event id")
	}
	if ev.WorkflowID == "" {
		return fmt.Errorf("journal: missing workflow id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.InsertIdempotencyKey(ctx, tx, "event:"+ev.ID); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil
		}
		return err
	}

	params := AppendParams{
		WorkflowID:    ev.WorkflowID,
		Type:          string(ev.Type),
		Stage:         string(ev.Stage),
		Progress:      ev.Progress,
		OccurredAt:    ev.OccurredAt,
		Payload:       eventPayload(ev),
		OutboxPayload: eventPayload(ev),
	}

	if _, err := s.repo.AppendEntryTx(ctx, tx, params); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal: commit tx: %w", err)
	}

	return nil
}

// eventPayload keeps only the fields that apply to the event.
func eventPayload(ev workflow.Event) map[string]any {
	payload := map[string]any{"event_id": ev.ID}
	set := func(key, value string) {
		if value != "" {
			payload[key] = value
		}
	}
	set("stage", string(ev.Stage))
	set("session_id", ev.SessionID)
	set("document_id", ev.DocumentID)
	set("signer_name", ev.SignerName)
	set("digest", ev.Digest)
	set("receipt", ev.Receipt)
	set("account_id", ev.AccountID)
	set("reference", ev.Reference)
	set("reason", ev.Reason)
	if ev.Type == workflow.EventTransferCompleted {
		payload["amount"] = ev.Amount.StringFixed(2)
	}
	return payload
}
