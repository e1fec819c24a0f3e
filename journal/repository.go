package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateIdempotencyKey signals the event was already journaled.
var ErrDuplicateIdempotencyKey = errors.New("journal: duplicate idempotency key")

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// InsertIdempotencyKey attempts to reserve the idempotency key inside the active transaction.
func (r *Repository) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("journal: empty idempotency key")
	}

	_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("journal: insert idempotency key: %w", err)
	}

	return nil
}

// AppendEntryTx appends the timeline row and the outbox message for one event.
func (r *Repository) AppendEntryTx(ctx context.Context, tx pgx.Tx, params AppendParams) (int, error) {
	if params.WorkflowID == "" {
		return 0, fmt.Errorf("journal: missing workflow id")
	}
	if params.Type == "" {
		return 0, fmt.Errorf("journal: missing event type")
	}

	seq, err := r.appendTimelineEvent(ctx, tx, params)
	if err != nil {
		return 0, err
	}

	if err := r.enqueueOutbox(ctx, tx, params, seq); err != nil {
		return 0, err
	}

	return seq, nil
}

func (r *Repository) appendTimelineEvent(ctx context.Context, tx pgx.Tx, params AppendParams) (int, error) {
	// Serializes seq assignment per workflow for the rest of the transaction.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, params.WorkflowID); err != nil {
		return 0, fmt.Errorf("journal: lock workflow timeline: %w", err)
	}

	payload := params.Payload
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["workflow_id"] = params.WorkflowID

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("journal: marshal timeline payload: %w", err)
	}

	const insertSQL = `
INSERT INTO onboarding_events (workflow_id, seq, type, stage, progress, payload, occurred_at)
SELECT $1::uuid, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6
FROM onboarding_events
WHERE workflow_id = $1::uuid
RETURNING seq;
`

	var seq int
	if err := tx.QueryRow(ctx, insertSQL,
		params.WorkflowID, params.Type, params.Stage, params.Progress, payloadBytes, params.OccurredAt.UTC(),
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("journal: insert timeline event: %w", err)
	}

	return seq, nil
}

func (r *Repository) enqueueOutbox(ctx context.Context, tx pgx.Tx, params AppendParams, seq int) error {
	payload := params.OutboxPayload
	if payload == nil {
		payload = make(map[string]any, 4)
	}
	payload["workflow_id"] = params.WorkflowID
	payload["seq"] = seq
	payload["progress"] = params.Progress
	payload["occurred_at"] = params.OccurredAt.UTC()

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: marshal outbox payload: %w", err)
	}

	topic := params.OutboxTopic
	if topic == "" {
		topic = OutboxTopicPrefix + params.Type
	}

	const insertSQL = `
INSERT INTO outbox (topic, payload)
VALUES ($1, $2);
`

	if _, err := tx.Exec(ctx, insertSQL, topic, payloadBytes); err != nil {
		return fmt.Errorf("journal: insert outbox message: %w", err)
	}

	return nil
}
