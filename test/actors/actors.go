package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"investflow/catalog"
	"investflow/failure"
	"investflow/journal"
	"investflow/kyc"
	"investflow/schedule"
	"investflow/stage"
	"investflow/transfer"
	"investflow/walkthrough"
	"investflow/workflow"
)

// flakyProvider fails a share of external calls: some transient, some terminal.
type flakyProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (p *flakyProvider) roll() error {
	p.mu.Lock()
	n := p.rng.Intn(10)
	p.mu.Unlock()
	switch {
	case n < 2:
		return failure.New(failure.KindTransient, "provider: timeout")
	case n < 3:
		return failure.New(failure.KindTerminal, "provider: rejected")
	default:
		return nil
	}
}

func (p *flakyProvider) Verify(context.Context, kyc.Request) error {
	return p.roll()
}

func (p *flakyProvider) Transfer(context.Context, transfer.Instruction) error {
	return p.roll()
}

// Onboarder walks one investor after another through the full onboarding
// until stop closes. Events go to sink.
func Onboarder(ctx context.Context, sink workflow.Sink, cat *catalog.Catalog, minimum decimal.Decimal, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	provider := &flakyProvider{rng: rand.New(rand.NewSource(seed + 1))}

	loop := schedule.NewLoop(64)
	loopCtx, cancel := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		o, err := workflow.New(ctx, workflow.Options{
			Scheduler: loop,
			Documents: cat.Documents,
			Sources:   cat.PaymentSources,
			Minimum:   minimum,
			Sink:      sink,
			Verifier:  provider,
			Rail:      provider,
			KYC: kyc.Config{
				ProcessingDwell: time.Duration(5+rng.Intn(10)) * time.Millisecond,
				SuccessDwell:    5 * time.Millisecond,
				RetryBackoff:    2 * time.Millisecond,
				MaxAttempts:     3,
			},
			Transfer: transfer.Config{
				ProcessingDwell: time.Duration(5+rng.Intn(10)) * time.Millisecond,
				SuccessDwell:    5 * time.Millisecond,
				CaptionInterval: 2 * time.Millisecond,
				RetryBackoff:    2 * time.Millisecond,
				MaxAttempts:     3,
			},
		})
		if err != nil {
			return fmt.Errorf("onboarder new workflow: %w", err)
		}

		inv := &walkthrough.Investor{
			Name:        fmt.Sprintf("Stress Investor %d-%d", seed, n),
			Address:     kyc.Address{Country: "US", Line1: "1 Stress Way", City: "Austin", PostalCode: "73301"},
			Amount:      minimum.Add(decimal.NewFromInt(int64(rng.Intn(50000)))),
			SourceID:    cat.PaymentSources[rng.Intn(len(cat.PaymentSources))].ID,
			Loop:        loop,
			Workflow:    o,
			Poll:        5 * time.Millisecond,
			MaxRestarts: 5,
		}
		_, err = inv.Run(ctx)
		_ = loop.Do(ctx, func() error { o.Close(); return nil })
		switch {
		case err == nil, errors.Is(err, walkthrough.ErrGaveUp):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("onboarder run: %w", err)
		}
	}
}

// Replayer re-records events that are already journaled. Every replay must be
// absorbed by the idempotency key.
func Replayer(ctx context.Context, pool *pgxpool.Pool, svc *journal.Service, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var (
			ev        workflow.Event
			eventType string
			stageID   string
		)
		err := pool.QueryRow(ctx, `
SELECT payload->>'event_id', workflow_id::text, type, stage, progress, occurred_at
FROM onboarding_events
ORDER BY random()
LIMIT 1`).Scan(&ev.ID, &ev.WorkflowID, &eventType, &stageID, &ev.Progress, &ev.OccurredAt)
		if err == nil {
			ev.Type = workflow.EventType(eventType)
			ev.Stage = stage.ID(stageID)
			_ = svc.Record(ctx, ev)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks
// them processed, occasionally simulating a failed delivery.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		rows, err := tx.Query(ctx, `SELECT id::text FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
