// Package walkthrough drives an onboarding end to end the way an investor
// clicking through the UI would. It backs the onboard command and the stress
// test.
package walkthrough

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"investflow/kyc"
	"investflow/schedule"
	"investflow/stage"
	"investflow/workflow"
)

// ErrGaveUp is returned when a sub-workflow keeps failing.
var ErrGaveUp = errors.New("walkthrough: sub-workflow kept failing")

// Investor completes every stage of one orchestrator. The orchestrator must
// have been built with Loop as its scheduler.
type Investor struct {
	Name        string
	Address     kyc.Address
	Amount      decimal.Decimal
	SourceID    string
	Loop        *schedule.Loop
	Workflow    *workflow.Orchestrator
	Poll        time.Duration
	MaxRestarts int
	Logger      *slog.Logger
}

// Run walks through Commit, Signing, KYC, and Wire, and returns the final
// snapshot.
func (inv *Investor) Run(ctx context.Context) (workflow.Snapshot, error) {
	logger := inv.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "walkthrough", "investor", inv.Name, "workflow_id", inv.Workflow.ID())

	if err := inv.do(ctx, func(o *workflow.Orchestrator) error {
		return o.EnterStage(stage.Commit)
	}); err != nil {
		return workflow.Snapshot{}, fmt.Errorf("walkthrough: commit: %w", err)
	}

	if err := inv.do(ctx, func(o *workflow.Orchestrator) error {
		if err := o.EnterStage(stage.Signing); err != nil {
			return err
		}
		for _, doc := range o.Documents() {
			if err := o.OnDocumentSigned(doc.ID, inv.Name); err != nil {
				return fmt.Errorf("sign %s: %w", doc.ID, err)
			}
		}
		return nil
	}); err != nil {
		return workflow.Snapshot{}, fmt.Errorf("walkthrough: signing: %w", err)
	}

	if err := inv.complete(ctx, logger, stage.KYC, inv.verifyIdentity); err != nil {
		return workflow.Snapshot{}, err
	}
	if err := inv.complete(ctx, logger, stage.Wire, inv.fund); err != nil {
		return workflow.Snapshot{}, err
	}

	var snap workflow.Snapshot
	err := inv.do(ctx, func(o *workflow.Orchestrator) error {
		var err error
		snap, err = o.Snapshot()
		return err
	})
	if err != nil {
		return workflow.Snapshot{}, fmt.Errorf("walkthrough: snapshot: %w", err)
	}
	logger.Info("onboarding finished", "progress", snap.Progress)
	return snap, nil
}

func (inv *Investor) do(ctx context.Context, fn func(*workflow.Orchestrator) error) error {
	return inv.Loop.Do(ctx, func() error { return fn(inv.Workflow) })
}

// complete enters id, drives its session, and waits for the stage to
// complete, restarting the session when it fails.
func (inv *Investor) complete(ctx context.Context, logger *slog.Logger, id stage.ID, drive func(*workflow.Orchestrator) error) error {
	for attempt := 0; attempt <= inv.MaxRestarts; attempt++ {
		if err := inv.do(ctx, func(o *workflow.Orchestrator) error {
			if err := o.EnterStage(id); err != nil {
				return err
			}
			return drive(o)
		}); err != nil {
			return fmt.Errorf("walkthrough: %s: %w", id, err)
		}

		done, err := inv.await(ctx, id)
		if err != nil {
			return fmt.Errorf("walkthrough: %s: %w", id, err)
		}
		if done {
			return nil
		}
		logger.Warn("session failed, restarting", "stage", id, "attempt", attempt+1)
	}
	return fmt.Errorf("%w: %s", ErrGaveUp, id)
}

// await polls until id is completed (true) or its session ended without
// completing it (false).
func (inv *Investor) await(ctx context.Context, id stage.ID) (bool, error) {
	poll := inv.Poll
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		var (
			status stage.Status
			active bool
		)
		err := inv.do(ctx, func(o *workflow.Orchestrator) error {
			snap, err := o.Snapshot()
			if err != nil {
				return err
			}
			for _, s := range snap.Stages {
				if s.ID == id {
					status = s.Status
				}
			}
			active = snap.ActiveStage == id
			return nil
		})
		if err != nil {
			return false, err
		}
		if status == stage.StatusCompleted {
			return true, nil
		}
		if !active {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (inv *Investor) verifyIdentity(o *workflow.Orchestrator) error {
	s, err := o.Identity()
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.SetAddress(inv.Address); err != nil {
		return err
	}
	if err := s.SubmitAddress(); err != nil {
		return err
	}
	return s.Submit()
}

func (inv *Investor) fund(o *workflow.Orchestrator) error {
	s, err := o.Transfer()
	if err != nil {
		return err
	}
	if err := s.SetAmount(inv.Amount); err != nil {
		return err
	}
	if err := s.SelectSource(inv.SourceID); err != nil {
		return err
	}
	if err := s.Review(); err != nil {
		return err
	}
	return s.Submit()
}
