package walkthrough

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investflow/catalog"
	"investflow/failure"
	"investflow/kyc"
	"investflow/schedule"
	"investflow/stage"
	"investflow/transfer"
	"investflow/workflow"
)

type flakyVerifier struct {
	failures int32
	calls    atomic.Int32
}

func (v *flakyVerifier) Verify(context.Context, kyc.Request) error {
	if v.calls.Add(1) <= v.failures {
		return failure.New(failure.KindTerminal, "provider: rejected")
	}
	return nil
}

func fastOptions(loop *schedule.Loop, verifier kyc.Verifier) workflow.Options {
	cat := catalog.Default()
	return workflow.Options{
		Scheduler: loop,
		Documents: cat.Documents,
		Sources:   cat.PaymentSources,
		Minimum:   decimal.NewFromInt(25000),
		Verifier:  verifier,
		KYC: kyc.Config{
			ProcessingDwell: 5 * time.Millisecond,
			SuccessDwell:    5 * time.Millisecond,
			MaxAttempts:     1,
		},
		Transfer: transfer.Config{
			ProcessingDwell: 10 * time.Millisecond,
			SuccessDwell:    5 * time.Millisecond,
			CaptionInterval: 2 * time.Millisecond,
			MaxAttempts:     1,
		},
	}
}

func runInvestor(t *testing.T, verifier kyc.Verifier, maxRestarts int) (workflow.Snapshot, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loop := schedule.NewLoop(16)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	o, err := workflow.New(ctx, fastOptions(loop, verifier))
	require.NoError(t, err)

	inv := &Investor{
		Name:        "Ada Lovelace",
		Address:     kyc.Address{Country: "GB", Line1: "12 St James's Square", City: "London", PostalCode: "SW1Y 4LB"},
		Amount:      decimal.NewFromInt(30000),
		SourceID:    "sav-9034",
		Loop:        loop,
		Workflow:    o,
		Poll:        2 * time.Millisecond,
		MaxRestarts: maxRestarts,
	}
	return inv.Run(ctx)
}

func TestInvestor_CompletesOnboarding(t *testing.T) {
	snap, err := runInvestor(t, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Progress)
	for _, s := range snap.Stages {
		assert.Equal(t, stage.StatusCompleted, s.Status, "stage %s", s.ID)
	}
	require.NotNil(t, snap.Funding)
	assert.Equal(t, "sav-9034", snap.Funding.BankAccountID)
	assert.Len(t, snap.SignedDocuments, snap.TotalDocuments)
}

func TestInvestor_RestartsFailedSession(t *testing.T) {
	v := &flakyVerifier{failures: 1}
	snap, err := runInvestor(t, v, 2)
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, int32(2), v.calls.Load())
}

func TestInvestor_GivesUp(t *testing.T) {
	v := &flakyVerifier{failures: 10}
	_, err := runInvestor(t, v, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGaveUp))
	assert.Equal(t, int32(2), v.calls.Load())
}
