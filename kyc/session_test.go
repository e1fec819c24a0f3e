package kyc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investflow/failure"
	"investflow/schedule"
)

type scriptedVerifier struct {
	results []error
	calls   int
}

func (v *scriptedVerifier) Verify(context.Context, Request) error {
	v.calls++
	if len(v.results) == 0 {
		return nil
	}
	err := v.results[0]
	v.results = v.results[1:]
	return err
}

type harness struct {
	clock    *schedule.Manual
	session  *Session
	verified int
	failed   []error
}

func newHarness(t *testing.T, verifier Verifier) *harness {
	t.Helper()
	h := &harness{clock: schedule.NewManual(time.Unix(0, 0))}
	s, err := NewSession(context.Background(), Params{
		Scheduler:  h.clock,
		Config:     DefaultConfig(),
		Profile:    Profile{FullName: "Ada Lovelace", Email: "ada@example.com"},
		Verifier:   verifier,
		OnVerified: func() { h.verified++ },
		OnFailed:   func(err error) { h.failed = append(h.failed, err) },
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func fullAddress() Address {
	return Address{Country: "US", Line1: "1 Main St", City: "Springfield", PostalCode: "12345"}
}

func (h *harness) toConfirm(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Start())
	require.NoError(t, h.session.SetAddress(fullAddress()))
	require.NoError(t, h.session.SubmitAddress())
	require.Equal(t, PhaseConfirm, h.session.Phase())
}

func TestSession_HappyPath(t *testing.T) {
	h := newHarness(t, nil)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())
	assert.Equal(t, PhaseProcessing, h.session.Phase())

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, PhaseSuccess, h.session.Phase())
	assert.Zero(t, h.verified, "completion waits for the success dwell")

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, h.verified)
	assert.True(t, h.session.View().Closed)
	assert.Zero(t, h.clock.Pending())
}

func TestSession_NoSkipping(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.session.SubmitAddress(), ErrWrongPhase)
	assert.ErrorIs(t, h.session.Submit(), ErrWrongPhase)
	require.NoError(t, h.session.Start())
	assert.ErrorIs(t, h.session.Submit(), ErrWrongPhase)
	assert.ErrorIs(t, h.session.Start(), ErrWrongPhase)
}

func TestSession_AddressValidation(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start())

	addr := fullAddress()
	addr.City = "  "
	addr.PostalCode = ""
	require.NoError(t, h.session.SetAddress(addr))

	err := h.session.SubmitAddress()
	require.ErrorIs(t, err, ErrAddressIncomplete)
	assert.True(t, failure.IsKind(err, failure.KindValidation))
	assert.Contains(t, err.Error(), "city, postal code")
	assert.Equal(t, PhaseAddressCapture, h.session.Phase())

	addr = fullAddress()
	addr.Line2 = ""
	require.NoError(t, h.session.SetAddress(addr))
	require.NoError(t, h.session.SubmitAddress(), "apartment is optional")
}

func TestSession_CancelRules(t *testing.T) {
	for _, phase := range []Phase{PhaseIntake, PhaseAddressCapture, PhaseConfirm} {
		t.Run(string(phase), func(t *testing.T) {
			h := newHarness(t, nil)
			switch phase {
			case PhaseAddressCapture:
				require.NoError(t, h.session.Start())
			case PhaseConfirm:
				h.toConfirm(t)
			}
			require.NoError(t, h.session.Cancel())
			assert.True(t, h.session.View().Closed)
			assert.ErrorIs(t, h.session.Cancel(), ErrClosed)
			assert.ErrorIs(t, h.session.Start(), ErrClosed)
		})
	}

	h := newHarness(t, nil)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())
	assert.ErrorIs(t, h.session.Cancel(), ErrNotCancellable)

	h.clock.Advance(3 * time.Second)
	assert.ErrorIs(t, h.session.Cancel(), ErrNotCancellable)
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, h.verified)
}

func TestSession_CloseSuppressesPendingCallbacks(t *testing.T) {
	h := newHarness(t, nil)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())
	h.clock.Advance(3 * time.Second)

	h.session.Close()
	h.clock.Advance(time.Minute)
	assert.Zero(t, h.verified)
	assert.Empty(t, h.failed)
}

func TestSession_TransientRetry(t *testing.T) {
	transient := failure.New(failure.KindTransient, "provider: timeout")
	v := &scriptedVerifier{results: []error{transient, nil}}
	h := newHarness(t, v)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, PhaseProcessing, h.session.Phase())
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, PhaseSuccess, h.session.Phase())
	h.clock.Advance(2 * time.Second)

	assert.Equal(t, 2, v.calls)
	assert.Equal(t, 1, h.verified)
}

func TestSession_RetriesExhausted(t *testing.T) {
	transient := failure.New(failure.KindTransient, "provider: timeout")
	v := &scriptedVerifier{results: []error{transient, transient, transient}}
	h := newHarness(t, v)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())

	h.clock.Advance(time.Minute)
	assert.Equal(t, 3, v.calls)
	assert.Equal(t, PhaseFailed, h.session.Phase())
	require.Len(t, h.failed, 1)
	assert.True(t, failure.IsKind(h.failed[0], failure.KindTerminal))
	assert.True(t, errors.Is(h.failed[0], transient))
	assert.Zero(t, h.verified)
}

func TestSession_TerminalFailure(t *testing.T) {
	v := &scriptedVerifier{results: []error{errors.New("document mismatch")}}
	h := newHarness(t, v)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, PhaseFailed, h.session.Phase())
	assert.True(t, failure.IsKind(h.session.Err(), failure.KindTerminal))
	assert.Len(t, h.failed, 1)
}
