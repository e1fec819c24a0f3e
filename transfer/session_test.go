package transfer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investflow/failure"
	"investflow/schedule"
)

var testSources = []PaymentSource{
	{ID: "chk-1", DisplayName: "Everyday Checking", Last4: "4821", AccountType: "checking"},
	{ID: "sav-1", DisplayName: "High Yield Savings", Last4: "9034", AccountType: "savings"},
}

type recordingRail struct {
	results []error
	seen    []Instruction
}

func (r *recordingRail) Transfer(_ context.Context, in Instruction) error {
	r.seen = append(r.seen, in)
	if len(r.results) == 0 {
		return nil
	}
	err := r.results[0]
	r.results = r.results[1:]
	return err
}

type harness struct {
	clock     *schedule.Manual
	session   *Session
	completed []Result
	failed    []error
}

func newHarness(t *testing.T, rail Rail) *harness {
	t.Helper()
	h := &harness{clock: schedule.NewManual(time.Unix(0, 0))}
	s, err := NewSession(context.Background(), Params{
		Scheduler:  h.clock,
		Config:     DefaultConfig(),
		Sources:    testSources,
		Minimum:    decimal.NewFromInt(25000),
		Rail:       rail,
		OnComplete: func(r Result) { h.completed = append(h.completed, r) },
		OnFailed:   func(err error) { h.failed = append(h.failed, err) },
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func (h *harness) toConfirm(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.SetAmount(decimal.NewFromInt(30000)))
	require.NoError(t, h.session.SelectSource("sav-1"))
	require.NoError(t, h.session.Review())
}

func TestNewSession_RequiresSources(t *testing.T) {
	_, err := NewSession(context.Background(), Params{Scheduler: schedule.NewManual(time.Now())})
	require.Error(t, err)
}

func TestReview_MinimumBoundary(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.SelectSource("chk-1"))

	require.NoError(t, h.session.SetAmount(decimal.NewFromInt(24999)))
	err := h.session.Review()
	require.ErrorIs(t, err, ErrAmountBelowMinimum)
	assert.True(t, failure.IsKind(err, failure.KindValidation))
	assert.Equal(t, PhaseInput, h.session.Phase())

	require.NoError(t, h.session.SetAmount(decimal.NewFromInt(25000)))
	require.NoError(t, h.session.Review())
	assert.Equal(t, PhaseConfirm, h.session.Phase())
}

func TestReview_FractionalAmountBelowMinimum(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.SelectSource("chk-1"))
	require.NoError(t, h.session.SetAmount(decimal.RequireFromString("24999.99")))
	assert.ErrorIs(t, h.session.Review(), ErrAmountBelowMinimum)
}

func TestReview_RequiresSource(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.SetAmount(decimal.NewFromInt(50000)))
	assert.ErrorIs(t, h.session.Review(), ErrNoSource)

	err := h.session.SelectSource("brokerage-9")
	require.ErrorIs(t, err, ErrUnknownSource)
	assert.True(t, failure.IsKind(err, failure.KindValidation))
	assert.Nil(t, h.session.View().Source)
}

func TestSession_EditReturnsToInput(t *testing.T) {
	h := newHarness(t, nil)
	h.toConfirm(t)
	assert.ErrorIs(t, h.session.SetAmount(decimal.NewFromInt(1)), ErrWrongPhase)

	require.NoError(t, h.session.Edit())
	require.NoError(t, h.session.SetAmount(decimal.NewFromInt(40000)))
	require.NoError(t, h.session.Review())
	assert.True(t, h.session.View().Amount.Equal(decimal.NewFromInt(40000)))
}

func TestSession_HappyPath(t *testing.T) {
	rail := &recordingRail{}
	h := newHarness(t, rail)
	h.toConfirm(t)
	assert.Empty(t, h.session.View().Reference)

	require.NoError(t, h.session.Submit())
	view := h.session.View()
	assert.Equal(t, PhaseProcessing, view.Phase)
	assert.True(t, strings.HasPrefix(view.Reference, ReferencePrefix))
	assert.Equal(t, DefaultCaptions()[0], view.Caption)

	h.clock.Advance(time.Second)
	assert.Equal(t, DefaultCaptions()[1], h.session.View().Caption)
	h.clock.Advance(time.Second)
	assert.Equal(t, DefaultCaptions()[2], h.session.View().Caption)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, PhaseSuccess, h.session.Phase())
	assert.Empty(t, h.session.View().Caption)
	require.Len(t, rail.seen, 1)
	assert.Equal(t, view.Reference, rail.seen[0].Reference)
	assert.Equal(t, "sav-1", rail.seen[0].Source.ID)

	h.clock.Advance(2 * time.Second)
	require.Len(t, h.completed, 1)
	assert.True(t, h.completed[0].Amount.Equal(decimal.NewFromInt(30000)))
	assert.Equal(t, "sav-1", h.completed[0].SourceID)
	assert.Equal(t, view.Reference, h.completed[0].Reference)
	assert.True(t, h.session.View().Closed)
	assert.Zero(t, h.clock.Pending())
}

func TestSession_CaptionsWrap(t *testing.T) {
	h := newHarness(t, &recordingRail{results: []error{
		failure.New(failure.KindTransient, "rail: busy"),
		failure.New(failure.KindTransient, "rail: busy"),
	}})
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())

	captions := DefaultCaptions()
	h.clock.Advance(time.Duration(len(captions)+1) * time.Second)
	assert.Equal(t, PhaseProcessing, h.session.Phase())
	assert.Equal(t, captions[1], h.session.View().Caption)
}

func TestSession_CancelRules(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Cancel())
	assert.ErrorIs(t, h.session.Cancel(), ErrClosed)

	h = newHarness(t, nil)
	h.toConfirm(t)
	require.NoError(t, h.session.Cancel())
	h.clock.Advance(time.Minute)
	assert.Empty(t, h.completed)

	h = newHarness(t, nil)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())
	assert.ErrorIs(t, h.session.Cancel(), ErrNotCancellable)
	h.clock.Advance(4 * time.Second)
	assert.ErrorIs(t, h.session.Cancel(), ErrNotCancellable)
	h.clock.Advance(2 * time.Second)
	assert.Len(t, h.completed, 1)
}

func TestSession_CloseDuringProcessing(t *testing.T) {
	h := newHarness(t, nil)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())
	h.session.Close()

	assert.Zero(t, h.clock.Advance(time.Minute))
	assert.Empty(t, h.completed)
	assert.Empty(t, h.failed)
}

func TestSession_RetriesThenFails(t *testing.T) {
	transient := failure.New(failure.KindTransient, "rail: timeout")
	rail := &recordingRail{results: []error{transient, transient, transient}}
	h := newHarness(t, rail)
	h.toConfirm(t)
	require.NoError(t, h.session.Submit())

	h.clock.Advance(time.Minute)
	assert.Len(t, rail.seen, 3)
	assert.Equal(t, PhaseFailed, h.session.Phase())
	require.Len(t, h.failed, 1)
	assert.True(t, failure.IsKind(h.failed[0], failure.KindTerminal))
	assert.True(t, errors.Is(h.failed[0], transient))
	assert.Empty(t, h.completed)
	assert.Zero(t, h.clock.Pending())
}

func TestNewReference(t *testing.T) {
	ref := NewReference()
	require.True(t, strings.HasPrefix(ref, ReferencePrefix))
	suffix := strings.TrimPrefix(ref, ReferencePrefix)
	assert.Len(t, suffix, 10)
	for _, r := range suffix {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z'), "unexpected rune %q", r)
	}
	assert.NotEqual(t, ref, NewReference())
}
