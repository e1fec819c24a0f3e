package transfer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"investflow/failure"
)

// Phase is the position of a transfer session in its linear wizard.
type Phase string

const (
	PhaseInput      Phase = "input"
	PhaseConfirm    Phase = "confirm"
	PhaseProcessing Phase = "processing"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// PaymentSource is one selectable funding account. The session treats it as
// an opaque option.
type PaymentSource struct {
	ID          string
	DisplayName string
	Last4       string
	AccountType string
}

// Instruction is what a Rail receives once the processing dwell elapses.
type Instruction struct {
	Reference string
	Amount    decimal.Decimal
	Source    PaymentSource
}

// Result is reported to the owner when a transfer succeeds.
type Result struct {
	Amount    decimal.Decimal
	SourceID  string
	Reference string
}

// Rail moves the funds. Errors classified as failure.KindTransient are
// retried; any other error ends the session.
type Rail interface {
	Transfer(ctx context.Context, in Instruction) error
}

// SimulatedRail accepts every instruction.
type SimulatedRail struct{}

func (SimulatedRail) Transfer(context.Context, Instruction) error { return nil }

// Config holds the timings of a session.
type Config struct {
	ProcessingDwell time.Duration
	SuccessDwell    time.Duration
	CaptionInterval time.Duration
	RetryBackoff    time.Duration
	MaxAttempts     int
	Captions        []string
}

// DefaultConfig returns the standard timings and captions.
func DefaultConfig() Config {
	return Config{
		ProcessingDwell: 4 * time.Second,
		SuccessDwell:    2 * time.Second,
		CaptionInterval: time.Second,
		RetryBackoff:    2 * time.Second,
		MaxAttempts:     3,
		Captions:        DefaultCaptions(),
	}
}

// DefaultCaptions returns the status lines shown while a transfer processes.
func DefaultCaptions() []string {
	return []string{
		"Contacting your bank",
		"Verifying account details",
		"Securing your funds",
		"Finalizing allocation",
	}
}

// View is a read-only projection of a session.
type View struct {
	ID        string
	Phase     Phase
	Amount    decimal.Decimal
	Minimum   decimal.Decimal
	Source    *PaymentSource
	Sources   []PaymentSource
	Reference string
	Caption   string
	Attempts  int
	Closed    bool
	Err       error
}

var (
	// ErrWrongPhase is returned when an action does not apply to the current phase.
	ErrWrongPhase = failure.New(failure.KindGuardViolation, "transfer: action not allowed in current phase")
	// ErrNotCancellable is returned when cancelling a session past Confirm.
	ErrNotCancellable = failure.New(failure.KindGuardViolation, "transfer: session cannot be cancelled")
	// ErrClosed is returned when acting on a torn-down session.
	ErrClosed = failure.New(failure.KindGuardViolation, "transfer: session closed")
	// ErrAmountBelowMinimum is returned by Review when the amount is under the minimum investment.
	ErrAmountBelowMinimum = failure.New(failure.KindValidation, "transfer: amount below minimum investment")
	// ErrNoSource is returned by Review when no payment source is selected.
	ErrNoSource = failure.New(failure.KindValidation, "transfer: no payment source selected")
	// ErrUnknownSource is returned when selecting an id outside the catalog.
	ErrUnknownSource = failure.New(failure.KindValidation, "transfer: unknown payment source")
)
