package kyc

import (
	"context"
	"time"

	"investflow/failure"
)

// Phase is the position of a verification session in its linear wizard.
type Phase string

const (
	PhaseIntake         Phase = "intake"
	PhaseAddressCapture Phase = "address_capture"
	PhaseConfirm        Phase = "confirm"
	PhaseProcessing     Phase = "processing"
	PhaseSuccess        Phase = "success"
	PhaseFailed         Phase = "failed"
)

// Address is the residential address captured during verification. Line2
// (apartment or unit) is optional.
type Address struct {
	Country    string
	Line1      string
	Line2      string
	City       string
	PostalCode string
}

// Profile is investor data already on file, shown on the confirmation step.
type Profile struct {
	FullName    string
	Email       string
	DateOfBirth string
}

// Request is what a Verifier receives.
type Request struct {
	SessionID string
	Profile   Profile
	Address   Address
}

// Verifier performs the external identity check. Errors classified as
// failure.KindTransient are retried; any other error ends the session.
type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// SimulatedVerifier accepts every request.
type SimulatedVerifier struct{}

func (SimulatedVerifier) Verify(context.Context, Request) error { return nil }

// Config holds the dwell and retry timings of a session.
type Config struct {
	ProcessingDwell time.Duration
	SuccessDwell    time.Duration
	RetryBackoff    time.Duration
	MaxAttempts     int
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		ProcessingDwell: 3 * time.Second,
		SuccessDwell:    2 * time.Second,
		RetryBackoff:    2 * time.Second,
		MaxAttempts:     3,
	}
}

// View is a read-only projection of a session.
type View struct {
	ID       string
	Phase    Phase
	Address  Address
	Profile  Profile
	Attempts int
	Closed   bool
	Err      error
}

var (
	// ErrWrongPhase is returned when an action does not apply to the current phase.
	ErrWrongPhase = failure.New(failure.KindGuardViolation, "kyc: action not allowed in current phase")
	// ErrNotCancellable is returned when cancelling a session that is processing or succeeded.
	ErrNotCancellable = failure.New(failure.KindGuardViolation, "kyc: session cannot be cancelled")
	// ErrClosed is returned when acting on a torn-down session.
	ErrClosed = failure.New(failure.KindGuardViolation, "kyc: session closed")
	// ErrAddressIncomplete is returned when required address fields are blank.
	ErrAddressIncomplete = failure.New(failure.KindValidation, "kyc: address incomplete")
)
