// Package kyc implements the identity verification sub-workflow:
// Intake -> AddressCapture -> Confirm -> Processing -> Success. Processing and
// Success advance on timers and cannot be cancelled.
package kyc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"investflow/failure"
	"investflow/schedule"
)

// Params wires a session to its collaborators.
type Params struct {
	Scheduler  schedule.Scheduler
	Config     Config
	Profile    Profile
	Verifier   Verifier
	OnVerified func()
	OnFailed   func(error)
	Logger     *slog.Logger
}

// Session is one identity verification attempt. It is not safe for concurrent
// use; timer callbacks arrive on the scheduler's loop.
type Session struct {
	id         string
	ctx        context.Context
	sched      schedule.Scheduler
	cfg        Config
	verifier   Verifier
	onVerified func()
	onFailed   func(error)
	logger     *slog.Logger

	phase    Phase
	address  Address
	profile  Profile
	attempts int
	timer    *schedule.Timer
	closed   bool
	err      error
}

// NewSession creates a session in the Intake phase.
func NewSession(ctx context.Context, p Params) (*Session, error) {
	if p.Scheduler == nil {
		return nil, fmt.Errorf("kyc: scheduler required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := p.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	verifier := p.Verifier
	if verifier == nil {
		verifier = SimulatedVerifier{}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Session{
		id:         id,
		ctx:        ctx,
		sched:      p.Scheduler,
		cfg:        cfg,
		verifier:   verifier,
		onVerified: p.OnVerified,
		onFailed:   p.OnFailed,
		logger:     logger.With("component", "kyc", "session_id", id),
		phase:      PhaseIntake,
		profile:    p.Profile,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error { return s.err }

// Start leaves Intake for AddressCapture.
func (s *Session) Start() error {
	if err := s.expect(PhaseIntake); err != nil {
		return err
	}
	s.phase = PhaseAddressCapture
	return nil
}

// SetAddress stores the address being captured. Validation happens on SubmitAddress.
func (s *Session) SetAddress(addr Address) error {
	if err := s.expect(PhaseAddressCapture); err != nil {
		return err
	}
	s.address = addr
	return nil
}

// SubmitAddress moves to Confirm once country, line 1, city, and postal code are present.
func (s *Session) SubmitAddress() error {
	if err := s.expect(PhaseAddressCapture); err != nil {
		return err
	}
	if missing := s.address.missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrAddressIncomplete, strings.Join(missing, ", "))
	}
	s.phase = PhaseConfirm
	return nil
}

// Submit leaves Confirm and starts processing. From here the session runs to
// completion on its own.
func (s *Session) Submit() error {
	if err := s.expect(PhaseConfirm); err != nil {
		return err
	}
	s.phase = PhaseProcessing
	s.timer = s.sched.AfterFunc(s.cfg.ProcessingDwell, s.process)
	return nil
}

// Cancel tears the session down without side effects. Only Intake,
// AddressCapture, and Confirm may be cancelled.
func (s *Session) Cancel() error {
	if s.closed {
		return ErrClosed
	}
	switch s.phase {
	case PhaseIntake, PhaseAddressCapture, PhaseConfirm:
		s.teardown()
		return nil
	default:
		return fmt.Errorf("%w: phase %s", ErrNotCancellable, s.phase)
	}
}

// Close tears the session down regardless of phase. No callback fires afterwards.
func (s *Session) Close() {
	s.teardown()
}

// View returns a read-only projection.
func (s *Session) View() View {
	return View{
		ID:       s.id,
		Phase:    s.phase,
		Address:  s.address,
		Profile:  s.profile,
		Attempts: s.attempts,
		Closed:   s.closed,
		Err:      s.err,
	}
}

func (s *Session) expect(phase Phase) error {
	if s.closed {
		return ErrClosed
	}
	if s.phase != phase {
		return fmt.Errorf("%w: in %s, expected %s", ErrWrongPhase, s.phase, phase)
	}
	return nil
}

func (s *Session) process() {
	if s.closed || s.phase != PhaseProcessing {
		return
	}
	s.attempts++

	err := s.verifier.Verify(s.ctx, Request{SessionID: s.id, Profile: s.profile, Address: s.address})
	switch {
	case err == nil:
		s.phase = PhaseSuccess
		s.timer = s.sched.AfterFunc(s.cfg.SuccessDwell, s.complete)
	case failure.IsKind(err, failure.KindTransient) && s.attempts < s.cfg.MaxAttempts:
		s.logger.Warn("verification attempt failed, retrying", "attempt", s.attempts, "error", err)
		s.timer = s.sched.AfterFunc(s.cfg.RetryBackoff, s.process)
	default:
		s.fail(err)
	}
}

func (s *Session) complete() {
	if s.closed || s.phase != PhaseSuccess {
		return
	}
	s.teardown()
	if s.onVerified != nil {
		s.onVerified()
	}
}

func (s *Session) fail(cause error) {
	if !failure.IsKind(cause, failure.KindTerminal) {
		cause = failure.Wrap(failure.KindTerminal, "kyc: verification failed", cause)
	}
	s.phase = PhaseFailed
	s.err = cause
	s.logger.Error("verification failed", "attempts", s.attempts, "error", cause)
	s.teardown()
	if s.onFailed != nil {
		s.onFailed(cause)
	}
}

func (s *Session) teardown() {
	s.closed = true
	s.timer.Stop()
	s.timer = nil
}

func (a Address) missing() []string {
	var out []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"country", a.Country},
		{"address", a.Line1},
		{"city", a.City},
		{"postal code", a.PostalCode},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}
