// Package transfer implements the fund transfer sub-workflow:
// Input -> Confirm -> Processing -> Success. A reference is assigned when the
// transfer is submitted; Processing rotates a status caption until the rail
// call is made.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"investflow/failure"
	"investflow/schedule"
)

// Params wires a session to its collaborators.
type Params struct {
	Scheduler  schedule.Scheduler
	Config     Config
	Sources    []PaymentSource
	Minimum    decimal.Decimal
	Rail       Rail
	OnComplete func(Result)
	OnFailed   func(error)
	Logger     *slog.Logger
}

// Session is one transfer attempt. It is not safe for concurrent use; timer
// callbacks arrive on the scheduler's loop.
type Session struct {
	id         string
	ctx        context.Context
	sched      schedule.Scheduler
	cfg        Config
	sources    []PaymentSource
	minimum    decimal.Decimal
	rail       Rail
	onComplete func(Result)
	onFailed   func(error)
	logger     *slog.Logger

	phase     Phase
	amount    decimal.Decimal
	source    *PaymentSource
	reference string
	caption   int
	attempts  int
	timer     *schedule.Timer
	ticker    *schedule.Timer
	closed    bool
	err       error
}

// NewSession creates a session in the Input phase.
func NewSession(ctx context.Context, p Params) (*Session, error) {
	if p.Scheduler == nil {
		return nil, fmt.Errorf("transfer: scheduler required")
	}
	if len(p.Sources) == 0 {
		return nil, fmt.Errorf("transfer: payment source catalog is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := p.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if len(cfg.Captions) == 0 {
		cfg.Captions = DefaultCaptions()
	}
	rail := p.Rail
	if rail == nil {
		rail = SimulatedRail{}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sources := make([]PaymentSource, len(p.Sources))
	copy(sources, p.Sources)

	id := uuid.NewString()
	return &Session{
		id:         id,
		ctx:        ctx,
		sched:      p.Scheduler,
		cfg:        cfg,
		sources:    sources,
		minimum:    p.Minimum,
		rail:       rail,
		onComplete: p.OnComplete,
		onFailed:   p.OnFailed,
		logger:     logger.With("component", "transfer", "session_id", id),
		phase:      PhaseInput,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error { return s.err }

// SetAmount records the amount to invest. The minimum is checked by Review.
func (s *Session) SetAmount(amount decimal.Decimal) error {
	if err := s.expect(PhaseInput); err != nil {
		return err
	}
	s.amount = amount
	return nil
}

// SelectSource selects a payment source by id.
func (s *Session) SelectSource(id string) error {
	if err := s.expect(PhaseInput); err != nil {
		return err
	}
	for i := range s.sources {
		if s.sources[i].ID == id {
			src := s.sources[i]
			s.source = &src
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownSource, id)
}

// Review moves Input -> Confirm. It requires amount >= minimum and a selected
// source; otherwise it returns a validation error and stays in Input.
func (s *Session) Review() error {
	if err := s.expect(PhaseInput); err != nil {
		return err
	}
	if s.amount.LessThan(s.minimum) {
		return fmt.Errorf("%w: minimum is %s", ErrAmountBelowMinimum, s.minimum.StringFixed(2))
	}
	if s.source == nil {
		return ErrNoSource
	}
	s.phase = PhaseConfirm
	return nil
}

// Edit returns from Confirm to Input so the amount or source can change.
func (s *Session) Edit() error {
	if err := s.expect(PhaseConfirm); err != nil {
		return err
	}
	s.phase = PhaseInput
	return nil
}

// Submit moves Confirm -> Processing and assigns the reference.
func (s *Session) Submit() error {
	if err := s.expect(PhaseConfirm); err != nil {
		return err
	}
	s.reference = NewReference()
	s.phase = PhaseProcessing
	s.caption = 0
	s.timer = s.sched.AfterFunc(s.cfg.ProcessingDwell, s.process)
	s.scheduleCaption()
	s.logger.Info("transfer submitted", "reference", s.reference, "amount", s.amount.String(), "source_id", s.source.ID)
	return nil
}

// Cancel tears the session down. Only Input and Confirm may be cancelled.
func (s *Session) Cancel() error {
	if s.closed {
		return ErrClosed
	}
	switch s.phase {
	case PhaseInput, PhaseConfirm:
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
	v := View{
		ID:        s.id,
		Phase:     s.phase,
		Amount:    s.amount,
		Minimum:   s.minimum,
		Sources:   append([]PaymentSource(nil), s.sources...),
		Reference: s.reference,
		Attempts:  s.attempts,
		Closed:    s.closed,
		Err:       s.err,
	}
	if s.source != nil {
		src := *s.source
		v.Source = &src
	}
	if s.phase == PhaseProcessing {
		v.Caption = s.cfg.Captions[s.caption%len(s.cfg.Captions)]
	}
	return v
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

func (s *Session) scheduleCaption() {
	if s.cfg.CaptionInterval <= 0 {
		return
	}
	s.ticker = s.sched.AfterFunc(s.cfg.CaptionInterval, s.rotate)
}

func (s *Session) rotate() {
	if s.closed || s.phase != PhaseProcessing {
		return
	}
	s.caption++
	s.scheduleCaption()
}

func (s *Session) process() {
	if s.closed || s.phase != PhaseProcessing {
		return
	}
	s.attempts++

	err := s.rail.Transfer(s.ctx, Instruction{Reference: s.reference, Amount: s.amount, Source: *s.source})
	switch {
	case err == nil:
		s.ticker.Stop()
		s.ticker = nil
		s.phase = PhaseSuccess
		s.timer = s.sched.AfterFunc(s.cfg.SuccessDwell, s.complete)
	case failure.IsKind(err, failure.KindTransient) && s.attempts < s.cfg.MaxAttempts:
		s.logger.Warn("transfer attempt failed, retrying", "attempt", s.attempts, "reference", s.reference, "error", err)
		s.timer = s.sched.AfterFunc(s.cfg.RetryBackoff, s.process)
	default:
		s.fail(err)
	}
}

func (s *Session) complete() {
	if s.closed || s.phase != PhaseSuccess {
		return
	}
	res := Result{Amount: s.amount, SourceID: s.source.ID, Reference: s.reference}
	s.teardown()
	if s.onComplete != nil {
		s.onComplete(res)
	}
}

func (s *Session) fail(cause error) {
	if !failure.IsKind(cause, failure.KindTerminal) {
		cause = failure.Wrap(failure.KindTerminal, "transfer: rail rejected transfer", cause)
	}
	s.phase = PhaseFailed
	s.err = cause
	s.logger.Error("transfer failed", "attempts", s.attempts, "reference", s.reference, "error", cause)
	s.teardown()
	if s.onFailed != nil {
		s.onFailed(cause)
	}
}

func (s *Session) teardown() {
	s.closed = true
	s.timer.Stop()
	s.ticker.Stop()
	s.timer = nil
	s.ticker = nil
}
