// Package workflow owns the onboarding state machine: it sequences the four
// stages, derives their statuses and overall progress, opens the sub-workflow
// sessions, and applies their completion callbacks to the workflow state.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"investflow/failure"
	"investflow/kyc"
	"investflow/schedule"
	"investflow/signing"
	"investflow/stage"
	"investflow/transfer"
)

var (
	// ErrStageNotEligible is returned when acting on a locked stage.
	ErrStageNotEligible = failure.New(failure.KindGuardViolation, "workflow: stage not eligible")
	// ErrStageNotEntered is returned when signing before the document list was opened.
	ErrStageNotEntered = failure.New(failure.KindGuardViolation, "workflow: stage not entered")
	// ErrSessionActive is returned when entering a stage while a session is open.
	ErrSessionActive = failure.New(failure.KindGuardViolation, "workflow: session already active")
	// ErrNoActiveSession is returned when there is no session to act on.
	ErrNoActiveSession = failure.New(failure.KindGuardViolation, "workflow: no active session")
	// ErrClosed is returned after Close.
	ErrClosed = failure.New(failure.KindGuardViolation, "workflow: closed")
)

// Options configures an Orchestrator. Scheduler, Documents, and Sources are
// required; everything else has a default.
type Options struct {
	Scheduler schedule.Scheduler
	Documents []signing.Document
	Sources   []transfer.PaymentSource
	Minimum   decimal.Decimal

	Registry *stage.Registry
	Sink     Sink
	Logger   *slog.Logger
	Meter    metric.Meter
	Receipts *signing.ReceiptIssuer

	Profile  kyc.Profile
	KYC      kyc.Config
	Verifier kyc.Verifier
	Transfer transfer.Config
	Rail     transfer.Rail
}

// Orchestrator is the single mutation point of one onboarding. It is not safe
// for concurrent use: drive it, and the scheduler it was given, from one event
// loop.
type Orchestrator struct {
	id       string
	ctx      context.Context
	opts     Options
	registry *stage.Registry
	desk     *signing.Desk
	logger   *slog.Logger
	metrics  *metrics
	now      func() time.Time
	idGen    func() string

	state       *state
	signingOpen bool
	identity    *kyc.Session
	funding     *transfer.Session
	closed      bool
}

// New creates an orchestrator with Commit as the current stage. ctx is passed
// to the sink, verifier, and rail.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("workflow: scheduler required")
	}
	if len(opts.Sources) == 0 {
		return nil, fmt.Errorf("workflow: payment source catalog is empty")
	}
	if opts.Registry == nil {
		opts.Registry = stage.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m, err := newMetrics(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("workflow: metrics: %w", err)
	}

	id := uuid.NewString()
	o := &Orchestrator{
		id:       id,
		ctx:      ctx,
		opts:     opts,
		registry: opts.Registry,
		logger:   opts.Logger.With("component", "workflow", "workflow_id", id),
		metrics:  m,
		now:      time.Now,
		idGen:    func() string { return uuid.NewString() },
		state:    newState(),
	}

	desk, err := signing.NewDesk(opts.Documents, o.documentSigned)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	if opts.Receipts != nil {
		desk.WithReceipts(opts.Receipts)
	}
	o.desk = desk
	return o, nil
}

// WithClock overrides the time source for events and signatures.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	o.desk.WithClock(now)
	return o
}

// WithIDGenerator overrides the event and signature id source.
func (o *Orchestrator) WithIDGenerator(gen func() string) *Orchestrator {
	o.idGen = gen
	o.desk.WithIDGenerator(gen)
	return o
}

// ID returns the workflow id.
func (o *Orchestrator) ID() string { return o.id }

// StageStatus derives the status of one stage.
func (o *Orchestrator) StageStatus(id stage.ID) (stage.Status, error) {
	return o.registry.Status(id, o.facts())
}

// Stages derives the status of every stage in order.
func (o *Orchestrator) Stages() ([]stage.StageStatus, error) {
	return o.registry.Statuses(o.facts())
}

// Progress returns overall completion in 0..100.
func (o *Orchestrator) Progress() int {
	f := o.facts()
	return Progress(f.Committed, f.SignedDocuments, f.TotalDocuments, f.IdentityVerified, f.Transferred)
}

// EnterStage performs the entry action of a current stage: Commit records the
// commitment, Signing opens the document list, KYC and Wire open a session.
// Entering a completed stage is a no-op.
func (o *Orchestrator) EnterStage(id stage.ID) error {
	st, err := o.eligible(id)
	if err != nil || st == stage.StatusCompleted {
		return err
	}

	switch id {
	case stage.Commit:
		o.emit(Event{Type: EventStageEntered, Stage: id})
		o.state.commit()
		o.logger.Info("investor committed")
		o.emit(Event{Type: EventCommitted, Stage: id})
		o.completed(stage.Commit)
		return nil
	case stage.Signing:
		if o.signingOpen {
			return nil
		}
		o.signingOpen = true
		o.emit(Event{Type: EventStageEntered, Stage: id})
		return nil
	case stage.KYC:
		return o.openIdentity()
	case stage.Wire:
		return o.openFunding()
	default:
		return fmt.Errorf("%w: %s has no entry action", stage.ErrUnknown, id)
	}
}

// OnDocumentSigned signs a document in one step: named signature documents are
// begun and confirmed with signerName, the rest are acknowledged. Signing an
// already signed document is a no-op.
func (o *Orchestrator) OnDocumentSigned(docID, signerName string) error {
	if err := o.signingEligible(); err != nil {
		return err
	}
	doc, st, err := o.desk.Review(docID)
	if err != nil {
		return err
	}
	if st == signing.StateSigned {
		return nil
	}
	if !doc.RequiresSignature {
		_, err = o.desk.Acknowledge(docID)
		return err
	}
	if err := o.desk.Begin(docID); err != nil {
		return err
	}
	_, err = o.desk.Confirm(docID, signerName)
	return err
}

// BeginSignature opens the signature step for a document.
func (o *Orchestrator) BeginSignature(docID string) error {
	if err := o.signingEligible(); err != nil {
		return err
	}
	return o.desk.Begin(docID)
}

// ConfirmSignature signs a document whose signature step is open.
func (o *Orchestrator) ConfirmSignature(docID, signerName string) (signing.SignatureEvent, error) {
	if err := o.signingEligible(); err != nil {
		return signing.SignatureEvent{}, err
	}
	return o.desk.Confirm(docID, signerName)
}

// AbandonSignature closes an open signature step without signing.
func (o *Orchestrator) AbandonSignature(docID string) error {
	if err := o.signingEligible(); err != nil {
		return err
	}
	return o.desk.Abandon(docID)
}

// AcknowledgeDocument signs a document that needs no named signature.
func (o *Orchestrator) AcknowledgeDocument(docID string) (signing.SignatureEvent, error) {
	if err := o.signingEligible(); err != nil {
		return signing.SignatureEvent{}, err
	}
	return o.desk.Acknowledge(docID)
}

// ReviewDocument returns a document and its signing state. It is available in
// every stage and never changes state.
func (o *Orchestrator) ReviewDocument(docID string) (signing.Document, signing.DocState, error) {
	return o.desk.Review(docID)
}

// Documents returns the document catalog in display order.
func (o *Orchestrator) Documents() []signing.Document {
	return o.desk.Documents()
}

// OnIdentityVerified marks the investor's identity as verified and closes any
// open verification session.
func (o *Orchestrator) OnIdentityVerified() error {
	st, err := o.eligible(stage.KYC)
	if err != nil || st == stage.StatusCompleted {
		return err
	}
	if o.identity != nil {
		o.identity.Close()
		o.identity = nil
	}
	o.state.verifyIdentity()
	o.logger.Info("identity verified")
	o.emit(Event{Type: EventIdentityVerified, Stage: stage.KYC})
	o.completed(stage.KYC)
	return nil
}

// OnTransferComplete records the funded amount and account and closes any
// open transfer session. The amount must meet the minimum and the account
// must be in the payment source catalog.
func (o *Orchestrator) OnTransferComplete(amount decimal.Decimal, bankAccountID string) error {
	return o.recordFunding(Funding{Amount: amount, BankAccountID: bankAccountID})
}

// CancelActiveSession cancels the open KYC or Wire session. Sessions that are
// processing or succeeded cannot be cancelled and stay open.
func (o *Orchestrator) CancelActiveSession() error {
	if o.closed {
		return ErrClosed
	}
	switch {
	case o.identity != nil:
		if err := o.identity.Cancel(); err != nil {
			return err
		}
		o.identity = nil
		o.sessionCancelled(stage.KYC)
		return nil
	case o.funding != nil:
		if err := o.funding.Cancel(); err != nil {
			return err
		}
		o.funding = nil
		o.sessionCancelled(stage.Wire)
		return nil
	default:
		return ErrNoActiveSession
	}
}

// Identity returns the open verification session.
func (o *Orchestrator) Identity() (*kyc.Session, error) {
	if o.identity == nil {
		return nil, ErrNoActiveSession
	}
	return o.identity, nil
}

// Transfer returns the open transfer session.
func (o *Orchestrator) Transfer() (*transfer.Session, error) {
	if o.funding == nil {
		return nil, ErrNoActiveSession
	}
	return o.funding, nil
}

// Close tears down any open session. Pending timer callbacks never fire
// afterwards.
func (o *Orchestrator) Close() {
	if o.closed {
		return
	}
	o.closed = true
	if o.identity != nil {
		o.identity.Close()
		o.identity = nil
	}
	if o.funding != nil {
		o.funding.Close()
		o.funding = nil
	}
}

func (o *Orchestrator) facts() stage.Facts {
	return o.state.facts(len(o.opts.Documents))
}

// eligible rejects unknown and locked stages.
func (o *Orchestrator) eligible(id stage.ID) (stage.Status, error) {
	if o.closed {
		return "", ErrClosed
	}
	st, err := o.StageStatus(id)
	if err != nil {
		return "", err
	}
	if st == stage.StatusLocked {
		o.metrics.guardRejected(o.ctx, id)
		o.logger.Debug("stage not eligible", "stage", id)
		return st, fmt.Errorf("%w: %s is locked", ErrStageNotEligible, id)
	}
	return st, nil
}

func (o *Orchestrator) signingEligible() error {
	st, err := o.eligible(stage.Signing)
	if err != nil {
		return err
	}
	if st == stage.StatusCurrent && !o.signingOpen {
		return fmt.Errorf("%w: %s", ErrStageNotEntered, stage.Signing)
	}
	return nil
}

func (o *Orchestrator) activeStage() (stage.ID, bool) {
	switch {
	case o.identity != nil:
		return stage.KYC, true
	case o.funding != nil:
		return stage.Wire, true
	}
	return "", false
}

func (o *Orchestrator) openIdentity() error {
	if active, ok := o.activeStage(); ok {
		return fmt.Errorf("%w: %s", ErrSessionActive, active)
	}
	s, err := kyc.NewSession(o.ctx, kyc.Params{
		Scheduler:  o.opts.Scheduler,
		Config:     o.opts.KYC,
		Profile:    o.opts.Profile,
		Verifier:   o.opts.Verifier,
		OnVerified: o.identityVerified,
		OnFailed:   func(err error) { o.sessionFailed(stage.KYC, err) },
		Logger:     o.logger,
	})
	if err != nil {
		return fmt.Errorf("workflow: open identity session: %w", err)
	}
	o.identity = s
	o.emit(Event{Type: EventStageEntered, Stage: stage.KYC, SessionID: s.ID()})
	return nil
}

func (o *Orchestrator) openFunding() error {
	if active, ok := o.activeStage(); ok {
		return fmt.Errorf("%w: %s", ErrSessionActive, active)
	}
	s, err := transfer.NewSession(o.ctx, transfer.Params{
		Scheduler:  o.opts.Scheduler,
		Config:     o.opts.Transfer,
		Sources:    o.opts.Sources,
		Minimum:    o.opts.Minimum,
		Rail:       o.opts.Rail,
		OnComplete: o.transferSucceeded,
		OnFailed:   func(err error) { o.sessionFailed(stage.Wire, err) },
		Logger:     o.logger,
	})
	if err != nil {
		return fmt.Errorf("workflow: open transfer session: %w", err)
	}
	o.funding = s
	o.emit(Event{Type: EventStageEntered, Stage: stage.Wire, SessionID: s.ID()})
	return nil
}

func (o *Orchestrator) documentSigned(ev signing.SignatureEvent) {
	if !o.state.markSigned(ev.DocumentID) {
		return
	}
	o.logger.Info("document signed", "document_id", ev.DocumentID, "signed", len(o.state.signed), "total", len(o.opts.Documents))
	o.emit(Event{
		Type:       EventDocumentSigned,
		Stage:      stage.Signing,
		DocumentID: ev.DocumentID,
		SignerName: ev.SignerName,
		Digest:     ev.Digest,
		Receipt:    ev.Receipt,
	})
	if len(o.state.signed) == len(o.opts.Documents) {
		o.completed(stage.Signing)
	}
}

func (o *Orchestrator) identityVerified() {
	o.identity = nil
	if err := o.OnIdentityVerified(); err != nil {
		o.logger.Error("apply identity verification", "error", err)
	}
}

func (o *Orchestrator) transferSucceeded(res transfer.Result) {
	o.funding = nil
	err := o.recordFunding(Funding{Amount: res.Amount, BankAccountID: res.SourceID, Reference: res.Reference})
	if err != nil {
		o.logger.Error("apply transfer result", "reference", res.Reference, "error", err)
	}
}

func (o *Orchestrator) recordFunding(f Funding) error {
	st, err := o.eligible(stage.Wire)
	if err != nil || st == stage.StatusCompleted {
		return err
	}
	if f.Amount.LessThan(o.opts.Minimum) {
		return fmt.Errorf("%w: minimum is %s", transfer.ErrAmountBelowMinimum, o.opts.Minimum.StringFixed(2))
	}
	if !o.knownSource(f.BankAccountID) {
		return fmt.Errorf("%w: %s", transfer.ErrUnknownSource, f.BankAccountID)
	}
	if o.funding != nil {
		o.funding.Close()
		o.funding = nil
	}
	o.state.recordFunding(f)
	o.logger.Info("transfer completed", "amount", f.Amount.String(), "account_id", f.BankAccountID, "reference", f.Reference)
	o.emit(Event{
		Type:      EventTransferCompleted,
		Stage:     stage.Wire,
		Amount:    f.Amount,
		AccountID: f.BankAccountID,
		Reference: f.Reference,
	})
	o.completed(stage.Wire)
	return nil
}

func (o *Orchestrator) knownSource(id string) bool {
	for _, src := range o.opts.Sources {
		if src.ID == id {
			return true
		}
	}
	return false
}

func (o *Orchestrator) sessionCancelled(id stage.ID) {
	o.metrics.sessionCancelled(o.ctx, id)
	o.logger.Info("session cancelled", "stage", id)
	o.emit(Event{Type: EventSessionCancelled, Stage: id})
}

func (o *Orchestrator) sessionFailed(id stage.ID, err error) {
	switch id {
	case stage.KYC:
		o.identity = nil
	case stage.Wire:
		o.funding = nil
	}
	o.metrics.sessionFailed(o.ctx, id)
	o.logger.Error("session failed", "stage", id, "error", err)
	o.emit(Event{Type: EventSessionFailed, Stage: id, Reason: err.Error()})
}

func (o *Orchestrator) completed(id stage.ID) {
	o.metrics.stageCompleted(o.ctx, id)
	o.logger.Info("stage completed", "stage", id, "progress", o.Progress())
}

func (o *Orchestrator) emit(ev Event) {
	ev.ID = o.idGen()
	ev.WorkflowID = o.id
	ev.Progress = o.Progress()
	ev.OccurredAt = o.now().UTC()
	if o.opts.Sink == nil {
		return
	}
	if err := o.opts.Sink.Record(o.ctx, ev); err != nil {
		o.logger.Warn("record event", "type", ev.Type, "error", err)
	}
}
