package signing

import (
	"time"

	"investflow/failure"
)

// Document is one legal document that must be acknowledged before funding.
type Document struct {
	ID                string
	Title             string
	SummaryShort      string
	SummaryFull       string
	RequiresSignature bool
}

// DocState is the per-document signing state.
type DocState string

const (
	StateUnsigned         DocState = "unsigned"
	StateSignaturePending DocState = "signature_pending"
	StateSigned           DocState = "signed"
)

// SignatureEvent records that a document was signed or acknowledged. It is
// immutable once created.
type SignatureEvent struct {
	ID         string
	DocumentID string
	SignerName string
	Digest     string
	Receipt    string
	Timestamp  time.Time
}

var (
	// ErrUnknownDocument is returned for ids outside the document catalog.
	ErrUnknownDocument = failure.New(failure.KindGuardViolation, "signing: unknown document")
	// ErrNotPending is returned when confirming a document whose signature was never begun.
	ErrNotPending = failure.New(failure.KindGuardViolation, "signing: signature not pending")
	// ErrSignatureRequired is returned when acknowledging a document that needs a named signature.
	ErrSignatureRequired = failure.New(failure.KindGuardViolation, "signing: document requires a signature")
	// ErrSignerRequired is returned when the signer name is blank.
	ErrSignerRequired = failure.New(failure.KindValidation, "signing: signer name required")
)
