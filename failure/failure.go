// Package failure classifies onboarding errors into the small set of kinds the
// presentation layer reacts to differently.
package failure

import "errors"

// Kind groups errors by how a caller is expected to respond.
type Kind string

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = ""
	// KindGuardViolation marks misuse: acting on a locked stage or an inactive session.
	KindGuardViolation Kind = "guard_violation"
	// KindValidation marks user-correctable input problems. State is never mutated.
	KindValidation Kind = "validation"
	// KindTransient marks a retryable failure of an external call.
	KindTransient Kind = "transient"
	// KindTerminal marks a failure that requires restarting the sub-workflow.
	KindTerminal Kind = "terminal"
)

// Error is a classified error. Package sentinels are *Error values so they can
// be matched with errors.Is and classified with KindOf after wrapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New returns a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns a classified error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
