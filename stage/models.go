package stage

import (
	"fmt"

	"investflow/failure"
)

// ID identifies one of the fixed onboarding stages.
type ID string

const (
	Commit  ID = "commit"
	Signing ID = "signing"
	KYC     ID = "kyc"
	Wire    ID = "wire"
)

// Status is derived on every read; it is never stored.
type Status string

const (
	StatusLocked    Status = "locked"
	StatusCurrent   Status = "current"
	StatusCompleted Status = "completed"
)

// ErrUnknown is returned for stage ids the registry does not define.
var ErrUnknown = failure.New(failure.KindGuardViolation, "stage: unknown stage")

// Definition is the static metadata of a stage. Guard and Done are CEL
// expressions over Facts: Guard decides whether the stage may be entered,
// Done whether it is complete.
type Definition struct {
	ID          ID
	Label       string
	Description string
	Guard       string
	Done        string
}

// Facts is the projection of workflow state the predicates are evaluated against.
type Facts struct {
	Committed        bool
	SignedDocuments  int
	TotalDocuments   int
	IdentityVerified bool
	Transferred      bool
}

func (f Facts) activation() map[string]any {
	return map[string]any{
		"committed":         f.Committed,
		"signed_documents":  int64(f.SignedDocuments),
		"total_documents":   int64(f.TotalDocuments),
		"identity_verified": f.IdentityVerified,
		"transferred":       f.Transferred,
	}
}

// StageStatus pairs a definition with its derived status.
type StageStatus struct {
	Definition
	Status Status
}

// ParseID validates a stage id supplied as text.
func ParseID(s string) (ID, error) {
	switch id := ID(s); id {
	case Commit, Signing, KYC, Wire:
		return id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
}
