package workflow

import (
	"github.com/shopspring/decimal"

	"investflow/stage"
)

// Funding is the recorded outcome of the Wire stage.
type Funding struct {
	Amount        decimal.Decimal
	BankAccountID string
	Reference     string
}

// state is the single source of truth for one onboarding. Every signal is
// monotonic: the mutators only ever set, never clear.
type state struct {
	committed        bool
	signed           map[string]struct{}
	signedOrder      []string
	identityVerified bool
	funding          *Funding
}

func newState() *state {
	return &state{signed: make(map[string]struct{})}
}

func (s *state) commit() bool {
	if s.committed {
		return false
	}
	s.committed = true
	return true
}

func (s *state) markSigned(docID string) bool {
	if _, ok := s.signed[docID]; ok {
		return false
	}
	s.signed[docID] = struct{}{}
	s.signedOrder = append(s.signedOrder, docID)
	return true
}

func (s *state) verifyIdentity() bool {
	if s.identityVerified {
		return false
	}
	s.identityVerified = true
	return true
}

func (s *state) recordFunding(f Funding) bool {
	if s.funding != nil {
		return false
	}
	s.funding = &f
	return true
}

func (s *state) facts(totalDocuments int) stage.Facts {
	return stage.Facts{
		Committed:        s.committed,
		SignedDocuments:  len(s.signed),
		TotalDocuments:   totalDocuments,
		IdentityVerified: s.identityVerified,
		Transferred:      s.funding != nil,
	}
}
