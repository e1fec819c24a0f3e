package workflow

import (
	"investflow/kyc"
	"investflow/stage"
	"investflow/transfer"
)

// Snapshot is a read-only projection of an onboarding for rendering.
type Snapshot struct {
	WorkflowID       string
	Stages           []stage.StageStatus
	Progress         int
	Committed        bool
	SignedDocuments  []string
	TotalDocuments   int
	IdentityVerified bool
	Funding          *Funding
	ActiveStage      stage.ID
	Identity         *kyc.View
	Transfer         *transfer.View
}

// Snapshot returns the current projection. The result shares no memory with
// the orchestrator.
func (o *Orchestrator) Snapshot() (Snapshot, error) {
	stages, err := o.Stages()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		WorkflowID:       o.id,
		Stages:           stages,
		Progress:         o.Progress(),
		Committed:        o.state.committed,
		SignedDocuments:  append([]string(nil), o.state.signedOrder...),
		TotalDocuments:   len(o.opts.Documents),
		IdentityVerified: o.state.identityVerified,
	}
	if o.state.funding != nil {
		f := *o.state.funding
		snap.Funding = &f
	}
	if active, ok := o.activeStage(); ok {
		snap.ActiveStage = active
	}
	if o.identity != nil {
		v := o.identity.View()
		snap.Identity = &v
	}
	if o.funding != nil {
		v := o.funding.View()
		snap.Transfer = &v
	}
	return snap, nil
}
