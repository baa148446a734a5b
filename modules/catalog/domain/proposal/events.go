package proposal

import (
	"github.com/realvista/backend/pkg/types"
)

// Events published on the application event bus after each successful
// workflow transition. Handlers run outside the transaction.

type SubmittedEvent struct {
	Actor    types.Actor
	Proposal *ChangeProposal
}

type ApprovedEvent struct {
	Actor    types.Actor
	Proposal *ChangeProposal
}

type RejectedEvent struct {
	Actor    types.Actor
	Proposal *ChangeProposal
	Reason   string
}

type ChangesRequestedEvent struct {
	Actor    types.Actor
	Proposal *ChangeProposal
	Reason   string
}

type WithdrawnEvent struct {
	Actor      types.Actor
	ProposalID string
	// ToDraft is false when the proposal row was discarded.
	ToDraft  bool
	Proposal *ChangeProposal
}
