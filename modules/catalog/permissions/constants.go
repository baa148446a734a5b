package permissions

// Workflow actions, used in authorization failures and audit rows.
const (
	ProposalCreate         = "catalog.proposal.create"
	ProposalEdit           = "catalog.proposal.edit"
	ProposalSubmit         = "catalog.proposal.submit"
	ProposalWithdraw       = "catalog.proposal.withdraw"
	ProposalApprove        = "catalog.proposal.approve"
	ProposalReject         = "catalog.proposal.reject"
	ProposalRequestChanges = "catalog.proposal.request_changes"
	ProposalView           = "catalog.proposal.view"
)
