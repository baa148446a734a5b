package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
	"github.com/realvista/backend/modules/catalog/domain/diff"
	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/modules/catalog/permissions"
	"github.com/realvista/backend/pkg/composables"
	"github.com/realvista/backend/pkg/eventbus"
	"github.com/realvista/backend/pkg/serrors"
	"github.com/realvista/backend/pkg/types"
)

// WorkflowService enforces the proposal state machine: submitters author,
// submit and withdraw proposals; reviewers approve, reject or send them back.
// Content items are only ever written here, on approval, inside one
// transaction with the proposal transition.
type WorkflowService struct {
	items     contentitem.Repository
	proposals proposal.Repository
	publisher eventbus.EventBus
}

func NewWorkflowService(
	items contentitem.Repository,
	proposals proposal.Repository,
	publisher eventbus.EventBus,
) *WorkflowService {
	return &WorkflowService{
		items:     items,
		proposals: proposals,
		publisher: publisher,
	}
}

type CreateDraftParams struct {
	Kind            contentitem.Kind
	TargetID        *uuid.UUID
	ProposedPayload contentitem.Payload
}

// CreateDraft opens a draft proposal. Drafts do not occupy the per-target
// active slot, so any number may coexist; the collision check happens at
// submit time.
func (s *WorkflowService) CreateDraft(ctx context.Context, actor types.Actor, params CreateDraftParams) (*proposal.ChangeProposal, error) {
	if !actor.IsSubmitter() {
		return nil, serrors.NewForbiddenError(permissions.ProposalCreate)
	}
	if !params.Kind.Valid() {
		return nil, serrors.NewValidationError("kind", "unknown content kind")
	}
	if err := validatePayload(params.ProposedPayload); err != nil {
		return nil, err
	}

	var original contentitem.Payload
	if params.TargetID != nil {
		item, err := s.items.GetByID(ctx, *params.TargetID)
		if err != nil {
			return nil, mapStoreError(err, params.TargetID.String())
		}
		if item.Kind != params.Kind {
			return nil, serrors.NewValidationError("kind", "proposal kind does not match target kind")
		}
		original = item.Payload
	}

	return s.proposals.Create(ctx, &proposal.ChangeProposal{
		Kind:            params.Kind,
		TargetID:        params.TargetID,
		SubmitterID:     actor.ID,
		State:           proposal.StateDraft,
		OriginalPayload: original,
		ProposedPayload: params.ProposedPayload,
	})
}

// Submit moves a draft or needs_revision proposal to pending. The original
// payload is re-snapshotted from the live item so reviewers diff against the
// current state, and the single-active-proposal invariant is re-checked
// inside the same transaction that flips the state.
func (s *WorkflowService) Submit(ctx context.Context, actor types.Actor, proposalID uuid.UUID) (*proposal.ChangeProposal, error) {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	if p.SubmitterID != actor.ID {
		return nil, serrors.NewForbiddenError(permissions.ProposalSubmit)
	}
	if !p.State.Submittable() {
		return nil, serrors.NewInvalidTransitionError(string(p.State), string(proposal.StatePending))
	}

	updated, err := composables.InTxResult(ctx, func(txCtx context.Context) (*proposal.ChangeProposal, error) {
		if p.TargetID != nil {
			item, err := s.items.GetByID(txCtx, *p.TargetID)
			if err != nil {
				return nil, mapStoreError(err, p.TargetID.String())
			}
			p.OriginalPayload = item.Payload

			active, err := s.proposals.FindActiveByTarget(txCtx, *p.TargetID)
			if err == nil && active.ID != p.ID {
				return nil, serrors.NewConflictError("target already has an active proposal")
			}
			if err != nil && !errors.Is(err, proposal.ErrProposalNotFound) {
				return nil, err
			}
		}

		prev := p.State
		p.State = proposal.StatePending
		return s.proposals.UpdateGuarded(txCtx, p, prev)
	})
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}

	s.publisher.Publish(&proposal.SubmittedEvent{Actor: actor, Proposal: updated})
	return updated, nil
}

// Approve applies the proposed payload to the content store and marks the
// proposal approved, atomically. For a new-item proposal the created item's
// id is backfilled onto the proposal before the guarded state flip; losing
// the guard rolls the item write back with the transaction.
func (s *WorkflowService) Approve(ctx context.Context, actor types.Actor, proposalID uuid.UUID) (*contentitem.ContentItem, error) {
	if !actor.IsReviewer() {
		return nil, serrors.NewForbiddenError(permissions.ProposalApprove)
	}

	var approved *proposal.ChangeProposal
	item, err := composables.InTxResult(ctx, func(txCtx context.Context) (*contentitem.ContentItem, error) {
		p, err := s.proposals.GetByID(txCtx, proposalID)
		if err != nil {
			return nil, mapStoreError(err, proposalID.String())
		}
		if p.State != proposal.StatePending {
			return nil, serrors.NewInvalidTransitionError(string(p.State), string(proposal.StateApproved))
		}

		var item *contentitem.ContentItem
		if p.TargetID == nil {
			item, err = s.items.Create(txCtx, &contentitem.ContentItem{
				Kind:    p.Kind,
				Status:  contentitem.StatusApproved,
				Payload: p.ProposedPayload,
			})
			if err != nil {
				return nil, err
			}
			p.TargetID = &item.ID
		} else {
			item, err = s.items.GetByID(txCtx, *p.TargetID)
			if err != nil {
				return nil, mapStoreError(err, p.TargetID.String())
			}
			item.Payload = p.ProposedPayload
			item, err = s.items.Update(txCtx, item)
			if err != nil {
				return nil, err
			}
		}

		now := time.Now()
		p.State = proposal.StateApproved
		p.ReviewerID = &actor.ID
		p.DecidedAt = &now
		approved, err = s.proposals.UpdateGuarded(txCtx, p, proposal.StatePending)
		if err != nil {
			return nil, mapStoreError(err, proposalID.String())
		}
		return item, nil
	})
	if err != nil {
		return nil, err
	}

	if logger, ok := composables.TryUseLogger(ctx); ok {
		logger.WithField("proposal_id", proposalID).Info("proposal approved")
	}
	s.publisher.Publish(&proposal.ApprovedEvent{Actor: actor, Proposal: approved})
	return item, nil
}

// Reject finishes a pending proposal without touching the live item.
// Rejected is terminal; further edits require a brand-new proposal.
func (s *WorkflowService) Reject(ctx context.Context, actor types.Actor, proposalID uuid.UUID, reason string) (*proposal.ChangeProposal, error) {
	if !actor.IsReviewer() {
		return nil, serrors.NewForbiddenError(permissions.ProposalReject)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, serrors.NewFieldRequiredError("reason", "Catalog.Proposals.Fields.reason")
	}

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	if p.State != proposal.StatePending {
		return nil, serrors.NewInvalidTransitionError(string(p.State), string(proposal.StateRejected))
	}

	now := time.Now()
	p.State = proposal.StateRejected
	p.ReviewerID = &actor.ID
	p.ReviewNote = &reason
	p.DecidedAt = &now
	updated, err := s.proposals.UpdateGuarded(ctx, p, proposal.StatePending)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}

	s.publisher.Publish(&proposal.RejectedEvent{Actor: actor, Proposal: updated, Reason: reason})
	return updated, nil
}

// RequestChanges sends a pending proposal back to its submitter for revision.
// The proposal keeps its owner and stays editable.
func (s *WorkflowService) RequestChanges(ctx context.Context, actor types.Actor, proposalID uuid.UUID, reason string) (*proposal.ChangeProposal, error) {
	if !actor.IsReviewer() {
		return nil, serrors.NewForbiddenError(permissions.ProposalRequestChanges)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, serrors.NewFieldRequiredError("reason", "Catalog.Proposals.Fields.reason")
	}

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	if p.State != proposal.StatePending {
		return nil, serrors.NewInvalidTransitionError(string(p.State), string(proposal.StateNeedsRevision))
	}

	p.State = proposal.StateNeedsRevision
	p.ReviewerID = &actor.ID
	p.ReviewNote = &reason
	updated, err := s.proposals.UpdateGuarded(ctx, p, proposal.StatePending)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}

	s.publisher.Publish(&proposal.ChangesRequestedEvent{Actor: actor, Proposal: updated, Reason: reason})
	return updated, nil
}

type WithdrawMode string

const (
	WithdrawDiscard WithdrawMode = "discard"
	WithdrawToDraft WithdrawMode = "to_draft"
)

// Withdraw takes an active proposal out of review. Discard deletes the row,
// freeing the target's active slot immediately; to_draft keeps the proposed
// payload around for a later resubmission.
func (s *WorkflowService) Withdraw(ctx context.Context, actor types.Actor, proposalID uuid.UUID, mode WithdrawMode) (*proposal.ChangeProposal, error) {
	if mode != WithdrawDiscard && mode != WithdrawToDraft {
		return nil, serrors.NewValidationError("mode", "withdraw mode must be discard or to_draft")
	}

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	if p.SubmitterID != actor.ID {
		return nil, serrors.NewForbiddenError(permissions.ProposalWithdraw)
	}
	if !p.State.Active() {
		return nil, serrors.NewInvalidTransitionError(string(p.State), string(proposal.StateDraft))
	}

	if mode == WithdrawDiscard {
		err := s.proposals.DeleteGuarded(ctx, p.ID, []proposal.State{proposal.StatePending, proposal.StateNeedsRevision})
		if err != nil {
			return nil, mapStoreError(err, proposalID.String())
		}
		s.publisher.Publish(&proposal.WithdrawnEvent{Actor: actor, ProposalID: p.ID.String(), ToDraft: false})
		return nil, nil
	}

	prev := p.State
	p.State = proposal.StateDraft
	p.ReviewerID = nil
	p.ReviewNote = nil
	updated, err := s.proposals.UpdateGuarded(ctx, p, prev)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}

	s.publisher.Publish(&proposal.WithdrawnEvent{Actor: actor, ProposalID: p.ID.String(), ToDraft: true, Proposal: updated})
	return updated, nil
}

// EditDraftPayload replaces the proposed payload of a draft or
// needs_revision proposal. Pending and decided proposals are immutable;
// they go through withdraw/resubmit instead.
func (s *WorkflowService) EditDraftPayload(ctx context.Context, actor types.Actor, proposalID uuid.UUID, payload contentitem.Payload) (*proposal.ChangeProposal, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	if p.SubmitterID != actor.ID {
		return nil, serrors.NewForbiddenError(permissions.ProposalEdit)
	}
	if !p.State.Editable() {
		return nil, serrors.NewInvalidTransitionError(string(p.State), "edit")
	}

	p.ProposedPayload = payload
	updated, err := s.proposals.UpdateGuarded(ctx, p, p.State)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	return updated, nil
}

// GetProposal returns a proposal visible to the caller: reviewers see all,
// submitters only their own.
func (s *WorkflowService) GetProposal(ctx context.Context, actor types.Actor, proposalID uuid.UUID) (*proposal.ChangeProposal, error) {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	if !actor.IsReviewer() && p.SubmitterID != actor.ID {
		return nil, serrors.NewForbiddenError(permissions.ProposalView)
	}
	return p, nil
}

// Changes computes the review diff between the proposal's original snapshot
// and its proposed payload.
func (s *WorkflowService) Changes(ctx context.Context, actor types.Actor, proposalID uuid.UUID) ([]diff.FieldChange, error) {
	p, err := s.GetProposal(ctx, actor, proposalID)
	if err != nil {
		return nil, err
	}
	return diff.Changes(p.OriginalPayload, p.ProposedPayload), nil
}

// validatePayload checks the invariants a payload must hold before it can
// enter a proposal. The price pair is a go-money value: minor units plus a
// currency code the ISO 4217 table knows.
func validatePayload(payload contentitem.Payload) error {
	if payload.Empty() {
		return serrors.NewFieldRequiredError("proposed_payload", "Catalog.Proposals.Fields.proposed_payload")
	}
	if payload.Price < 0 {
		return serrors.NewValidationError("price", "price must not be negative")
	}
	if payload.Price != 0 && payload.Currency == "" {
		return serrors.NewValidationError("currency", "price requires a currency code")
	}
	if payload.Currency != "" && money.GetCurrency(payload.Currency) == nil {
		return serrors.NewValidationError("currency", "unknown currency code")
	}
	return nil
}

// mapStoreError translates repository errors into the service taxonomy.
// Anything already typed passes through untouched.
func mapStoreError(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, proposal.ErrProposalNotFound):
		return serrors.NewNotFoundError("change proposal", id)
	case errors.Is(err, contentitem.ErrContentItemNotFound):
		return serrors.NewNotFoundError("content item", id)
	case errors.Is(err, proposal.ErrActiveProposalExists):
		return serrors.NewConflictError("target already has an active proposal")
	case errors.Is(err, proposal.ErrStaleState):
		return serrors.NewConflictError("proposal changed concurrently, refetch and retry")
	default:
		return err
	}
}
