package proposal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
)

var (
	ErrProposalNotFound = errors.New("change proposal not found")

	// ErrActiveProposalExists reports a violation of the one-active-proposal
	// invariant: the target already has a pending or needs_revision proposal.
	ErrActiveProposalExists = errors.New("target already has an active proposal")

	// ErrStaleState reports that a guarded update found the proposal in a
	// different state than the caller observed, i.e. a concurrent transition
	// won the race.
	ErrStaleState = errors.New("proposal state changed concurrently")
)

type State string

const (
	StateDraft         State = "draft"
	StatePending       State = "pending"
	StateNeedsRevision State = "needs_revision"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
)

// Terminal states admit no further transitions.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected
}

// Active states occupy the single per-target proposal slot.
func (s State) Active() bool {
	return s == StatePending || s == StateNeedsRevision
}

// Editable states allow the submitter to replace the proposed payload.
func (s State) Editable() bool {
	return s == StateDraft || s == StateNeedsRevision
}

// Submittable states allow a transition to pending.
func (s State) Submittable() bool {
	return s == StateDraft || s == StateNeedsRevision
}

// ChangeProposal is a request to create or modify a content item.
// A nil TargetID means "create a new item"; it is backfilled on approval.
// ProposedPayload is always the complete desired end state.
type ChangeProposal struct {
	ID              uuid.UUID
	Kind            contentitem.Kind
	TargetID        *uuid.UUID
	SubmitterID     uuid.UUID
	ReviewerID      *uuid.UUID
	State           State
	OriginalPayload contentitem.Payload
	ProposedPayload contentitem.Payload
	ReviewNote      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DecidedAt       *time.Time
}

type FindParams struct {
	Kind        contentitem.Kind
	States      []State
	SubmitterID *uuid.UUID
	TargetID    *uuid.UUID
	Search      string
	Limit       int

	// Keyset cursor over (updated_at, id) descending.
	CursorUpdatedAt *time.Time
	CursorID        *uuid.UUID
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ChangeProposal, error)

	// Create inserts a proposal. If the proposal is created in an active
	// state and the target's active slot is taken, it returns
	// ErrActiveProposalExists.
	Create(ctx context.Context, p *ChangeProposal) (*ChangeProposal, error)

	// UpdateGuarded persists all mutable fields of p on the condition that
	// the stored state still equals expected. It returns ErrStaleState when
	// the condition fails and ErrActiveProposalExists when the write would
	// claim an already-taken active slot.
	UpdateGuarded(ctx context.Context, p *ChangeProposal, expected State) (*ChangeProposal, error)

	// DeleteGuarded removes the proposal row if it is still in one of the
	// given states; ErrStaleState otherwise.
	DeleteGuarded(ctx context.Context, id uuid.UUID, states []State) error

	// FindActiveByTarget returns the pending or needs_revision proposal for
	// the target, or ErrProposalNotFound.
	FindActiveByTarget(ctx context.Context, targetID uuid.UUID) (*ChangeProposal, error)

	List(ctx context.Context, params *FindParams) ([]*ChangeProposal, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
