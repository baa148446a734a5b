package services_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/modules/catalog/infrastructure/persistence"
	"github.com/realvista/backend/modules/catalog/services"
	"github.com/realvista/backend/pkg/composables"
	"github.com/realvista/backend/pkg/eventbus"
	"github.com/realvista/backend/pkg/serrors"
	"github.com/realvista/backend/pkg/types"
)

// stubTx satisfies the transaction interface so in-memory repositories can
// run under the same transactional helpers as the SQL ones.
type stubTx struct{}

func (stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

type fixture struct {
	ctx       context.Context
	items     *persistence.InmemContentItemRepository
	proposals *persistence.InmemProposalRepository
	bus       eventbus.EventBus
	workflow  *services.WorkflowService
	listing   *services.ListingService
	submitter types.Actor
	reviewer  types.Actor
}

func setup(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	proposals := persistence.NewInmemProposalRepository()
	items := persistence.NewInmemContentItemRepository(proposals)
	bus := eventbus.NewEventPublisher(logger)

	return &fixture{
		ctx:       composables.WithTx(context.Background(), stubTx{}),
		items:     items,
		proposals: proposals,
		bus:       bus,
		workflow:  services.NewWorkflowService(items, proposals, bus),
		listing:   services.NewListingService(items, proposals),
		submitter: types.Actor{ID: uuid.New(), Role: types.RoleSubmitter},
		reviewer:  types.Actor{ID: uuid.New(), Role: types.RoleReviewer},
	}
}

func propertyPayload(title string) contentitem.Payload {
	return contentitem.Payload{
		Title:    title,
		Location: "Tashkent",
		Price:    120_000_00,
		Currency: "USD",
		AreaM2:   54.5,
		Rooms:    2,
		Features: []string{"balcony", "parking"},
		Active:   true,
	}
}

func bannerPayload(title string) contentitem.Payload {
	return contentitem.Payload{
		Title:        title,
		LinkURL:      "https://example.com/promo",
		DisplayOrder: 1,
		Active:       true,
	}
}

// seedItem puts an approved item in the content store directly, bypassing the
// workflow, for tests that need pre-existing live content.
func (f *fixture) seedItem(t *testing.T, kind contentitem.Kind, payload contentitem.Payload) *contentitem.ContentItem {
	t.Helper()
	item, err := f.items.Create(f.ctx, &contentitem.ContentItem{Kind: kind, Payload: payload})
	require.NoError(t, err)
	return item
}

func (f *fixture) draft(t *testing.T, params services.CreateDraftParams) *proposal.ChangeProposal {
	t.Helper()
	p, err := f.workflow.CreateDraft(f.ctx, f.submitter, params)
	require.NoError(t, err)
	return p
}

func (f *fixture) submit(t *testing.T, id uuid.UUID) *proposal.ChangeProposal {
	t.Helper()
	p, err := f.workflow.Submit(f.ctx, f.submitter, id)
	require.NoError(t, err)
	return p
}

func TestCreateDraft(t *testing.T) {
	t.Run("new item draft starts with empty original", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Two-room flat"),
		})
		require.Equal(t, proposal.StateDraft, p.State)
		require.Nil(t, p.TargetID)
		require.True(t, p.OriginalPayload.Empty())
		require.Equal(t, f.submitter.ID, p.SubmitterID)
	})

	t.Run("modification draft snapshots the live payload", func(t *testing.T) {
		f := setup(t)
		item := f.seedItem(t, contentitem.KindProperty, propertyPayload("Old title"))

		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload("New title"),
		})
		require.Equal(t, "Old title", p.OriginalPayload.Title)
		require.Equal(t, "New title", p.ProposedPayload.Title)
	})

	t.Run("reviewer cannot author drafts", func(t *testing.T) {
		f := setup(t)
		_, err := f.workflow.CreateDraft(f.ctx, f.reviewer, services.CreateDraftParams{
			Kind:            contentitem.KindBanner,
			ProposedPayload: bannerPayload("Promo"),
		})
		require.True(t, serrors.IsForbidden(err))
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		f := setup(t)
		_, err := f.workflow.CreateDraft(f.ctx, f.submitter, services.CreateDraftParams{
			Kind:            "video",
			ProposedPayload: propertyPayload("x"),
		})
		require.True(t, serrors.IsValidation(err))
	})

	t.Run("empty payload is rejected", func(t *testing.T) {
		f := setup(t)
		_, err := f.workflow.CreateDraft(f.ctx, f.submitter, services.CreateDraftParams{
			Kind: contentitem.KindProperty,
		})
		require.True(t, serrors.IsValidation(err))
	})

	t.Run("kind must match the target's kind", func(t *testing.T) {
		f := setup(t)
		item := f.seedItem(t, contentitem.KindProperty, propertyPayload("Flat"))
		_, err := f.workflow.CreateDraft(f.ctx, f.submitter, services.CreateDraftParams{
			Kind:            contentitem.KindBanner,
			TargetID:        &item.ID,
			ProposedPayload: bannerPayload("Promo"),
		})
		require.True(t, serrors.IsValidation(err))
	})

	t.Run("unknown currency code is rejected", func(t *testing.T) {
		f := setup(t)
		payload := propertyPayload("Flat")
		payload.Currency = "ZZZ"
		_, err := f.workflow.CreateDraft(f.ctx, f.submitter, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: payload,
		})
		require.True(t, serrors.IsValidation(err))
	})

	t.Run("negative price is rejected", func(t *testing.T) {
		f := setup(t)
		payload := propertyPayload("Flat")
		payload.Price = -1
		_, err := f.workflow.CreateDraft(f.ctx, f.submitter, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: payload,
		})
		require.True(t, serrors.IsValidation(err))
	})

	t.Run("price requires a currency", func(t *testing.T) {
		f := setup(t)
		payload := propertyPayload("Flat")
		payload.Currency = ""
		_, err := f.workflow.CreateDraft(f.ctx, f.submitter, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: payload,
		})
		require.True(t, serrors.IsValidation(err))
	})

	t.Run("missing target is NotFound", func(t *testing.T) {
		f := setup(t)
		missing := uuid.New()
		_, err := f.workflow.CreateDraft(f.ctx, f.submitter, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &missing,
			ProposedPayload: propertyPayload("x"),
		})
		require.True(t, serrors.IsNotFound(err))
	})
}

func TestSubmit(t *testing.T) {
	t.Run("draft becomes pending", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})

		submitted := f.submit(t, p.ID)
		require.Equal(t, proposal.StatePending, submitted.State)
	})

	t.Run("only the owner may submit", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})

		stranger := types.Actor{ID: uuid.New(), Role: types.RoleSubmitter}
		_, err := f.workflow.Submit(f.ctx, stranger, p.ID)
		require.True(t, serrors.IsForbidden(err))
	})

	t.Run("pending proposal cannot be submitted again", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)

		_, err := f.workflow.Submit(f.ctx, f.submitter, p.ID)
		require.True(t, serrors.IsInvalidTransition(err))
	})

	t.Run("second submit against the same target conflicts", func(t *testing.T) {
		f := setup(t)
		item := f.seedItem(t, contentitem.KindProperty, propertyPayload("Flat"))

		first := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload("First edit"),
		})
		second := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload("Second edit"),
		})

		f.submit(t, first.ID)
		_, err := f.workflow.Submit(f.ctx, f.submitter, second.ID)
		require.True(t, serrors.IsConflict(err))

		// The losing draft stays a draft and can be submitted later.
		p, err := f.proposals.GetByID(f.ctx, second.ID)
		require.NoError(t, err)
		require.Equal(t, proposal.StateDraft, p.State)
	})

	t.Run("submit re-snapshots the live payload", func(t *testing.T) {
		f := setup(t)
		item := f.seedItem(t, contentitem.KindProperty, propertyPayload("v1"))

		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload("v3"),
		})

		// The item changes between draft creation and submission.
		item.Payload = propertyPayload("v2")
		_, err := f.items.Update(f.ctx, item)
		require.NoError(t, err)

		submitted := f.submit(t, p.ID)
		require.Equal(t, "v2", submitted.OriginalPayload.Title)
	})
}

// TestSubmitConcurrentSingleWinner races many submits for one target and
// checks the active slot admits exactly one of them.
func TestSubmitConcurrentSingleWinner(t *testing.T) {
	f := setup(t)
	item := f.seedItem(t, contentitem.KindProperty, propertyPayload("Contested"))

	const submitters = 16
	drafts := make([]*proposal.ChangeProposal, submitters)
	for i := range drafts {
		drafts[i] = f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload(fmt.Sprintf("Edit %d", i)),
		})
	}

	errs := make(chan error, submitters)
	var wg sync.WaitGroup
	for _, d := range drafts {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.workflow.Submit(f.ctx, f.submitter, id)
			errs <- err
		}(d.ID)
	}
	wg.Wait()
	close(errs)

	won, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			won++
		case serrors.IsConflict(err):
			lost++
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, submitters-1, lost)

	active, err := f.proposals.FindActiveByTarget(f.ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, proposal.StatePending, active.State)
}

func TestApprove(t *testing.T) {
	t.Run("new item proposal creates the item and backfills target", func(t *testing.T) {
		f := setup(t)
		var approvedEvent *proposal.ApprovedEvent
		f.bus.Subscribe(func(event *proposal.ApprovedEvent) { approvedEvent = event })

		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)

		item, err := f.workflow.Approve(f.ctx, f.reviewer, p.ID)
		require.NoError(t, err)
		require.Equal(t, "Flat", item.Payload.Title)
		require.Equal(t, contentitem.StatusApproved, item.Status)

		decided, err := f.proposals.GetByID(f.ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, proposal.StateApproved, decided.State)
		require.NotNil(t, decided.TargetID)
		require.Equal(t, item.ID, *decided.TargetID)
		require.NotNil(t, decided.DecidedAt)
		require.NotNil(t, decided.ReviewerID)
		require.Equal(t, f.reviewer.ID, *decided.ReviewerID)

		require.NotNil(t, approvedEvent)
		require.Equal(t, p.ID, approvedEvent.Proposal.ID)
	})

	t.Run("modification proposal replaces the payload wholesale", func(t *testing.T) {
		f := setup(t)
		original := propertyPayload("Old")
		original.Amenities = []string{"gym", "pool"}
		item := f.seedItem(t, contentitem.KindProperty, original)

		proposed := propertyPayload("New")
		proposed.Amenities = nil
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: proposed,
		})
		f.submit(t, p.ID)

		updated, err := f.workflow.Approve(f.ctx, f.reviewer, p.ID)
		require.NoError(t, err)
		require.Equal(t, "New", updated.Payload.Title)
		require.Empty(t, updated.Payload.Amenities)
	})

	t.Run("submitter cannot approve", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)

		_, err := f.workflow.Approve(f.ctx, f.submitter, p.ID)
		require.True(t, serrors.IsForbidden(err))
	})

	t.Run("second approve is an invalid transition, not a silent no-op", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)

		_, err := f.workflow.Approve(f.ctx, f.reviewer, p.ID)
		require.NoError(t, err)

		_, err = f.workflow.Approve(f.ctx, f.reviewer, p.ID)
		require.True(t, serrors.IsInvalidTransition(err))
	})

	t.Run("draft cannot be approved", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})

		_, err := f.workflow.Approve(f.ctx, f.reviewer, p.ID)
		require.True(t, serrors.IsInvalidTransition(err))
	})
}

func TestReject(t *testing.T) {
	t.Run("reject is terminal and records the reason", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)

		rejected, err := f.workflow.Reject(f.ctx, f.reviewer, p.ID, "price is implausible")
		require.NoError(t, err)
		require.Equal(t, proposal.StateRejected, rejected.State)
		require.NotNil(t, rejected.ReviewNote)
		require.Equal(t, "price is implausible", *rejected.ReviewNote)
		require.NotNil(t, rejected.DecidedAt)

		_, err = f.workflow.Submit(f.ctx, f.submitter, p.ID)
		require.True(t, serrors.IsInvalidTransition(err))
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)

		_, err := f.workflow.Reject(f.ctx, f.reviewer, p.ID, "   ")
		require.True(t, serrors.IsValidation(err))
	})

	t.Run("reject leaves the live item untouched", func(t *testing.T) {
		f := setup(t)
		item := f.seedItem(t, contentitem.KindProperty, propertyPayload("Keep me"))
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload("Discard me"),
		})
		f.submit(t, p.ID)

		_, err := f.workflow.Reject(f.ctx, f.reviewer, p.ID, "no")
		require.NoError(t, err)

		live, err := f.items.GetByID(f.ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, "Keep me", live.Payload.Title)
	})
}

func TestRequestChangesRoundTrip(t *testing.T) {
	f := setup(t)
	item := f.seedItem(t, contentitem.KindProperty, propertyPayload("Original"))

	p := f.draft(t, services.CreateDraftParams{
		Kind:            contentitem.KindProperty,
		TargetID:        &item.ID,
		ProposedPayload: propertyPayload("First attempt"),
	})
	f.submit(t, p.ID)

	sent, err := f.workflow.RequestChanges(f.ctx, f.reviewer, p.ID, "title too vague")
	require.NoError(t, err)
	require.Equal(t, proposal.StateNeedsRevision, sent.State)
	require.Equal(t, "title too vague", *sent.ReviewNote)

	// needs_revision still occupies the target's active slot.
	other := f.draft(t, services.CreateDraftParams{
		Kind:            contentitem.KindProperty,
		TargetID:        &item.ID,
		ProposedPayload: propertyPayload("Interloper"),
	})
	_, err = f.workflow.Submit(f.ctx, f.submitter, other.ID)
	require.True(t, serrors.IsConflict(err))

	// The submitter revises and resubmits the same proposal.
	_, err = f.workflow.EditDraftPayload(f.ctx, f.submitter, p.ID, propertyPayload("Second attempt"))
	require.NoError(t, err)
	resubmitted := f.submit(t, p.ID)
	require.Equal(t, proposal.StatePending, resubmitted.State)

	applied, err := f.workflow.Approve(f.ctx, f.reviewer, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Second attempt", applied.Payload.Title)

	live, err := f.items.GetByID(f.ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "Second attempt", live.Payload.Title)
}

func TestWithdraw(t *testing.T) {
	t.Run("discard deletes the proposal and frees the slot", func(t *testing.T) {
		f := setup(t)
		item := f.seedItem(t, contentitem.KindProperty, propertyPayload("Flat"))
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload("Edit"),
		})
		f.submit(t, p.ID)

		out, err := f.workflow.Withdraw(f.ctx, f.submitter, p.ID, services.WithdrawDiscard)
		require.NoError(t, err)
		require.Nil(t, out)

		_, err = f.proposals.GetByID(f.ctx, p.ID)
		require.ErrorIs(t, err, proposal.ErrProposalNotFound)

		// The slot is free again.
		replacement := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			TargetID:        &item.ID,
			ProposedPayload: propertyPayload("Another edit"),
		})
		f.submit(t, replacement.ID)
	})

	t.Run("to_draft keeps the payload and clears review fields", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)
		_, err := f.workflow.RequestChanges(f.ctx, f.reviewer, p.ID, "fix rooms")
		require.NoError(t, err)

		out, err := f.workflow.Withdraw(f.ctx, f.submitter, p.ID, services.WithdrawToDraft)
		require.NoError(t, err)
		require.Equal(t, proposal.StateDraft, out.State)
		require.Equal(t, "Flat", out.ProposedPayload.Title)
		require.Nil(t, out.ReviewerID)
		require.Nil(t, out.ReviewNote)
	})

	t.Run("only active proposals can be withdrawn", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})

		_, err := f.workflow.Withdraw(f.ctx, f.submitter, p.ID, services.WithdrawDiscard)
		require.True(t, serrors.IsInvalidTransition(err))
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		f := setup(t)
		_, err := f.workflow.Withdraw(f.ctx, f.submitter, uuid.New(), "evaporate")
		require.True(t, serrors.IsValidation(err))
	})
}

func TestEditDraftPayload(t *testing.T) {
	t.Run("pending proposals are immutable", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})
		f.submit(t, p.ID)

		_, err := f.workflow.EditDraftPayload(f.ctx, f.submitter, p.ID, propertyPayload("Sneaky edit"))
		require.True(t, serrors.IsInvalidTransition(err))
	})

	t.Run("only the owner may edit", func(t *testing.T) {
		f := setup(t)
		p := f.draft(t, services.CreateDraftParams{
			Kind:            contentitem.KindProperty,
			ProposedPayload: propertyPayload("Flat"),
		})

		stranger := types.Actor{ID: uuid.New(), Role: types.RoleSubmitter}
		_, err := f.workflow.EditDraftPayload(f.ctx, stranger, p.ID, propertyPayload("x"))
		require.True(t, serrors.IsForbidden(err))
	})
}

func TestGetProposalVisibility(t *testing.T) {
	f := setup(t)
	p := f.draft(t, services.CreateDraftParams{
		Kind:            contentitem.KindProperty,
		ProposedPayload: propertyPayload("Flat"),
	})

	_, err := f.workflow.GetProposal(f.ctx, f.reviewer, p.ID)
	require.NoError(t, err)

	_, err = f.workflow.GetProposal(f.ctx, f.submitter, p.ID)
	require.NoError(t, err)

	stranger := types.Actor{ID: uuid.New(), Role: types.RoleSubmitter}
	_, err = f.workflow.GetProposal(f.ctx, stranger, p.ID)
	require.True(t, serrors.IsForbidden(err))
}

func TestChanges(t *testing.T) {
	f := setup(t)
	original := propertyPayload("Flat")
	item := f.seedItem(t, contentitem.KindProperty, original)

	proposed := original
	proposed.Price = 150_000_00
	proposed.Features = []string{"balcony", "garden"}
	p := f.draft(t, services.CreateDraftParams{
		Kind:            contentitem.KindProperty,
		TargetID:        &item.ID,
		ProposedPayload: proposed,
	})

	changes, err := f.workflow.Changes(f.ctx, f.submitter, p.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	byField := map[string]int{}
	for i, c := range changes {
		byField[c.Field] = i
	}
	require.Contains(t, byField, "price")
	require.Contains(t, byField, "features")

	features := changes[byField["features"]]
	require.Equal(t, []string{"garden"}, features.Added)
	require.Equal(t, []string{"parking"}, features.Removed)
}
