package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/pkg/serrors"
	"github.com/realvista/backend/pkg/types"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

type ListFilter string

const (
	FilterAll           ListFilter = "all"
	FilterApproved      ListFilter = "approved"
	FilterPending       ListFilter = "pending"
	FilterNeedsRevision ListFilter = "needs_revision"
	FilterDraft         ListFilter = "draft"
)

type ListParams struct {
	Kind   contentitem.Kind
	Filter ListFilter
	Search string
	Limit  int
	Cursor string
}

// FeedItem is one row of the browsable catalog: either a live content item
// or an active proposal projected through its proposed payload.
type FeedItem struct {
	ItemID       *uuid.UUID          `json:"item_id,omitempty"`
	ProposalID   *uuid.UUID          `json:"proposal_id,omitempty"`
	TargetID     *uuid.UUID          `json:"target_id,omitempty"`
	Kind         contentitem.Kind    `json:"kind"`
	State        string              `json:"state"`
	Payload      contentitem.Payload `json:"payload"`
	PriceDisplay string              `json:"price_display,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// FeedStateLive marks rows backed by the content store rather than a proposal.
const FeedStateLive = "live"

// Feed is one page of rows plus the total match count across all pages.
type Feed struct {
	Items      []FeedItem `json:"items"`
	Total      int64      `json:"total"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ListingService merges the content store and the proposal store into one
// filterable, cursor-paginated feed. The dedup rule lives here, once: an item
// shadowed by an active proposal appears only as that proposal's row.
type ListingService struct {
	items     contentitem.Repository
	proposals proposal.Repository
}

func NewListingService(items contentitem.Repository, proposals proposal.Repository) *ListingService {
	return &ListingService{items: items, proposals: proposals}
}

func (s *ListingService) List(ctx context.Context, actor types.Actor, params ListParams) (*Feed, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	cur, err := decodeCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	switch params.Filter {
	case FilterApproved:
		return s.listApproved(ctx, params, cur, limit, false)
	case FilterPending:
		return s.listProposals(ctx, params, cur, limit, []proposal.State{proposal.StatePending}, nil)
	case FilterNeedsRevision:
		return s.listProposals(ctx, params, cur, limit, []proposal.State{proposal.StateNeedsRevision}, nil)
	case FilterDraft:
		// Drafts are a submitter's private workspace; they never appear in
		// shared feeds and are always scoped to the caller.
		return s.listProposals(ctx, params, cur, limit, []proposal.State{proposal.StateDraft}, &actor.ID)
	case FilterAll, "":
		return s.listAll(ctx, params, cur, limit)
	default:
		return nil, serrors.NewValidationError("filter", "unknown list filter")
	}
}

func (s *ListingService) listApproved(ctx context.Context, params ListParams, cur *feedCursor, limit int, excludeProposed bool) (*Feed, error) {
	find := &contentitem.FindParams{
		Kind:                    params.Kind,
		Search:                  params.Search,
		Limit:                   limit + 1,
		ExcludeActivelyProposed: excludeProposed,
	}
	if cur.Items != nil {
		find.CursorUpdatedAt = &cur.Items.UpdatedAt
		find.CursorID = &cur.Items.ID
	}

	items, err := s.items.List(ctx, find)
	if err != nil {
		return nil, err
	}
	total, err := s.items.Count(ctx, &contentitem.FindParams{
		Kind:                    params.Kind,
		Search:                  params.Search,
		ExcludeActivelyProposed: excludeProposed,
	})
	if err != nil {
		return nil, err
	}

	more := len(items) > limit
	if more {
		items = items[:limit]
	}

	feed := &Feed{Items: make([]FeedItem, 0, len(items)), Total: total}
	for _, item := range items {
		feed.Items = append(feed.Items, itemRow(item))
	}
	if more {
		last := items[len(items)-1]
		feed.NextCursor = encodeCursor(&feedCursor{
			ProposalsDone: true,
			Items:         &streamCursor{UpdatedAt: last.UpdatedAt, ID: last.ID},
		})
	}
	return feed, nil
}

func (s *ListingService) listProposals(ctx context.Context, params ListParams, cur *feedCursor, limit int, states []proposal.State, submitterID *uuid.UUID) (*Feed, error) {
	find := &proposal.FindParams{
		Kind:        params.Kind,
		States:      states,
		SubmitterID: submitterID,
		Search:      params.Search,
		Limit:       limit + 1,
	}
	if cur.Proposals != nil {
		find.CursorUpdatedAt = &cur.Proposals.UpdatedAt
		find.CursorID = &cur.Proposals.ID
	}

	proposals, err := s.proposals.List(ctx, find)
	if err != nil {
		return nil, err
	}
	total, err := s.proposals.Count(ctx, &proposal.FindParams{
		Kind:        params.Kind,
		States:      states,
		SubmitterID: submitterID,
		Search:      params.Search,
	})
	if err != nil {
		return nil, err
	}

	more := len(proposals) > limit
	if more {
		proposals = proposals[:limit]
	}

	feed := &Feed{Items: make([]FeedItem, 0, len(proposals)), Total: total}
	for _, p := range proposals {
		feed.Items = append(feed.Items, proposalRow(p))
	}
	if more {
		last := proposals[len(proposals)-1]
		feed.NextCursor = encodeCursor(&feedCursor{
			Proposals: &streamCursor{UpdatedAt: last.UpdatedAt, ID: last.ID},
		})
	}
	return feed, nil
}

// listAll concatenates two streams in fixed precedence: active proposals
// first, then approved items minus any item an active proposal targets.
// Drafts are excluded; a draft is not yet a commitment.
func (s *ListingService) listAll(ctx context.Context, params ListParams, cur *feedCursor, limit int) (*Feed, error) {
	total, err := s.countAll(ctx, params)
	if err != nil {
		return nil, err
	}
	feed := &Feed{Items: make([]FeedItem, 0, limit), Total: total}

	if !cur.ProposalsDone {
		find := &proposal.FindParams{
			Kind:   params.Kind,
			States: []proposal.State{proposal.StatePending, proposal.StateNeedsRevision},
			Search: params.Search,
			Limit:  limit + 1,
		}
		if cur.Proposals != nil {
			find.CursorUpdatedAt = &cur.Proposals.UpdatedAt
			find.CursorID = &cur.Proposals.ID
		}
		proposals, err := s.proposals.List(ctx, find)
		if err != nil {
			return nil, err
		}

		if len(proposals) > limit {
			proposals = proposals[:limit]
			for _, p := range proposals {
				feed.Items = append(feed.Items, proposalRow(p))
			}
			last := proposals[len(proposals)-1]
			feed.NextCursor = encodeCursor(&feedCursor{
				Proposals: &streamCursor{UpdatedAt: last.UpdatedAt, ID: last.ID},
			})
			return feed, nil
		}

		for _, p := range proposals {
			feed.Items = append(feed.Items, proposalRow(p))
		}
	}

	remaining := limit - len(feed.Items)
	find := &contentitem.FindParams{
		Kind:                    params.Kind,
		Search:                  params.Search,
		Limit:                   remaining + 1,
		ExcludeActivelyProposed: true,
	}
	if cur.Items != nil {
		find.CursorUpdatedAt = &cur.Items.UpdatedAt
		find.CursorID = &cur.Items.ID
	}
	items, err := s.items.List(ctx, find)
	if err != nil {
		return nil, err
	}

	more := len(items) > remaining
	if more {
		items = items[:remaining]
	}
	for _, item := range items {
		feed.Items = append(feed.Items, itemRow(item))
	}
	if more {
		next := &feedCursor{ProposalsDone: true, Items: cur.Items}
		if len(items) > 0 {
			last := items[len(items)-1]
			next.Items = &streamCursor{UpdatedAt: last.UpdatedAt, ID: last.ID}
		}
		feed.NextCursor = encodeCursor(next)
	}
	return feed, nil
}

// countAll mirrors the merged feed's composition: every active proposal plus
// every approved item no active proposal shadows.
func (s *ListingService) countAll(ctx context.Context, params ListParams) (int64, error) {
	proposals, err := s.proposals.Count(ctx, &proposal.FindParams{
		Kind:   params.Kind,
		States: []proposal.State{proposal.StatePending, proposal.StateNeedsRevision},
		Search: params.Search,
	})
	if err != nil {
		return 0, err
	}
	items, err := s.items.Count(ctx, &contentitem.FindParams{
		Kind:                    params.Kind,
		Search:                  params.Search,
		ExcludeActivelyProposed: true,
	})
	if err != nil {
		return 0, err
	}
	return proposals + items, nil
}

func itemRow(item *contentitem.ContentItem) FeedItem {
	id := item.ID
	return FeedItem{
		ItemID:       &id,
		Kind:         item.Kind,
		State:        FeedStateLive,
		Payload:      item.Payload,
		PriceDisplay: item.Payload.DisplayPrice(),
		UpdatedAt:    item.UpdatedAt,
	}
}

func proposalRow(p *proposal.ChangeProposal) FeedItem {
	id := p.ID
	return FeedItem{
		ProposalID:   &id,
		TargetID:     p.TargetID,
		Kind:         p.Kind,
		State:        string(p.State),
		Payload:      p.ProposedPayload,
		PriceDisplay: p.ProposedPayload.DisplayPrice(),
		UpdatedAt:    p.UpdatedAt,
	}
}
