package persistence

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/proposal"
)

// InmemProposalRepository is a map-backed proposal store used by service
// tests. A single mutex covers every check-then-write, so the guarded update
// and the one-active-proposal-per-target invariant behave exactly like the
// SQL repository's state guard and partial unique index.
type InmemProposalRepository struct {
	mu      sync.RWMutex
	storage map[uuid.UUID]proposal.ChangeProposal
}

func NewInmemProposalRepository() *InmemProposalRepository {
	return &InmemProposalRepository{
		storage: make(map[uuid.UUID]proposal.ChangeProposal),
	}
}

func (r *InmemProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.ChangeProposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, found := r.storage[id]
	if !found {
		return nil, proposal.ErrProposalNotFound
	}
	return &p, nil
}

func (r *InmemProposalRepository) Create(ctx context.Context, p *proposal.ChangeProposal) (*proposal.ChangeProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := *p
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.State.Active() && out.TargetID != nil && r.activeForTargetLocked(*out.TargetID, out.ID) != nil {
		return nil, proposal.ErrActiveProposalExists
	}
	now := time.Now()
	out.CreatedAt = now
	out.UpdatedAt = now
	r.storage[out.ID] = out
	return &out, nil
}

func (r *InmemProposalRepository) UpdateGuarded(ctx context.Context, p *proposal.ChangeProposal, expected proposal.State) (*proposal.ChangeProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, found := r.storage[p.ID]
	if !found {
		return nil, proposal.ErrProposalNotFound
	}
	if stored.State != expected {
		return nil, proposal.ErrStaleState
	}
	if p.State.Active() && p.TargetID != nil && r.activeForTargetLocked(*p.TargetID, p.ID) != nil {
		return nil, proposal.ErrActiveProposalExists
	}

	out := *p
	out.CreatedAt = stored.CreatedAt
	out.UpdatedAt = time.Now()
	r.storage[out.ID] = out
	return &out, nil
}

func (r *InmemProposalRepository) DeleteGuarded(ctx context.Context, id uuid.UUID, states []proposal.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, found := r.storage[id]
	if !found {
		return proposal.ErrProposalNotFound
	}
	for _, s := range states {
		if stored.State == s {
			delete(r.storage, id)
			return nil
		}
	}
	return proposal.ErrStaleState
}

func (r *InmemProposalRepository) FindActiveByTarget(ctx context.Context, targetID uuid.UUID) (*proposal.ChangeProposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p := r.activeForTargetLocked(targetID, uuid.Nil); p != nil {
		out := *p
		return &out, nil
	}
	return nil, proposal.ErrProposalNotFound
}

func (r *InmemProposalRepository) List(ctx context.Context, params *proposal.FindParams) ([]*proposal.ChangeProposal, error) {
	r.mu.RLock()
	matched := r.filterLocked(params)
	r.mu.RUnlock()

	sortNewestFirst(matched, func(p *proposal.ChangeProposal) (time.Time, uuid.UUID) {
		return p.UpdatedAt, p.ID
	})
	if params != nil && params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	return matched, nil
}

func (r *InmemProposalRepository) Count(ctx context.Context, params *proposal.FindParams) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.filterLocked(params))), nil
}

func (r *InmemProposalRepository) hasActiveForTarget(targetID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeForTargetLocked(targetID, uuid.Nil) != nil
}

func (r *InmemProposalRepository) activeForTargetLocked(targetID uuid.UUID, exclude uuid.UUID) *proposal.ChangeProposal {
	for id, p := range r.storage {
		if id == exclude {
			continue
		}
		if p.TargetID != nil && *p.TargetID == targetID && p.State.Active() {
			out := p
			return &out
		}
	}
	return nil
}

func (r *InmemProposalRepository) filterLocked(params *proposal.FindParams) []*proposal.ChangeProposal {
	var matched []*proposal.ChangeProposal
	for _, p := range r.storage {
		if params != nil {
			if params.Kind != "" && p.Kind != params.Kind {
				continue
			}
			if len(params.States) > 0 && !containsState(params.States, p.State) {
				continue
			}
			if params.SubmitterID != nil && p.SubmitterID != *params.SubmitterID {
				continue
			}
			if params.TargetID != nil && (p.TargetID == nil || *p.TargetID != *params.TargetID) {
				continue
			}
			if search := strings.TrimSpace(params.Search); search != "" &&
				!strings.Contains(strings.ToLower(p.ProposedPayload.Title), strings.ToLower(search)) {
				continue
			}
			if params.CursorUpdatedAt != nil && params.CursorID != nil &&
				!beforeCursor(p.UpdatedAt, p.ID, *params.CursorUpdatedAt, *params.CursorID) {
				continue
			}
		}
		matched = append(matched, &p)
	}
	return matched
}

func containsState(states []proposal.State, s proposal.State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
