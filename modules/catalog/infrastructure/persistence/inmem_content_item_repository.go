package persistence

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
)

type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SafeMap[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *SafeMap[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, found := s.m[key]
	return val, found
}

func (s *SafeMap[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *SafeMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.m))
}

// InmemContentItemRepository is a map-backed content store used by service
// tests. When wired to an InmemProposalRepository it honors the
// ExcludeActivelyProposed filter the same way the SQL repository does.
type InmemContentItemRepository struct {
	storage   *SafeMap[uuid.UUID, contentitem.ContentItem]
	proposals *InmemProposalRepository
}

func NewInmemContentItemRepository(proposals *InmemProposalRepository) *InmemContentItemRepository {
	return &InmemContentItemRepository{
		storage:   NewSafeMap[uuid.UUID, contentitem.ContentItem](),
		proposals: proposals,
	}
}

func (r *InmemContentItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*contentitem.ContentItem, error) {
	item, found := r.storage.Get(id)
	if !found {
		return nil, contentitem.ErrContentItemNotFound
	}
	return &item, nil
}

func (r *InmemContentItemRepository) Create(ctx context.Context, item *contentitem.ContentItem) (*contentitem.ContentItem, error) {
	out := *item
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.Status == "" {
		out.Status = contentitem.StatusApproved
	}
	now := time.Now()
	out.CreatedAt = now
	out.UpdatedAt = now
	r.storage.Set(out.ID, out)
	return &out, nil
}

func (r *InmemContentItemRepository) Update(ctx context.Context, item *contentitem.ContentItem) (*contentitem.ContentItem, error) {
	if _, found := r.storage.Get(item.ID); !found {
		return nil, contentitem.ErrContentItemNotFound
	}
	out := *item
	out.UpdatedAt = time.Now()
	r.storage.Set(out.ID, out)
	return &out, nil
}

func (r *InmemContentItemRepository) List(ctx context.Context, params *contentitem.FindParams) ([]*contentitem.ContentItem, error) {
	matched := r.filter(params)
	sortNewestFirst(matched, func(item *contentitem.ContentItem) (time.Time, uuid.UUID) {
		return item.UpdatedAt, item.ID
	})
	if params != nil && params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	return matched, nil
}

func (r *InmemContentItemRepository) Count(ctx context.Context, params *contentitem.FindParams) (int64, error) {
	return int64(len(r.filter(params))), nil
}

func (r *InmemContentItemRepository) filter(params *contentitem.FindParams) []*contentitem.ContentItem {
	var matched []*contentitem.ContentItem
	for _, item := range r.storage.Values() {
		if item.Status != contentitem.StatusApproved {
			continue
		}
		if params != nil {
			if params.Kind != "" && item.Kind != params.Kind {
				continue
			}
			if search := strings.TrimSpace(params.Search); search != "" &&
				!strings.Contains(strings.ToLower(item.Payload.Title), strings.ToLower(search)) {
				continue
			}
			if params.CursorUpdatedAt != nil && params.CursorID != nil &&
				!beforeCursor(item.UpdatedAt, item.ID, *params.CursorUpdatedAt, *params.CursorID) {
				continue
			}
			if params.ExcludeActivelyProposed && r.proposals != nil && r.proposals.hasActiveForTarget(item.ID) {
				continue
			}
		}
		matched = append(matched, &item)
	}
	return matched
}

// beforeCursor implements the (updated_at, id) < (cursor_at, cursor_id)
// keyset comparison, descending order.
func beforeCursor(at time.Time, id uuid.UUID, curAt time.Time, curID uuid.UUID) bool {
	if at.Before(curAt) {
		return true
	}
	if at.Equal(curAt) {
		return bytes.Compare(id[:], curID[:]) < 0
	}
	return false
}

func sortNewestFirst[T any](items []*T, key func(*T) (time.Time, uuid.UUID)) {
	slices.SortFunc(items, func(a, b *T) int {
		atA, idA := key(a)
		atB, idB := key(b)
		if c := atB.Compare(atA); c != 0 {
			return c
		}
		return bytes.Compare(idB[:], idA[:])
	})
}
