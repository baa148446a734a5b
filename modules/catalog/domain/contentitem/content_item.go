package contentitem

import (
	"context"
	"errors"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
)

var ErrContentItemNotFound = errors.New("content item not found")

type Kind string

const (
	KindProperty Kind = "property"
	KindBanner   Kind = "banner"
)

func (k Kind) Valid() bool {
	return k == KindProperty || k == KindBanner
}

type Status string

// StatusApproved is the only live status; items enter the store exclusively
// through proposal approval.
const StatusApproved Status = "approved"

// Payload is the full published field set of an item. Proposals always carry
// a complete Payload, never a patch, so approval replaces it wholesale.
// Property and banner records share the struct; fields that do not apply to a
// kind stay zero.
type Payload struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	// Price is stored in minor units alongside an ISO 4217 currency code.
	Price    int64  `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`

	AreaM2 float64 `json:"area_m2,omitempty"`
	Rooms  int     `json:"rooms,omitempty"`

	CoverImageURL string   `json:"cover_image_url,omitempty"`
	GalleryURLs   []string `json:"gallery_urls,omitempty"`
	Features      []string `json:"features,omitempty"`
	Amenities     []string `json:"amenities,omitempty"`

	// Banner-only fields.
	LinkURL        string `json:"link_url,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	DisplayOrder   int    `json:"display_order,omitempty"`

	Active bool `json:"active"`
}

func (p Payload) Empty() bool {
	return p.Title == ""
}

// Money returns the price as a currency-aware value. Only meaningful when a
// currency code is set.
func (p Payload) Money() *money.Money {
	return money.New(p.Price, p.Currency)
}

// DisplayPrice renders the price through its currency's formatting rules,
// e.g. "$120,000.00". Empty when the payload carries no currency.
func (p Payload) DisplayPrice() string {
	if p.Currency == "" {
		return ""
	}
	return p.Money().Display()
}

type ContentItem struct {
	ID        uuid.UUID
	Kind      Kind
	Status    Status
	Payload   Payload
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FindParams struct {
	Kind   Kind
	Search string
	Limit  int

	// Keyset cursor over (updated_at, id) descending.
	CursorUpdatedAt *time.Time
	CursorID        *uuid.UUID

	// ExcludeActivelyProposed drops items that currently have a pending or
	// needs_revision proposal targeting them, so merged feeds never show the
	// live and the proposed version of the same item side by side.
	ExcludeActivelyProposed bool
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	Create(ctx context.Context, item *ContentItem) (*ContentItem, error)
	// Update replaces the stored payload wholesale.
	Update(ctx context.Context, item *ContentItem) (*ContentItem, error)
	List(ctx context.Context, params *FindParams) ([]*ContentItem, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
