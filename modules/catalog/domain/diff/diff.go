// Package diff computes the field-level difference between an original and a
// proposed payload. It is pure: no state, no ordering assumptions on inputs,
// and the reviewer UI renders its output without further diff logic.
package diff

import (
	"github.com/realvista/backend/modules/catalog/domain/contentitem"
)

type ChangeKind string

const (
	// KindScalar is a plain value replacement (text, number, boolean).
	KindScalar ChangeKind = "scalar"
	// KindSet is a tag-set change reported as added/removed values.
	KindSet ChangeKind = "set"
	// KindMedia is a media or reference replacement, surfaced with both the
	// original and the proposed reference for side-by-side review.
	KindMedia ChangeKind = "media"
)

type FieldChange struct {
	Field string     `json:"field"`
	Kind  ChangeKind `json:"kind"`

	From any `json:"from,omitempty"`
	To   any `json:"to,omitempty"`

	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Changes returns one FieldChange per semantically different field.
// Unchanged fields are omitted so the review surface stays free of no-ops.
func Changes(original, proposed contentitem.Payload) []FieldChange {
	var out []FieldChange

	scalar := func(field string, from, to any) {
		if from != to {
			out = append(out, FieldChange{Field: field, Kind: KindScalar, From: from, To: to})
		}
	}
	media := func(field string, from, to string) {
		if from != to {
			out = append(out, FieldChange{Field: field, Kind: KindMedia, From: from, To: to})
		}
	}
	set := func(field string, from, to []string) {
		added, removed := setDiff(from, to)
		if len(added) > 0 || len(removed) > 0 {
			out = append(out, FieldChange{Field: field, Kind: KindSet, Added: added, Removed: removed})
		}
	}

	scalar("title", original.Title, proposed.Title)
	scalar("description", original.Description, proposed.Description)
	scalar("location", original.Location, proposed.Location)
	scalar("price", original.Price, proposed.Price)
	scalar("currency", original.Currency, proposed.Currency)
	scalar("area_m2", original.AreaM2, proposed.AreaM2)
	scalar("rooms", original.Rooms, proposed.Rooms)
	media("cover_image_url", original.CoverImageURL, proposed.CoverImageURL)
	set("gallery_urls", original.GalleryURLs, proposed.GalleryURLs)
	set("features", original.Features, proposed.Features)
	set("amenities", original.Amenities, proposed.Amenities)
	scalar("link_url", original.LinkURL, proposed.LinkURL)
	scalar("target_audience", original.TargetAudience, proposed.TargetAudience)
	scalar("display_order", original.DisplayOrder, proposed.DisplayOrder)
	scalar("active", original.Active, proposed.Active)

	return out
}

// setDiff computes (to − from, from − to) by value equality.
// Duplicates within a side are collapsed; element order follows the input.
func setDiff(from, to []string) (added, removed []string) {
	fromSet := make(map[string]struct{}, len(from))
	for _, v := range from {
		fromSet[v] = struct{}{}
	}
	toSet := make(map[string]struct{}, len(to))
	for _, v := range to {
		toSet[v] = struct{}{}
	}

	seen := make(map[string]struct{})
	for _, v := range to {
		if _, ok := fromSet[v]; ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		added = append(added, v)
	}
	seen = make(map[string]struct{})
	for _, v := range from {
		if _, ok := toSet[v]; ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		removed = append(removed, v)
	}
	return added, removed
}
