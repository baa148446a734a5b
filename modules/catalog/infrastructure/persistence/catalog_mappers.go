package persistence

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/modules/catalog/infrastructure/persistence/models"
)

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgUUID(*id)
}

func asUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

func asUUIDPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func asTime(v pgtype.Timestamptz) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return v.Time
}

func asTimePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func pgTimePtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func marshalPayload(p contentitem.Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}
	return raw, nil
}

func unmarshalPayload(raw []byte) (contentitem.Payload, error) {
	var p contentitem.Payload
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, errors.Wrap(err, "failed to unmarshal payload")
	}
	return p, nil
}

func toDomainContentItem(row *models.ContentItem) (*contentitem.ContentItem, error) {
	payload, err := unmarshalPayload(row.Payload)
	if err != nil {
		return nil, err
	}
	return &contentitem.ContentItem{
		ID:        asUUID(row.ID),
		Kind:      contentitem.Kind(row.Kind),
		Status:    contentitem.Status(row.Status),
		Payload:   payload,
		CreatedAt: asTime(row.CreatedAt),
		UpdatedAt: asTime(row.UpdatedAt),
	}, nil
}

func toDomainProposal(row *models.ChangeProposal) (*proposal.ChangeProposal, error) {
	original, err := unmarshalPayload(row.OriginalPayload)
	if err != nil {
		return nil, err
	}
	proposed, err := unmarshalPayload(row.ProposedPayload)
	if err != nil {
		return nil, err
	}
	return &proposal.ChangeProposal{
		ID:              asUUID(row.ID),
		Kind:            contentitem.Kind(row.Kind),
		TargetID:        asUUIDPtr(row.TargetID),
		SubmitterID:     asUUID(row.SubmitterID),
		ReviewerID:      asUUIDPtr(row.ReviewerID),
		State:           proposal.State(row.State),
		OriginalPayload: original,
		ProposedPayload: proposed,
		ReviewNote:      row.ReviewNote,
		CreatedAt:       asTime(row.CreatedAt),
		UpdatedAt:       asTime(row.UpdatedAt),
		DecidedAt:       asTimePtr(row.DecidedAt),
	}, nil
}
