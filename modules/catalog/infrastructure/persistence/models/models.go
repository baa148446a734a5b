package models

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type ContentItem struct {
	ID        pgtype.UUID
	Kind      string
	Status    string
	Payload   []byte
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

type ChangeProposal struct {
	ID              pgtype.UUID
	Kind            string
	TargetID        pgtype.UUID
	SubmitterID     pgtype.UUID
	ReviewerID      pgtype.UUID
	State           string
	OriginalPayload []byte
	ProposedPayload []byte
	ReviewNote      *string
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
	DecidedAt       pgtype.Timestamptz
}

type ProposalAuditEntry struct {
	ID         int64
	ProposalID pgtype.UUID
	ActorID    pgtype.UUID
	Action     string
	Reason     *string
	CreatedAt  pgtype.Timestamptz
}
