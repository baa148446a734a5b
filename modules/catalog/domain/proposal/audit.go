package proposal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one append-only row of the review trail: who did what to a
// proposal, and why, when a reason was given.
type AuditEntry struct {
	ID         int64
	ProposalID uuid.UUID
	ActorID    uuid.UUID
	Action     string
	Reason     *string
	CreatedAt  time.Time
}

type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]*AuditEntry, error)
}
