package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/modules/catalog/permissions"
	"github.com/realvista/backend/pkg/serrors"
	"github.com/realvista/backend/pkg/types"
)

// AuditService exposes the append-only review trail. Writes happen in the
// event handlers; this service only reads, with the same visibility rule as
// proposals themselves.
type AuditService struct {
	proposals proposal.Repository
	audit     proposal.AuditRepository
}

func NewAuditService(proposals proposal.Repository, audit proposal.AuditRepository) *AuditService {
	return &AuditService{proposals: proposals, audit: audit}
}

func (s *AuditService) Trail(ctx context.Context, actor types.Actor, proposalID uuid.UUID) ([]*proposal.AuditEntry, error) {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapStoreError(err, proposalID.String())
	}
	if !actor.IsReviewer() && p.SubmitterID != actor.ID {
		return nil, serrors.NewForbiddenError(permissions.ProposalView)
	}
	return s.audit.ListByProposal(ctx, proposalID)
}
