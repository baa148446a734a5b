package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/modules/catalog/infrastructure/persistence/models"
	"github.com/realvista/backend/pkg/composables"
)

const (
	auditInsertQuery = `
		INSERT INTO proposal_audit_log (proposal_id, actor_id, action, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	auditListQuery = `
		SELECT id, proposal_id, actor_id, action, reason, created_at
		FROM proposal_audit_log
		WHERE proposal_id = $1
		ORDER BY created_at DESC, id DESC`
)

type PgProposalAuditRepository struct{}

func NewProposalAuditRepository() proposal.AuditRepository {
	return &PgProposalAuditRepository{}
}

func (r *PgProposalAuditRepository) Append(ctx context.Context, entry *proposal.AuditEntry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	var row models.ProposalAuditEntry
	if err := tx.QueryRow(ctx, auditInsertQuery, entry.ProposalID, entry.ActorID, entry.Action, entry.Reason).Scan(
		&row.ID,
		&row.CreatedAt,
	); err != nil {
		return err
	}
	entry.ID = row.ID
	entry.CreatedAt = asTime(row.CreatedAt)
	return nil
}

func (r *PgProposalAuditRepository) ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]*proposal.AuditEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, auditListQuery, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*proposal.AuditEntry
	for rows.Next() {
		var row models.ProposalAuditEntry
		if err := rows.Scan(
			&row.ID,
			&row.ProposalID,
			&row.ActorID,
			&row.Action,
			&row.Reason,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, &proposal.AuditEntry{
			ID:         row.ID,
			ProposalID: asUUID(row.ProposalID),
			ActorID:    asUUID(row.ActorID),
			Action:     row.Action,
			Reason:     row.Reason,
			CreatedAt:  asTime(row.CreatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
