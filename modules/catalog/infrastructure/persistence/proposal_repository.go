package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/modules/catalog/infrastructure/persistence/models"
	"github.com/realvista/backend/pkg/composables"
	"github.com/realvista/backend/pkg/repo"
)

// activeProposalConstraint is the partial unique index enforcing the
// one-active-proposal-per-target invariant at the storage level.
const activeProposalConstraint = "change_proposals_active_target_key"

const (
	proposalColumns = `
			cp.id,
			cp.kind,
			cp.target_id,
			cp.submitter_id,
			cp.reviewer_id,
			cp.state,
			cp.original_payload,
			cp.proposed_payload,
			cp.review_note,
			cp.created_at,
			cp.updated_at,
			cp.decided_at`

	proposalFindQuery = `SELECT ` + proposalColumns + ` FROM change_proposals cp`

	proposalCountQuery = `SELECT COUNT(cp.id) FROM change_proposals cp`

	proposalInsertQuery = `
		INSERT INTO change_proposals AS cp (
			kind, target_id, submitter_id, state, original_payload, proposed_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + proposalColumns

	// The state guard serializes decide-time races: whoever flips the row
	// first wins, the loser sees zero rows and reports a conflict.
	proposalGuardedUpdateQuery = `
		UPDATE change_proposals cp
		SET
			target_id = $3,
			reviewer_id = $4,
			state = $5,
			original_payload = $6,
			proposed_payload = $7,
			review_note = $8,
			decided_at = $9,
			updated_at = NOW()
		WHERE cp.id = $1 AND cp.state = $2
		RETURNING ` + proposalColumns

	proposalGuardedDeleteQuery = `DELETE FROM change_proposals WHERE id = $1 AND state = ANY($2)`

	proposalExistsQuery = `SELECT 1 FROM change_proposals WHERE id = $1`

	proposalActiveByTargetQuery = proposalFindQuery + `
		WHERE cp.target_id = $1 AND cp.state IN ('pending', 'needs_revision')`
)

type PgProposalRepository struct{}

func NewProposalRepository() proposal.Repository {
	return &PgProposalRepository{}
}

func (r *PgProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.ChangeProposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, tx, proposalFindQuery+" WHERE cp.id = $1", id)
}

func (r *PgProposalRepository) Create(ctx context.Context, p *proposal.ChangeProposal) (*proposal.ChangeProposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	original, err := marshalPayload(p.OriginalPayload)
	if err != nil {
		return nil, err
	}
	proposed, err := marshalPayload(p.ProposedPayload)
	if err != nil {
		return nil, err
	}

	out, err := r.queryOne(
		ctx,
		tx,
		proposalInsertQuery,
		string(p.Kind),
		pgUUIDPtr(p.TargetID),
		p.SubmitterID,
		string(p.State),
		original,
		proposed,
	)
	if err != nil {
		return nil, mapProposalPgError(err)
	}
	return out, nil
}

func (r *PgProposalRepository) UpdateGuarded(ctx context.Context, p *proposal.ChangeProposal, expected proposal.State) (*proposal.ChangeProposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	original, err := marshalPayload(p.OriginalPayload)
	if err != nil {
		return nil, err
	}
	proposed, err := marshalPayload(p.ProposedPayload)
	if err != nil {
		return nil, err
	}

	out, err := r.queryOne(
		ctx,
		tx,
		proposalGuardedUpdateQuery,
		p.ID,
		string(expected),
		pgUUIDPtr(p.TargetID),
		pgUUIDPtr(p.ReviewerID),
		string(p.State),
		original,
		proposed,
		p.ReviewNote,
		pgTimePtr(p.DecidedAt),
	)
	if err != nil {
		if errors.Is(err, proposal.ErrProposalNotFound) {
			return nil, r.missingOrStale(ctx, tx, p.ID)
		}
		return nil, mapProposalPgError(err)
	}
	return out, nil
}

func (r *PgProposalRepository) DeleteGuarded(ctx context.Context, id uuid.UUID, states []proposal.State) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, proposalGuardedDeleteQuery, id, stateStrings(states))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, tx, id)
	}
	return nil
}

func (r *PgProposalRepository) FindActiveByTarget(ctx context.Context, targetID uuid.UUID) (*proposal.ChangeProposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, tx, proposalActiveByTargetQuery, targetID)
}

func (r *PgProposalRepository) List(ctx context.Context, params *proposal.FindParams) ([]*proposal.ChangeProposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildProposalFilters(params)
	query := repo.Join(
		proposalFindQuery,
		whereClause(where),
		"ORDER BY cp.updated_at DESC, cp.id DESC",
	)
	if params != nil && params.Limit > 0 {
		query = repo.Join(query, repo.FormatLimitOffset(params.Limit, 0))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*proposal.ChangeProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *PgProposalRepository) Count(ctx context.Context, params *proposal.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildProposalFilters(params)

	var count int64
	if err := tx.QueryRow(ctx, repo.Join(proposalCountQuery, whereClause(where)), args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgProposalRepository) queryOne(ctx context.Context, tx repo.Tx, query string, args ...interface{}) (*proposal.ChangeProposal, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, proposal.ErrProposalNotFound
	}
	return scanProposal(rows)
}

// missingOrStale distinguishes a vanished row from one whose state moved on,
// so callers can tell NotFound apart from a lost race.
func (r *PgProposalRepository) missingOrStale(ctx context.Context, tx repo.Tx, id uuid.UUID) error {
	var one int
	if err := tx.QueryRow(ctx, proposalExistsQuery, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proposal.ErrProposalNotFound
		}
		return err
	}
	return proposal.ErrStaleState
}

func scanProposal(rows pgx.Rows) (*proposal.ChangeProposal, error) {
	var row models.ChangeProposal
	if err := rows.Scan(
		&row.ID,
		&row.Kind,
		&row.TargetID,
		&row.SubmitterID,
		&row.ReviewerID,
		&row.State,
		&row.OriginalPayload,
		&row.ProposedPayload,
		&row.ReviewNote,
		&row.CreatedAt,
		&row.UpdatedAt,
		&row.DecidedAt,
	); err != nil {
		return nil, err
	}
	return toDomainProposal(&row)
}

func buildProposalFilters(params *proposal.FindParams) ([]string, []interface{}) {
	where := []string{}
	args := []interface{}{}
	if params == nil {
		return where, args
	}

	argPos := 1
	if params.Kind != "" {
		where = append(where, fmt.Sprintf("cp.kind = $%d", argPos))
		args = append(args, string(params.Kind))
		argPos++
	}
	if len(params.States) > 0 {
		where = append(where, fmt.Sprintf("cp.state = ANY($%d)", argPos))
		args = append(args, stateStrings(params.States))
		argPos++
	}
	if params.SubmitterID != nil {
		where = append(where, fmt.Sprintf("cp.submitter_id = $%d", argPos))
		args = append(args, *params.SubmitterID)
		argPos++
	}
	if params.TargetID != nil {
		where = append(where, fmt.Sprintf("cp.target_id = $%d", argPos))
		args = append(args, *params.TargetID)
		argPos++
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		where = append(where, fmt.Sprintf("cp.proposed_payload->>'title' ILIKE $%d", argPos))
		args = append(args, "%"+search+"%")
		argPos++
	}
	if params.CursorUpdatedAt != nil && params.CursorID != nil {
		where = append(where, fmt.Sprintf("(cp.updated_at, cp.id) < ($%d, $%d)", argPos, argPos+1))
		args = append(args, *params.CursorUpdatedAt, *params.CursorID)
	}
	return where, args
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(where, " AND ")
}

func stateStrings(states []proposal.State) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	return out
}

func mapProposalPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeProposalConstraint {
		return proposal.ErrActiveProposalExists
	}
	return err
}
