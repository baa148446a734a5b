package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
	"github.com/realvista/backend/modules/catalog/infrastructure/persistence/models"
	"github.com/realvista/backend/pkg/composables"
	"github.com/realvista/backend/pkg/repo"
)

const (
	contentItemFindQuery = `
		SELECT
			ci.id,
			ci.kind,
			ci.status,
			ci.payload,
			ci.created_at,
			ci.updated_at
		FROM content_items ci`

	contentItemCountQuery = `SELECT COUNT(ci.id) FROM content_items ci`

	contentItemInsertQuery = `
		INSERT INTO content_items (kind, status, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	contentItemUpdateQuery = `
		UPDATE content_items
		SET payload = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	// Hides items whose id is currently claimed by an active proposal, so a
	// merged feed never shows the live and the proposed version together.
	activeProposalExclusion = `NOT EXISTS (
			SELECT 1 FROM change_proposals cp
			WHERE cp.target_id = ci.id AND cp.state IN ('pending', 'needs_revision')
		)`
)

type PgContentItemRepository struct{}

func NewContentItemRepository() contentitem.Repository {
	return &PgContentItemRepository{}
}

func (r *PgContentItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*contentitem.ContentItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var row models.ContentItem
	if err := tx.QueryRow(ctx, contentItemFindQuery+" WHERE ci.id = $1", id).Scan(
		&row.ID,
		&row.Kind,
		&row.Status,
		&row.Payload,
		&row.CreatedAt,
		&row.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentitem.ErrContentItemNotFound
		}
		return nil, err
	}
	return toDomainContentItem(&row)
}

func (r *PgContentItemRepository) Create(ctx context.Context, item *contentitem.ContentItem) (*contentitem.ContentItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := marshalPayload(item.Payload)
	if err != nil {
		return nil, err
	}

	out := *item
	if out.Status == "" {
		out.Status = contentitem.StatusApproved
	}
	var id models.ContentItem
	if err := tx.QueryRow(ctx, contentItemInsertQuery, string(out.Kind), string(out.Status), payload).Scan(
		&id.ID,
		&id.CreatedAt,
		&id.UpdatedAt,
	); err != nil {
		return nil, err
	}
	out.ID = asUUID(id.ID)
	out.CreatedAt = asTime(id.CreatedAt)
	out.UpdatedAt = asTime(id.UpdatedAt)
	return &out, nil
}

func (r *PgContentItemRepository) Update(ctx context.Context, item *contentitem.ContentItem) (*contentitem.ContentItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := marshalPayload(item.Payload)
	if err != nil {
		return nil, err
	}

	out := *item
	var updatedAt models.ContentItem
	if err := tx.QueryRow(ctx, contentItemUpdateQuery, item.ID, payload).Scan(&updatedAt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentitem.ErrContentItemNotFound
		}
		return nil, err
	}
	out.UpdatedAt = asTime(updatedAt.UpdatedAt)
	return &out, nil
}

func (r *PgContentItemRepository) List(ctx context.Context, params *contentitem.FindParams) ([]*contentitem.ContentItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildContentItemFilters(params)
	query := repo.Join(
		contentItemFindQuery,
		"WHERE "+strings.Join(where, " AND "),
		"ORDER BY ci.updated_at DESC, ci.id DESC",
	)
	if params != nil && params.Limit > 0 {
		query = repo.Join(query, repo.FormatLimitOffset(params.Limit, 0))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*contentitem.ContentItem
	for rows.Next() {
		var row models.ContentItem
		if err := rows.Scan(
			&row.ID,
			&row.Kind,
			&row.Status,
			&row.Payload,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item, err := toDomainContentItem(&row)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *PgContentItemRepository) Count(ctx context.Context, params *contentitem.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildContentItemFilters(params)

	var count int64
	if err := tx.QueryRow(ctx, contentItemCountQuery+" WHERE "+strings.Join(where, " AND "), args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func buildContentItemFilters(params *contentitem.FindParams) ([]string, []interface{}) {
	where := []string{fmt.Sprintf("ci.status = '%s'", contentitem.StatusApproved)}
	args := []interface{}{}
	if params == nil {
		return where, args
	}

	argPos := 1
	if params.Kind != "" {
		where = append(where, fmt.Sprintf("ci.kind = $%d", argPos))
		args = append(args, string(params.Kind))
		argPos++
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		where = append(where, fmt.Sprintf("ci.payload->>'title' ILIKE $%d", argPos))
		args = append(args, "%"+search+"%")
		argPos++
	}
	if params.CursorUpdatedAt != nil && params.CursorID != nil {
		where = append(where, fmt.Sprintf("(ci.updated_at, ci.id) < ($%d, $%d)", argPos, argPos+1))
		args = append(args, *params.CursorUpdatedAt, *params.CursorID)
	}
	if params.ExcludeActivelyProposed {
		where = append(where, activeProposalExclusion)
	}
	return where, args
}
