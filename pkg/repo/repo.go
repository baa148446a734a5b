package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the subset of pgx shared by pgx.Tx and pgxpool.Pool, so repositories
// run the same code inside and outside an explicit transaction.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// FormatLimitOffset returns a LIMIT/OFFSET clause for non-zero values.
func FormatLimitOffset(limit, offset int) string {
	parts := make([]string, 0, 2)
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	}
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}
	return strings.Join(parts, " ")
}

// Join concatenates non-empty SQL fragments with a single space.
func Join(fragments ...string) string {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}
