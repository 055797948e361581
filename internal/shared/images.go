package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const unusedImagesSQL = `SELECT t.u FROM unnest($1::text[]) WITH ORDINALITY AS t(u, ord)
WHERE NOT EXISTS (SELECT 1 FROM vehicles WHERE images @> ARRAY[t.u])
  AND NOT EXISTS (SELECT 1 FROM vehicle_articles WHERE images @> ARRAY[t.u])
  AND NOT EXISTS (SELECT 1 FROM vehicle_reviews WHERE images @> ARRAY[t.u])
ORDER BY t.ord`

// UnusedImages returns the urls no vehicle, article or review row still
// holds, in input order and without duplicates. Hosted images may only be
// deleted once this reports them.
func UnusedImages(ctx context.Context, q Querier, urls []string) ([]string, error) {
	urls = UniqueStrings(urls)
	if len(urls) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, unusedImagesSQL, urls)
	if err != nil {
		return nil, fmt.Errorf("unused images: %w", err)
	}
	unused, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("unused images: %w", err)
	}
	return unused, nil
}

// UniqueStrings drops empty and repeated values, keeping the first
// occurrence order.
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
