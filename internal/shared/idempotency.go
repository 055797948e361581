package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict indicates the key was already used.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore persists processed request keys together with the
// resource they produced so retries can be answered without side effects.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Reserve claims key within scope. When the key exists the stored resource
// id is returned together with ErrIdempotencyConflict.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, scope string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("idempotency store not initialised")
	}
	if key == "" || scope == "" {
		return 0, errors.New("idempotency key and scope required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, scope, created_at) VALUES ($1, $2, NOW())`, key, scope)
	if err == nil {
		return 0, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return 0, err
	}
	var resourceID *int64
	if err := s.pool.QueryRow(ctx, `SELECT resource_id FROM idempotency_keys WHERE key = $1 AND scope = $2`, key, scope).Scan(&resourceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrIdempotencyConflict
		}
		return 0, err
	}
	if resourceID == nil {
		return 0, ErrIdempotencyConflict
	}
	return *resourceID, ErrIdempotencyConflict
}

// Complete attaches the created resource to a reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, scope string, resourceID int64) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET resource_id = $3 WHERE key = $1 AND scope = $2`, key, scope, resourceID)
	return err
}

// Release removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, key, scope string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND scope = $2`, key, scope)
	return err
}

// Cleanup removes entries older than retention and reports how many were dropped.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
