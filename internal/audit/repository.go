package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository interface {
	Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error)
	All(ctx context.Context, f TimelineFilters, limit int) ([]TimelineRow, error)
	Actions(ctx context.Context) ([]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSelect = `SELECT l.id, l.occurred_at, l.actor_id, COALESCE(u.email, ''), l.action, l.entity, l.entity_id, l.meta
FROM audit_logs l
LEFT JOIN users u ON u.id = l.actor_id`

// whereClause renders the filter predicates and their arguments. To is
// inclusive of the whole day.
func whereClause(f TimelineFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("l.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("l.occurred_at < $%d", f.To.Add(24*time.Hour))
	}
	if actor := strings.TrimSpace(f.Actor); actor != "" {
		add("u.email ILIKE $%d", "%"+actor+"%")
	}
	if entity := strings.TrimSpace(f.Entity); entity != "" {
		add("l.entity = $%d", entity)
	}
	if action := strings.TrimSpace(f.Action); action != "" {
		add("l.action = $%d", action)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Window returns limit rows starting at offset, newest first.
func (r *PGRepository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := whereClause(f)
	args = append(args, limit, offset)
	query := timelineSelect + where + fmt.Sprintf(" ORDER BY l.occurred_at DESC, l.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

// All returns up to limit matching rows, newest first.
func (r *PGRepository) All(ctx context.Context, f TimelineFilters, limit int) ([]TimelineRow, error) {
	where, args := whereClause(f)
	args = append(args, limit)
	query := timelineSelect + where + fmt.Sprintf(" ORDER BY l.occurred_at DESC, l.id DESC LIMIT $%d", len(args))
	return r.query(ctx, query, args...)
}

// Actions lists the distinct action names recorded so far.
func (r *PGRepository) Actions(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT action FROM audit_logs ORDER BY action`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.ID, &out.At, &out.ActorID, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, fmt.Errorf("decode audit meta %d: %w", out.ID, err)
			}
		}
		return out, nil
	})
}

var _ Repository = (*PGRepository)(nil)
