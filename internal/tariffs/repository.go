package tariffs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daya-auto/carsale/internal/platform/db"
	"github.com/daya-auto/carsale/internal/shared"
)

// ErrDuplicateCountry reports a second tariff for the same country.
var ErrDuplicateCountry = fmt.Errorf("tariff for country already exists: %w", shared.ErrConflict)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Tariff, error)
	Get(ctx context.Context, id int64) (Tariff, error)
	FindByCountry(ctx context.Context, country string) (Tariff, error)
	Create(ctx context.Context, t Tariff) (Tariff, error)
	Update(ctx context.Context, id int64, t Tariff) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const tariffColumns = `id, country, tax_percentage, duty_percentage, created_at, updated_at`

func scanTariff(row pgx.Row) (Tariff, error) {
	var t Tariff
	err := row.Scan(&t.ID, &t.Country, &t.TaxPercentage, &t.DutyPercentage, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tariff{}, shared.ErrNotFound
	}
	return t, err
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Tariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND country ILIKE $` + strconv.Itoa(len(args))
	}
	query += " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Tariff, error) {
	return scanTariff(r.pool.QueryRow(ctx, `SELECT `+tariffColumns+` FROM tariffs WHERE id = $1`, id))
}

func (r *repository) FindByCountry(ctx context.Context, country string) (Tariff, error) {
	return scanTariff(r.pool.QueryRow(ctx, `SELECT `+tariffColumns+` FROM tariffs WHERE LOWER(country) = LOWER($1)`, country))
}

func (r *repository) Create(ctx context.Context, t Tariff) (Tariff, error) {
	created, err := scanTariff(r.pool.QueryRow(ctx, `INSERT INTO tariffs (country, tax_percentage, duty_percentage)
VALUES ($1, $2, $3) RETURNING `+tariffColumns, t.Country, t.TaxPercentage, t.DutyPercentage))
	if db.IsUniqueViolation(err, "tariffs_country_lower_key") {
		return Tariff{}, ErrDuplicateCountry
	}
	return created, err
}

func (r *repository) Update(ctx context.Context, id int64, t Tariff) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tariffs SET country = $2, tax_percentage = $3, duty_percentage = $4, updated_at = NOW()
WHERE id = $1`, id, t.Country, t.TaxPercentage, t.DutyPercentage)
	if err != nil {
		if db.IsUniqueViolation(err, "tariffs_country_lower_key") {
			return ErrDuplicateCountry
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tariffs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "tax":
		return "tax_percentage " + dir + ", country ASC"
	case "duty":
		return "duty_percentage " + dir + ", country ASC"
	case "updated":
		return "updated_at " + dir
	default:
		return "LOWER(country) " + dir
	}
}
