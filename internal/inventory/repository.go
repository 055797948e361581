package inventory

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daya-auto/carsale/internal/platform/db"
	"github.com/daya-auto/carsale/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vehicleColumns = `v.id, v.chassis_number, v.brand, v.model, v.year, v.grade, v.country,
v.purchase_price, v.cif_value, v.lc_value, v.selling_price, v.net_profit, v.advance_payment, v.rest_payment,
v.price, v.tax, v.duty, v.total_amount,
v.shipping_company, v.shipping_date, v.arrival_date,
v.purchaser_name, v.purchaser_phone, v.purchaser_id_number, v.purchaser_address,
v.images, v.status, v.sold_at, v.added_by, COALESCE(NULLIF(u.display_name, ''), u.email, ''), v.created_at, v.updated_at`

const vehicleFrom = ` FROM vehicles v LEFT JOIN users u ON u.id = v.added_by`

func scanVehicle(row pgx.Row) (Vehicle, error) {
	var v Vehicle
	var status string
	err := row.Scan(&v.ID, &v.ChassisNumber, &v.Brand, &v.Model, &v.Year, &v.Grade, &v.Country,
		&v.PurchasePrice, &v.CIFValue, &v.LCValue, &v.SellingPrice, &v.NetProfit, &v.AdvancePayment, &v.RestPayment,
		&v.Price, &v.Tax, &v.Duty, &v.TotalAmount,
		&v.ShippingCompany, &v.ShippingDate, &v.ArrivalDate,
		&v.PurchaserName, &v.PurchaserPhone, &v.PurchaserIDNumber, &v.PurchaserAddress,
		&v.Images, &status, &v.SoldAt, &v.AddedBy, &v.AddedByName, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vehicle{}, shared.ErrNotFound
		}
		return Vehicle{}, err
	}
	v.Status = Status(status)
	return v, nil
}

// Create inserts v and returns the stored row.
func (r *Repository) Create(ctx context.Context, v Vehicle) (Vehicle, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO vehicles (
chassis_number, brand, model, year, grade, country,
purchase_price, cif_value, lc_value, selling_price, net_profit, advance_payment, rest_payment,
price, tax, duty, total_amount,
shipping_company, shipping_date, arrival_date,
purchaser_name, purchaser_phone, purchaser_id_number, purchaser_address,
images, status, sold_at, added_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
$21, $22, $23, $24, $25, $26, $27, $28)
RETURNING id`,
		v.ChassisNumber, v.Brand, v.Model, v.Year, v.Grade, v.Country,
		v.PurchasePrice, v.CIFValue, v.LCValue, v.SellingPrice, v.NetProfit, v.AdvancePayment, v.RestPayment,
		v.Price, v.Tax, v.Duty, v.TotalAmount,
		v.ShippingCompany, v.ShippingDate, v.ArrivalDate,
		v.PurchaserName, v.PurchaserPhone, v.PurchaserIDNumber, v.PurchaserAddress,
		nonNil(v.Images), string(v.Status), v.SoldAt, v.AddedBy,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "vehicles_chassis_number_key") {
			return Vehicle{}, ErrDuplicateChassis
		}
		return Vehicle{}, err
	}
	return r.Get(ctx, id)
}

// Get loads one vehicle.
func (r *Repository) Get(ctx context.Context, id int64) (Vehicle, error) {
	return scanVehicle(r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+vehicleFrom+` WHERE v.id = $1`, id))
}

// Update writes every editable and derived column of v.
func (r *Repository) Update(ctx context.Context, v Vehicle) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vehicles SET
chassis_number = $2, brand = $3, model = $4, year = $5, grade = $6, country = $7,
purchase_price = $8, cif_value = $9, lc_value = $10, selling_price = $11, net_profit = $12,
advance_payment = $13, rest_payment = $14, price = $15, tax = $16, duty = $17, total_amount = $18,
shipping_company = $19, shipping_date = $20, arrival_date = $21,
purchaser_name = $22, purchaser_phone = $23, purchaser_id_number = $24, purchaser_address = $25,
images = $26, updated_at = NOW()
WHERE id = $1`,
		v.ID, v.ChassisNumber, v.Brand, v.Model, v.Year, v.Grade, v.Country,
		v.PurchasePrice, v.CIFValue, v.LCValue, v.SellingPrice, v.NetProfit,
		v.AdvancePayment, v.RestPayment, v.Price, v.Tax, v.Duty, v.TotalAmount,
		v.ShippingCompany, v.ShippingDate, v.ArrivalDate,
		v.PurchaserName, v.PurchaserPhone, v.PurchaserIDNumber, v.PurchaserAddress,
		nonNil(v.Images))
	if err != nil {
		if db.IsUniqueViolation(err, "vehicles_chassis_number_key") {
			return ErrDuplicateChassis
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateStatus sets the status and sold timestamp.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status, soldAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vehicles SET status = $2, sold_at = $3, updated_at = NOW() WHERE id = $1`, id, string(status), soldAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the vehicle together with its articles and reviews and
// returns the image URLs those related rows held.
func (r *Repository) Delete(ctx context.Context, id int64) ([]string, error) {
	var images []string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COALESCE(array_agg(img), '{}') FROM (
SELECT unnest(images) AS img FROM vehicle_articles WHERE vehicle_id = $1
UNION ALL
SELECT unnest(images) FROM vehicle_reviews WHERE vehicle_id = $1) related`, id).Scan(&images); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// UnusedImages returns the urls no vehicle, article or review references.
func (r *Repository) UnusedImages(ctx context.Context, urls []string) ([]string, error) {
	return shared.UnusedImages(ctx, r.pool, urls)
}

// List returns one page of vehicles matching f and the total match count.
func (r *Repository) List(ctx context.Context, f Filters) ([]Vehicle, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles v`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + vehicleColumns + vehicleFrom + where + ` ORDER BY ` + sortOrder(f.SortBy, f.SortDir)
	if f.PerPage > 0 {
		p := shared.NewPagination(f.Page, f.PerPage, total)
		args = append(args, p.PerPage)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		args = append(args, p.Offset())
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// Stats aggregates status counts and profit over the vehicles matching f.
func (r *Repository) Stats(ctx context.Context, f Filters) (Stats, error) {
	where, args := buildWhere(f)
	var s Stats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
COUNT(*) FILTER (WHERE v.status = 'available'),
COUNT(*) FILTER (WHERE v.status = 'reserved'),
COUNT(*) FILTER (WHERE v.status = 'sold'),
COALESCE(SUM(v.net_profit), 0)
FROM vehicles v`+where, args...).Scan(&s.Total, &s.Available, &s.Reserved, &s.Sold, &s.TotalProfit)
	return s, err
}

func buildWhere(f Filters) (string, []any) {
	var clauses []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + escapeLike(s) + "%")
		clauses = append(clauses, "(v.brand ILIKE "+p+" OR v.model ILIKE "+p+" OR v.chassis_number ILIKE "+p+" OR v.country ILIKE "+p+")")
	}
	for _, field := range []struct{ col, val string }{
		{"v.brand", f.Brand},
		{"v.model", f.Model},
		{"v.chassis_number", f.Chassis},
		{"v.country", f.Country},
	} {
		if val := strings.TrimSpace(field.val); val != "" {
			clauses = append(clauses, field.col+" ILIKE "+arg("%"+escapeLike(val)+"%"))
		}
	}
	if f.MinPrice != nil {
		clauses = append(clauses, "v.price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, "v.price <= "+arg(*f.MaxPrice))
	}
	if f.Status != "" {
		clauses = append(clauses, "v.status = "+arg(string(f.Status)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	switch sortBy {
	case "brand":
		return "LOWER(v.brand) " + dir + ", v.id DESC"
	case "model":
		return "LOWER(v.model) " + dir + ", v.id DESC"
	case "year":
		return "v.year " + dir + ", v.id DESC"
	case "price":
		return "v.price " + dir + ", v.id DESC"
	case "profit":
		return "v.net_profit " + dir + ", v.id DESC"
	case "created_at":
		return "v.created_at " + dir + ", v.id " + dir
	default:
		return "v.created_at DESC, v.id DESC"
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ RepositoryPort = (*Repository)(nil)
