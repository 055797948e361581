package articles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daya-auto/carsale/internal/platform/db"
	"github.com/daya-auto/carsale/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	ListArticles(ctx context.Context, vehicleID int64, limit int) ([]Article, error)
	GetArticle(ctx context.Context, id int64) (Article, error)
	CreateArticle(ctx context.Context, a Article) (Article, error)
	UpdateArticle(ctx context.Context, id int64, title, body string) error
	DeleteArticle(ctx context.Context, id int64) error
	ListReviews(ctx context.Context, vehicleID int64) ([]Review, error)
	GetReview(ctx context.Context, id int64) (Review, error)
	CreateReview(ctx context.Context, r Review) (Review, error)
	DeleteReview(ctx context.Context, id int64) error
	UnusedImages(ctx context.Context, urls []string) ([]string, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const articleColumns = `id, vehicle_id, vehicle_name, title, body, images, author_id, author_name, created_at, updated_at`

func scanArticle(row pgx.Row) (Article, error) {
	var a Article
	err := row.Scan(&a.ID, &a.VehicleID, &a.VehicleName, &a.Title, &a.Body, &a.Images, &a.AuthorID, &a.AuthorName, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Article{}, shared.ErrNotFound
	}
	return a, err
}

// ListArticles returns articles newest first. A zero vehicleID lists all
// articles; a non-positive limit means no limit.
func (r *Repository) ListArticles(ctx context.Context, vehicleID int64, limit int) ([]Article, error) {
	query := `SELECT ` + articleColumns + ` FROM vehicle_articles`
	var args []any
	if vehicleID > 0 {
		args = append(args, vehicleID)
		query += ` WHERE vehicle_id = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		if vehicleID > 0 {
			query += ` LIMIT $2`
		} else {
			query += ` LIMIT $1`
		}
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetArticle loads one article.
func (r *Repository) GetArticle(ctx context.Context, id int64) (Article, error) {
	return scanArticle(r.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM vehicle_articles WHERE id = $1`, id))
}

// CreateArticle inserts a and returns the stored row.
func (r *Repository) CreateArticle(ctx context.Context, a Article) (Article, error) {
	images := a.Images
	if images == nil {
		images = []string{}
	}
	created, err := scanArticle(r.pool.QueryRow(ctx, `INSERT INTO vehicle_articles (vehicle_id, vehicle_name, title, body, images, author_id, author_name)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+articleColumns, a.VehicleID, a.VehicleName, a.Title, a.Body, images, a.AuthorID, a.AuthorName))
	if err != nil && db.IsForeignKeyViolation(err) {
		return Article{}, shared.ErrNotFound
	}
	return created, err
}

// UpdateArticle rewrites the title and body.
func (r *Repository) UpdateArticle(ctx context.Context, id int64, title, body string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vehicle_articles SET title = $2, body = $3, updated_at = NOW() WHERE id = $1`, id, title, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteArticle removes an article.
func (r *Repository) DeleteArticle(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vehicle_articles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const reviewColumns = `id, vehicle_id, user_id, user_name, rating, comment, images, created_at`

func scanReview(row pgx.Row) (Review, error) {
	var rv Review
	var rating int16
	err := row.Scan(&rv.ID, &rv.VehicleID, &rv.UserID, &rv.UserName, &rating, &rv.Comment, &rv.Images, &rv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, shared.ErrNotFound
	}
	rv.Rating = int(rating)
	return rv, err
}

// ListReviews returns the reviews of a vehicle, newest first.
func (r *Repository) ListReviews(ctx context.Context, vehicleID int64) ([]Review, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reviewColumns+` FROM vehicle_reviews WHERE vehicle_id = $1 ORDER BY created_at DESC, id DESC`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// GetReview loads one review.
func (r *Repository) GetReview(ctx context.Context, id int64) (Review, error) {
	return scanReview(r.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM vehicle_reviews WHERE id = $1`, id))
}

// CreateReview inserts rv and returns the stored row.
func (r *Repository) CreateReview(ctx context.Context, rv Review) (Review, error) {
	images := rv.Images
	if images == nil {
		images = []string{}
	}
	created, err := scanReview(r.pool.QueryRow(ctx, `INSERT INTO vehicle_reviews (vehicle_id, user_id, user_name, rating, comment, images)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+reviewColumns, rv.VehicleID, rv.UserID, rv.UserName, rv.Rating, rv.Comment, images))
	if err != nil && db.IsForeignKeyViolation(err) {
		return Review{}, shared.ErrNotFound
	}
	return created, err
}

// DeleteReview removes a review.
func (r *Repository) DeleteReview(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vehicle_reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)

// UnusedImages returns the urls no vehicle, article or review references.
func (r *Repository) UnusedImages(ctx context.Context, urls []string) ([]string, error) {
	return shared.UnusedImages(ctx, r.pool, urls)
}
