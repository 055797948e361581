// Package articles manages vehicle write-ups by administrators and reviews
// by signed-in users.
package articles

import (
	"errors"
	"time"
)

// RecentLimit is the number of articles shown on the dashboard.
const RecentLimit = 10

// ErrVehicleRequired is returned when an article names no vehicle.
var ErrVehicleRequired = errors.New("articles: vehicle id or name required")

// Article is a long-form post about a vehicle. VehicleID is nil for posts
// about vehicles that are not in stock, identified by VehicleName alone.
type Article struct {
	ID          int64
	VehicleID   *int64
	VehicleName string
	Title       string
	Body        string
	Images      []string
	AuthorID    int64
	AuthorName  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Review is a user's rating of a vehicle.
type Review struct {
	ID        int64
	VehicleID int64
	UserID    int64
	UserName  string
	Rating    int
	Comment   string
	Images    []string
	CreatedAt time.Time
}

// ArticleInput carries the fields an administrator submits.
type ArticleInput struct {
	VehicleID   *int64
	VehicleName string `validate:"max=160"`
	Title       string `validate:"required,max=200"`
	Body        string `validate:"required,max=20000"`
}

// ReviewInput carries the fields a reviewer submits.
type ReviewInput struct {
	Rating  int    `validate:"min=1,max=5"`
	Comment string `validate:"required,max=2000"`
}

// Summary is the review aggregate shown on the vehicle page.
type Summary struct {
	Count   int
	Average float64
}

func summarize(reviews []Review) Summary {
	if len(reviews) == 0 {
		return Summary{}
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	return Summary{Count: len(reviews), Average: float64(total) / float64(len(reviews))}
}
