package users

import (
	"time"

	"github.com/daya-auto/carsale/internal/rbac"
)

// User represents a user account as shown to administrators.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         rbac.Role
	IsActive     bool
	VehicleCount int
	CreatedAt    time.Time
}
