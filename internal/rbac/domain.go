package rbac

import (
	"sort"
	"strings"
)

// Role represents a high-level permission grouping.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Permission names checked by handlers and middleware.
const (
	PermVehiclesView      = "vehicles.view"
	PermVehiclesCreate    = "vehicles.create"
	PermVehiclesEditOwn   = "vehicles.edit.own"
	PermVehiclesEditAny   = "vehicles.edit.any"
	PermVehiclesStatusAny = "vehicles.status.any"
	PermVehiclesDelete    = "vehicles.delete"
	PermAnalyticsView     = "analytics.view"
	PermArticlesManage    = "articles.manage"
	PermReviewsCreate     = "reviews.create"
	PermReviewsDelete     = "reviews.delete"
	PermTariffsManage     = "tariffs.manage"
	PermUsersView         = "users.view"
	PermJobsView          = "jobs.view"
	PermAuditView         = "audit.view"
)

var userPermissions = []string{
	PermVehiclesView,
	PermVehiclesCreate,
	PermVehiclesEditOwn,
	PermReviewsCreate,
}

var adminPermissions = append(append([]string{}, userPermissions...),
	PermVehiclesEditAny,
	PermVehiclesStatusAny,
	PermVehiclesDelete,
	PermAnalyticsView,
	PermArticlesManage,
	PermReviewsDelete,
	PermTariffsManage,
	PermUsersView,
	PermJobsView,
	PermAuditView,
)

// PermissionsFor returns the sorted permission set granted to role.
func PermissionsFor(role Role) []string {
	var src []string
	switch role {
	case RoleAdmin:
		src = adminPermissions
	case RoleUser:
		src = userPermissions
	default:
		return nil
	}
	out := append([]string{}, src...)
	sort.Strings(out)
	return out
}

// Principal describes the authenticated actor.
type Principal struct {
	UserID      int64
	Email       string
	DisplayName string
	Role        Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Authenticated reports whether the principal refers to a user.
func (p Principal) Authenticated() bool {
	return p.UserID > 0
}

// Can reports whether the principal's role grants perm.
func (p Principal) Can(perm string) bool {
	perm = strings.ToLower(strings.TrimSpace(perm))
	for _, granted := range PermissionsFor(p.Role) {
		if granted == perm {
			return true
		}
	}
	return false
}

// Name is the label shown in the UI, falling back to the email address.
func (p Principal) Name() string {
	if strings.TrimSpace(p.DisplayName) != "" {
		return p.DisplayName
	}
	return p.Email
}

// CanManageOwned reports whether p may edit or change the status of a
// record created by ownerID.
func (p Principal) CanManageOwned(ownerID int64) bool {
	if !p.Authenticated() {
		return false
	}
	if p.Can(PermVehiclesEditAny) {
		return true
	}
	return p.Can(PermVehiclesEditOwn) && ownerID == p.UserID
}

// AdminPolicy decides which accounts are administrators.
type AdminPolicy struct {
	emails map[string]struct{}
}

// NewAdminPolicy builds a policy from the configured admin addresses.
func NewAdminPolicy(emails []string) AdminPolicy {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		set[e] = struct{}{}
	}
	return AdminPolicy{emails: set}
}

// RoleFor resolves the role attached to email.
func (p AdminPolicy) RoleFor(email string) Role {
	if _, ok := p.emails[normalizeEmail(email)]; ok {
		return RoleAdmin
	}
	return RoleUser
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
