package domain

import "strings"

// Role is the capability level the auth collaborator grants a caller.
type Role string

const (
	RoleUser     Role = "user"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// ParseRole maps claim values onto a Role. Unknown values fall back to RoleUser.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "administrator", "superadmin":
		return RoleAdmin
	case "employee", "staff", "reviewer":
		return RoleEmployee
	default:
		return RoleUser
	}
}

// Actor identifies who is invoking an operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) Authenticated() bool {
	return strings.TrimSpace(a.UserID) != ""
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsEmployee() bool {
	return a.Role == RoleEmployee
}

// CanReview reports whether the actor may work the KYC review queue.
func (a Actor) CanReview() bool {
	return a.IsAdmin() || a.IsEmployee()
}
