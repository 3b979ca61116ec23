package auth

import "strings"

// Role is the caller's role as reported by the user-management service.
type Role string

const (
	RoleVendor    Role = "vendor"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes raw. Unknown roles are returned as-is with ok=false so
// access checks can deny them explicitly.
func ParseRole(raw string) (role Role, ok bool) {
	role = Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleVendor, RoleOrganizer, RoleAdmin:
		return role, true
	default:
		return role, false
	}
}

func (r Role) String() string {
	return string(r)
}

// Title is the role name as shown in error messages ("Vendor").
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Identity is the resolved caller for one request. It is never persisted.
type Identity struct {
	UserID string
	Role   Role
	Token  string
}

// Bypass identity returned when every auth candidate is unreachable and
// bypass mode is on.
const (
	BypassUserID = "dev-user"
	BypassRole   = RoleOrganizer
)

// Auth service endpoints, relative to each candidate base.
const (
	PathUserInfo = "/users/info"
	PathVerify   = "/users/verify"
)

type verifyRequest struct {
	ID           string `json:"id"`
	RequiredRole string `json:"required_role"`
}
