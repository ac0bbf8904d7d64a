package domain

// Role is the authorization role carried by every user account.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleAuditor    Role = "AUDITOR"
	RoleSuperAdmin Role = "SUPERADMIN"
	// RoleAdmin is a legacy role kept for accounts created before AUDITOR/SUPERADMIN existed.
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAuditor, RoleSuperAdmin, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r grants access to the admin area.
func (r Role) IsStaff() bool {
	return r == RoleAuditor || r == RoleSuperAdmin || r == RoleAdmin
}

// Role groups used by the route gates and services.
var (
	AdminViewRoles   = []Role{RoleSuperAdmin, RoleAuditor, RoleAdmin}
	ReviewRoles      = []Role{RoleSuperAdmin}
	BulkApproveRoles = []Role{RoleSuperAdmin, RoleAuditor}
	FileDeleteRoles  = []Role{RoleSuperAdmin, RoleAdmin}
	ExportRoles      = []Role{RoleSuperAdmin, RoleAuditor}
	// CompletionWatchers receive the "documents completed" notification.
	CompletionWatchers = []Role{RoleAuditor, RoleSuperAdmin}
)

// Actor is the explicit per-request identity handed to services.
type Actor struct {
	UserID string
	Role   Role
}

// HasRole reports whether the actor holds one of roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
