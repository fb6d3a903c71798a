package tenancy

import "time"

// Role enum
type Role string

const (
	RoleSuperAdmin  Role = "superadmin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleAnalyst     Role = "analyst"
	RoleAuditor     Role = "auditor"
	RoleViewer      Role = "viewer"
)

// Roles lists every known role in privilege order.
var Roles = []Role{RoleSuperAdmin, RoleTenantAdmin, RoleAnalyst, RoleAuditor, RoleViewer}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Tenant is an isolated customer partition.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a global account. TenantID is nil for users bound to no tenant
// (typically the bootstrap superadmin).
type User struct {
	ID           int64      `json:"id"`
	TenantID     *int64     `json:"tenant_id,omitempty"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Actor returns the request identity for u.
func (u User) Actor() Actor {
	a := Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
	if u.TenantID != nil {
		a.HomeTenant = *u.TenantID
	}
	return a
}
