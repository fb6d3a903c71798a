package tenancy

import (
	"fmt"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
)

// Action is a capability checked at the access boundary.
type Action string

const (
	ActionInspect       Action = "inspect"
	ActionRead          Action = "read"
	ActionSearch        Action = "search"
	ActionVerify        Action = "verify"
	ActionExport        Action = "export"
	ActionViewAudit     Action = "view_audit"
	ActionManageUsers   Action = "manage_users"
	ActionManageTenants Action = "manage_tenants"
	ActionCrossTenant   Action = "cross_tenant"
)

var capabilities = map[Role]map[Action]bool{
	RoleSuperAdmin: set(ActionInspect, ActionRead, ActionSearch, ActionVerify, ActionExport,
		ActionViewAudit, ActionManageUsers, ActionManageTenants, ActionCrossTenant),
	RoleTenantAdmin: set(ActionInspect, ActionRead, ActionSearch, ActionVerify, ActionExport,
		ActionViewAudit, ActionManageUsers),
	RoleAnalyst: set(ActionInspect, ActionRead, ActionSearch, ActionVerify),
	RoleAuditor: set(ActionRead, ActionSearch, ActionVerify, ActionExport, ActionViewAudit,
		ActionCrossTenant),
	RoleViewer: set(ActionRead, ActionSearch),
}

func set(actions ...Action) map[Action]bool {
	m := make(map[Action]bool, len(actions))
	for _, a := range actions {
		m[a] = true
	}
	return m
}

// Allowed reports whether role may perform action.
func Allowed(role Role, action Action) bool {
	return capabilities[role][action]
}

// Actor is the authenticated identity behind a request. HomeTenant is 0
// when the user belongs to no tenant.
type Actor struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	HomeTenant int64  `json:"home_tenant,omitempty"`
}

// Can reports whether the actor's role grants action.
func (a Actor) Can(action Action) bool { return Allowed(a.Role, action) }

// Require returns ErrPermissionDenied unless the actor may perform action.
func (a Actor) Require(action Action) error {
	if !a.Can(action) {
		return custody.Denied(fmt.Sprintf("role %q cannot %s", a.Role, action))
	}
	return nil
}

// Scope resolves the tenant scope the actor may act in. A zero tenant is a
// validation error; another tenant than the actor's own needs the
// cross-tenant capability.
func (a Actor) Scope(tenantID int64) (Scope, error) {
	if tenantID <= 0 {
		return Scope{}, custody.Invalid("no active tenant selected")
	}
	if tenantID != a.HomeTenant && !a.Can(ActionCrossTenant) {
		return Scope{}, custody.Denied(fmt.Sprintf("tenant %d is outside the caller's tenant", tenantID))
	}
	return Scope{tenantID: tenantID}, nil
}

// Scope is a tenant filter that repositories must apply to every query.
// It can only be obtained through Actor.Scope, so its zero value means
// "no tenant selected".
type Scope struct {
	tenantID int64
}

// TenantID returns the scoped tenant id.
func (s Scope) TenantID() int64 { return s.tenantID }

// Err returns a validation error for the zero scope.
func (s Scope) Err() error {
	if s.tenantID <= 0 {
		return custody.Invalid("no active tenant selected")
	}
	return nil
}

// Session is the request-scoped context threaded through every use case:
// who is acting and in which tenant.
type Session struct {
	Actor Actor
	Scope Scope
}

// NewSession resolves a session for actor in tenantID.
func NewSession(actor Actor, tenantID int64) (Session, error) {
	scope, err := actor.Scope(tenantID)
	if err != nil {
		return Session{}, err
	}
	return Session{Actor: actor, Scope: scope}, nil
}

// TenantID is shorthand for s.Scope.TenantID().
func (s Session) TenantID() int64 { return s.Scope.TenantID() }

// Require checks a capability and that the session carries a tenant.
func (s Session) Require(action Action) error {
	if err := s.Scope.Err(); err != nil {
		return err
	}
	return s.Actor.Require(action)
}
