package tenancy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
)

func TestCapabilityTable(t *testing.T) {
	all := []Action{ActionInspect, ActionRead, ActionSearch, ActionVerify, ActionExport,
		ActionViewAudit, ActionManageUsers, ActionManageTenants, ActionCrossTenant}
	granted := map[Role][]Action{
		RoleSuperAdmin:  all,
		RoleTenantAdmin: {ActionInspect, ActionRead, ActionSearch, ActionVerify, ActionExport, ActionViewAudit, ActionManageUsers},
		RoleAnalyst:     {ActionInspect, ActionRead, ActionSearch, ActionVerify},
		RoleAuditor:     {ActionRead, ActionSearch, ActionVerify, ActionExport, ActionViewAudit, ActionCrossTenant},
		RoleViewer:      {ActionRead, ActionSearch},
	}
	for role, actions := range granted {
		want := map[Action]bool{}
		for _, a := range actions {
			want[a] = true
		}
		for _, a := range all {
			assert.Equal(t, want[a], Allowed(role, a), "%s %s", role, a)
		}
	}
	assert.False(t, Allowed(Role("intern"), ActionRead))
}

func TestScope(t *testing.T) {
	analyst := Actor{UserID: 1, Username: "ana", Role: RoleAnalyst, HomeTenant: 7}

	s, err := analyst.Scope(7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.TenantID())
	assert.NoError(t, s.Err())

	_, err = analyst.Scope(8)
	assert.True(t, errors.Is(err, custody.ErrPermissionDenied))

	_, err = analyst.Scope(0)
	assert.True(t, errors.Is(err, custody.ErrValidation))

	auditor := Actor{UserID: 2, Username: "aud", Role: RoleAuditor, HomeTenant: 7}
	s, err = auditor.Scope(8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), s.TenantID())
}

func TestSessionRequire(t *testing.T) {
	viewer := Actor{UserID: 3, Username: "vic", Role: RoleViewer, HomeTenant: 2}
	sess, err := NewSession(viewer, 2)
	require.NoError(t, err)

	assert.NoError(t, sess.Require(ActionRead))
	assert.True(t, errors.Is(sess.Require(ActionInspect), custody.ErrPermissionDenied))

	var empty Session
	assert.True(t, errors.Is(empty.Require(ActionRead), custody.ErrValidation))
	assert.True(t, errors.Is(Scope{}.Err(), custody.ErrValidation))
}

func TestUserActor(t *testing.T) {
	tid := int64(4)
	a := User{ID: 9, Username: "u", Role: RoleAnalyst, TenantID: &tid}.Actor()
	assert.Equal(t, Actor{UserID: 9, Username: "u", Role: RoleAnalyst, HomeTenant: 4}, a)

	root := User{ID: 1, Username: "root", Role: RoleSuperAdmin}.Actor()
	assert.Zero(t, root.HomeTenant)
	assert.True(t, RoleSuperAdmin.Valid())
	assert.False(t, Role("root").Valid())
}
