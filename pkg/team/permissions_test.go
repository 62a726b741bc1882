package team

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-team-backend/pkg/logging"
	"workspace-team-backend/pkg/models"
)

func TestDefaultRolePolicy(t *testing.T) {
	assert.Equal(t, models.AllPermissions(), DefaultRolePolicy(models.RoleOwner))
	assert.Equal(t, models.AllPermissions(), DefaultRolePolicy(models.RoleAdmin))
	assert.Equal(t, models.PermissionFlags{CanView: true}, DefaultRolePolicy(models.RoleMember))
	assert.Equal(t, models.PermissionFlags{}, DefaultRolePolicy(models.RoleNone))
}

func TestOverrideReplacesRoleDefault(t *testing.T) {
	f := newFixture(t)
	f.workspace("w", 10)
	f.group("g", "w")
	f.member("w", "admin", models.RoleAdmin)
	f.member("w", "plain", models.RoleMember)

	flags, err := f.svc.GetGroupPermission(f.ctx, "g", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.AllPermissions(), flags)

	flags, err = f.svc.GetGroupPermission(f.ctx, "g", "plain")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionFlags{CanView: true}, flags)

	viewOnly := models.PermissionFlags{CanView: true}
	for _, user := range []string{"admin", "plain"} {
		_, err := f.svc.SetGroupPermission(f.ctx, "g", ownerID, user, viewOnly)
		require.NoError(t, err)

		flags, err := f.svc.GetGroupPermission(f.ctx, "g", user)
		require.NoError(t, err)
		assert.Equal(t, viewOnly, flags, user)
	}

	// An override may also grant more than the role default.
	_, err = f.svc.SetGroupPermission(f.ctx, "g", ownerID, "plain", models.PermissionFlags{CanView: true, CanEdit: true})
	require.NoError(t, err)
	flags, err = f.svc.GetGroupPermission(f.ctx, "g", "plain")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionFlags{CanView: true, CanEdit: true}, flags)

	flags, err = f.svc.GetGroupPermission(f.ctx, "g", ownerID)
	require.NoError(t, err)
	assert.Equal(t, models.AllPermissions(), flags)

	flags, err = f.svc.GetGroupPermission(f.ctx, "g", "stranger")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionFlags{}, flags)
}

func TestSetPermissionRules(t *testing.T) {
	f := newFixture(t)
	f.workspace("w", 10)
	f.group("g", "w")
	f.member("w", "admin1", models.RoleAdmin)
	f.member("w", "admin2", models.RoleAdmin)
	f.member("w", "plain", models.RoleMember)

	flags := models.PermissionFlags{CanView: true}

	_, err := f.svc.SetGroupPermission(f.ctx, "g", "plain", "admin1", flags)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SetGroupPermission(f.ctx, "g", "admin1", "admin2", flags)
	assert.ErrorIs(t, err, ErrForbidden, "admins cannot restrict admins")

	_, err = f.svc.SetGroupPermission(f.ctx, "g", "admin1", ownerID, flags)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SetGroupPermission(f.ctx, "g", "admin1", "stranger", flags)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.SetGroupPermission(f.ctx, "missing", ownerID, "plain", flags)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := f.svc.SetGroupPermission(f.ctx, "g", "admin1", "plain", flags)
	require.NoError(t, err)
	second, err := f.svc.SetGroupPermission(f.ctx, "g", ownerID, "plain", models.PermissionFlags{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert keeps one row per group and user")
}

func TestRemoveAndListPermissions(t *testing.T) {
	f := newFixture(t)
	f.workspace("w", 10)
	f.group("g", "w")
	f.member("w", "admin", models.RoleAdmin)
	f.member("w", "plain", models.RoleMember)

	perm, err := f.svc.SetGroupPermission(f.ctx, "g", "admin", "plain", models.PermissionFlags{})
	require.NoError(t, err)

	list, err := f.svc.ListGroupPermissions(f.ctx, "g", "plain")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, perm.ID, list[0].ID)

	_, err = f.svc.ListGroupPermissions(f.ctx, "g", "stranger")
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, f.svc.RemoveGroupPermission(f.ctx, perm.ID, "plain"), ErrForbidden)
	require.NoError(t, f.svc.RemoveGroupPermission(f.ctx, perm.ID, "admin"))
	assert.ErrorIs(t, f.svc.RemoveGroupPermission(f.ctx, perm.ID, "admin"), ErrNotFound)

	flags, err := f.svc.GetGroupPermission(f.ctx, "g", "plain")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionFlags{CanView: true}, flags, "role default applies again")
}

func TestCustomRolePolicy(t *testing.T) {
	f := newFixture(t)
	f.workspace("w", 10)
	f.group("g", "w")
	f.member("w", "plain", models.RoleMember)

	svc := NewService(f.store, Options{
		Logger: logging.Discard(),
		RolePolicy: func(role models.Role) models.PermissionFlags {
			if role == models.RoleMember {
				return models.PermissionFlags{CanView: true, CanEdit: true}
			}
			return DefaultRolePolicy(role)
		},
	})
	flags, err := svc.GetGroupPermission(context.Background(), "g", "plain")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionFlags{CanView: true, CanEdit: true}, flags)
}
