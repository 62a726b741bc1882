package team

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/models"
)

// RolePolicy gives the group permissions a workspace role has when no
// override row exists.
type RolePolicy func(role models.Role) models.PermissionFlags

// DefaultRolePolicy grants Owner and Admin everything and Member view only.
func DefaultRolePolicy(role models.Role) models.PermissionFlags {
	switch role {
	case models.RoleOwner, models.RoleAdmin:
		return models.AllPermissions()
	case models.RoleMember:
		return models.PermissionFlags{CanView: true}
	default:
		return models.PermissionFlags{}
	}
}

// Overlay manages per-group, per-user permission overrides. An override
// replaces the role default entirely.
type Overlay struct {
	*deps
	ledger *Ledger
	policy RolePolicy
}

// groupWorkspace resolves the group and the workspace it belongs to.
func (o *Overlay) groupWorkspace(ctx context.Context, groupID string) (*models.Group, *models.Workspace, error) {
	group, err := o.store.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, newError(KindNotFound, "group %s not found", groupID)
		}
		return nil, nil, internal("load group", err)
	}
	ws, err := o.ledger.workspace(ctx, group.WorkspaceID)
	if err != nil {
		return nil, nil, err
	}
	return group, ws, nil
}

// SetPermission upserts the override for targetUserID in the group.
func (o *Overlay) SetPermission(ctx context.Context, groupID, actingUserID, targetUserID string, flags models.PermissionFlags) (*models.GroupPermission, error) {
	group, ws, err := o.groupWorkspace(ctx, groupID)
	if err != nil {
		return nil, err
	}
	acting, _, err := o.ledger.roleIn(ctx, ws, actingUserID)
	if err != nil {
		return nil, err
	}
	logCtx := o.log.WithFields(logrus.Fields{
		"group_id":       group.ID,
		"workspace_id":   ws.ID,
		"acting_user_id": actingUserID,
		"target_user_id": targetUserID,
	})
	if !acting.AtLeast(models.RoleAdmin) {
		logCtx.Warn("set permission rejected: insufficient role")
		return nil, newError(KindForbidden, "only the owner or an admin can set group permissions")
	}

	target, _, err := o.ledger.roleIn(ctx, ws, targetUserID)
	if err != nil {
		return nil, err
	}
	switch {
	case target == models.RoleNone:
		return nil, newError(KindNotFound, "user %s is not a member of this workspace", targetUserID)
	case target == models.RoleOwner:
		logCtx.Warn("set permission rejected: target is owner")
		return nil, newError(KindForbidden, "the owner's permissions cannot be overridden")
	case acting == models.RoleAdmin && target == models.RoleAdmin:
		logCtx.Warn("set permission rejected: admin targeting admin")
		return nil, newError(KindForbidden, "admins cannot restrict other admins")
	}

	perm := &models.GroupPermission{
		ID:              uuid.NewString(),
		GroupID:         group.ID,
		UserID:          targetUserID,
		PermissionFlags: flags,
	}
	if err := o.store.UpsertGroupPermission(ctx, perm); err != nil {
		return nil, internal("upsert group permission", err)
	}
	logCtx.WithField("permission_id", perm.ID).Info("group permission set")
	return perm, nil
}

// GetEffectivePermission returns what userID may do in the group.
func (o *Overlay) GetEffectivePermission(ctx context.Context, groupID, userID string) (models.PermissionFlags, error) {
	group, ws, err := o.groupWorkspace(ctx, groupID)
	if err != nil {
		return models.PermissionFlags{}, err
	}
	role, _, err := o.ledger.roleIn(ctx, ws, userID)
	if err != nil {
		return models.PermissionFlags{}, err
	}
	switch role {
	case models.RoleOwner:
		return models.AllPermissions(), nil
	case models.RoleNone:
		return models.PermissionFlags{}, nil
	}

	override, err := o.store.FindGroupPermission(ctx, group.ID, userID)
	if err == nil {
		return override.PermissionFlags, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return models.PermissionFlags{}, internal("load group permission", err)
	}
	return o.policy(role), nil
}

// RemovePermission deletes an override so the role default applies again.
func (o *Overlay) RemovePermission(ctx context.Context, permissionID, actingUserID string) error {
	perm, err := o.store.GetGroupPermission(ctx, permissionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "permission %s not found", permissionID)
		}
		return internal("load group permission", err)
	}
	_, ws, err := o.groupWorkspace(ctx, perm.GroupID)
	if err != nil {
		return err
	}
	acting, _, err := o.ledger.roleIn(ctx, ws, actingUserID)
	if err != nil {
		return err
	}
	logCtx := o.log.WithFields(logrus.Fields{
		"permission_id":  perm.ID,
		"group_id":       perm.GroupID,
		"acting_user_id": actingUserID,
	})
	if !acting.AtLeast(models.RoleAdmin) {
		logCtx.Warn("remove permission rejected: insufficient role")
		return newError(KindForbidden, "only the owner or an admin can remove group permissions")
	}

	if err := o.store.DeleteGroupPermission(ctx, perm.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "permission %s not found", permissionID)
		}
		return internal("delete group permission", err)
	}
	logCtx.Info("group permission removed")
	return nil
}

// ListGroupPermissions returns the overrides of a group to any participant
// of its workspace.
func (o *Overlay) ListGroupPermissions(ctx context.Context, groupID, actingUserID string) ([]models.GroupPermission, error) {
	group, ws, err := o.groupWorkspace(ctx, groupID)
	if err != nil {
		return nil, err
	}
	acting, _, err := o.ledger.roleIn(ctx, ws, actingUserID)
	if err != nil {
		return nil, err
	}
	if acting == models.RoleNone {
		return nil, newError(KindForbidden, "not a participant of this workspace")
	}
	perms, err := o.store.ListGroupPermissions(ctx, group.ID)
	if err != nil {
		return nil, internal("list group permissions", err)
	}
	return perms, nil
}
