package team

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/metrics"
	"workspace-team-backend/pkg/models"
)

// deps is shared by the ledger, the invitation manager and the overlay.
type deps struct {
	store   Store
	now     func() time.Time
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func (d *deps) clock() time.Time {
	return d.now().UTC()
}

// EffectiveRole decides the role governing userID in ws. The owner is never a
// member row; member must be the user's active row in ws, or nil.
func EffectiveRole(ws *models.Workspace, userID string, member *models.WorkspaceMember) models.Role {
	switch {
	case ws == nil || userID == "":
		return models.RoleNone
	case ws.OwnerID == userID:
		return models.RoleOwner
	case member != nil && member.IsActive && member.WorkspaceID == ws.ID && member.UserID == userID:
		return member.Role
	default:
		return models.RoleNone
	}
}

// Ledger is the authoritative set of active memberships.
type Ledger struct {
	*deps
}

func (l *Ledger) workspace(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	ws, err := l.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newError(KindNotFound, "workspace %s not found", workspaceID)
		}
		return nil, internal("load workspace", err)
	}
	return ws, nil
}

// roleIn resolves userID's role in ws along with the member row, if any.
func (l *Ledger) roleIn(ctx context.Context, ws *models.Workspace, userID string) (models.Role, *models.WorkspaceMember, error) {
	if ws.OwnerID == userID {
		return models.RoleOwner, nil, nil
	}
	member, err := l.store.GetActiveMember(ctx, ws.ID, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.RoleNone, nil, nil
		}
		return models.RoleNone, nil, internal("load membership", err)
	}
	return EffectiveRole(ws, userID, member), member, nil
}

// GetEffectiveRole returns Owner, the stored member role, or RoleNone.
func (l *Ledger) GetEffectiveRole(ctx context.Context, workspaceID, userID string) (models.Role, error) {
	ws, err := l.workspace(ctx, workspaceID)
	if err != nil {
		return models.RoleNone, err
	}
	role, _, err := l.roleIn(ctx, ws, userID)
	return role, err
}

// MemberCount counts active member rows; the owner is not included.
func (l *Ledger) MemberCount(ctx context.Context, workspaceID string) (int, error) {
	n, err := l.store.CountWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return 0, internal("count members", err)
	}
	return n, nil
}

// AddMember inserts userID into the workspace. Authorization is the caller's job.
func (l *Ledger) AddMember(ctx context.Context, workspaceID, userID string, role models.Role) (*models.WorkspaceMember, error) {
	if !role.Assignable() {
		return nil, newError(KindInvalidArgument, "role %q cannot be assigned", role)
	}
	ws, err := l.workspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var member *models.WorkspaceMember
	err = l.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := l.lock(ctx, ws.ID); err != nil {
			return err
		}
		if err := l.checkAdmissible(ctx, ws, userID); err != nil {
			return err
		}
		inserted, err := l.insert(ctx, ws.ID, userID, role)
		member = inserted
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"workspace_id": ws.ID,
		"user_id":      userID,
		"role":         role,
	}).Info("member added")
	return member, nil
}

func (l *Ledger) lock(ctx context.Context, workspaceID string) error {
	if err := l.store.LockWorkspace(ctx, workspaceID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "workspace %s not found", workspaceID)
		}
		return internal("lock workspace", err)
	}
	return nil
}

// checkAdmissible must run under the workspace lock.
func (l *Ledger) checkAdmissible(ctx context.Context, ws *models.Workspace, userID string) error {
	role, _, err := l.roleIn(ctx, ws, userID)
	if err != nil {
		return err
	}
	if role != models.RoleNone {
		return ErrAlreadyMember
	}
	count, err := l.MemberCount(ctx, ws.ID)
	if err != nil {
		return err
	}
	if count+1 > ws.MaxMembers {
		return newError(KindCapacityExceeded, "workspace is full (%d of %d members)", count, ws.MaxMembers)
	}
	return nil
}

func (l *Ledger) insert(ctx context.Context, workspaceID, userID string, role models.Role) (*models.WorkspaceMember, error) {
	member := &models.WorkspaceMember{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    l.clock(),
		IsActive:    true,
	}
	if err := l.store.AddWorkspaceMember(ctx, member); err != nil {
		if errors.Is(err, database.ErrDuplicateEntry) {
			return nil, ErrAlreadyMember
		}
		return nil, internal("insert member", err)
	}
	return member, nil
}

func (l *Ledger) member(ctx context.Context, memberID string) (*models.WorkspaceMember, error) {
	m, err := l.store.GetWorkspaceMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newError(KindNotFound, "member %s not found", memberID)
		}
		return nil, internal("load member", err)
	}
	if !m.IsActive {
		return nil, newError(KindNotFound, "member %s not found", memberID)
	}
	return m, nil
}

// RemoveMember deletes a member row. Owner and Admin may remove members; an
// Admin may not remove another Admin, and nobody removes themselves here.
func (l *Ledger) RemoveMember(ctx context.Context, memberID, actingUserID string) error {
	target, err := l.member(ctx, memberID)
	if err != nil {
		return err
	}
	ws, err := l.workspace(ctx, target.WorkspaceID)
	if err != nil {
		return err
	}
	acting, _, err := l.roleIn(ctx, ws, actingUserID)
	if err != nil {
		return err
	}

	logCtx := l.log.WithFields(logrus.Fields{
		"workspace_id":   ws.ID,
		"member_id":      memberID,
		"acting_user_id": actingUserID,
	})
	if !acting.AtLeast(models.RoleAdmin) {
		logCtx.Warn("remove member rejected: insufficient role")
		return newError(KindForbidden, "only the owner or an admin can remove members")
	}
	if target.UserID == actingUserID {
		return ErrSelfRemovalNotAllowed
	}
	if acting == models.RoleAdmin && target.Role.AtLeast(models.RoleAdmin) {
		logCtx.Warn("remove member rejected: admin targeting admin")
		return newError(KindForbidden, "admins cannot remove other admins")
	}

	if err := l.store.DeleteWorkspaceMember(ctx, memberID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "member %s not found", memberID)
		}
		return internal("delete member", err)
	}
	logCtx.WithField("user_id", target.UserID).Info("member removed")
	return nil
}

// UpdateRole changes a member's role. Only the owner may do this.
func (l *Ledger) UpdateRole(ctx context.Context, memberID, actingUserID string, newRole models.Role) (*models.WorkspaceMember, error) {
	target, err := l.member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	ws, err := l.workspace(ctx, target.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if ws.OwnerID != actingUserID {
		l.log.WithFields(logrus.Fields{
			"workspace_id":   ws.ID,
			"member_id":      memberID,
			"acting_user_id": actingUserID,
		}).Warn("update role rejected: not owner")
		return nil, newError(KindForbidden, "only the owner can change member roles")
	}
	if !newRole.Assignable() {
		return nil, newError(KindInvalidArgument, "role %q cannot be assigned", newRole)
	}
	if target.Role == newRole {
		return target, nil
	}

	if err := l.store.UpdateMemberRole(ctx, memberID, newRole); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newError(KindNotFound, "member %s not found", memberID)
		}
		return nil, internal("update member role", err)
	}
	l.log.WithFields(logrus.Fields{
		"workspace_id": ws.ID,
		"member_id":    memberID,
		"from":         target.Role,
		"to":           newRole,
	}).Info("member role updated")
	target.Role = newRole
	return target, nil
}

// RecordAccess stamps LastAccessAt on the user's member row. The owner has no
// row, so recording their access is a no-op.
func (l *Ledger) RecordAccess(ctx context.Context, workspaceID, userID string) error {
	ws, err := l.workspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.OwnerID == userID {
		return nil
	}
	if err := l.store.TouchMemberAccess(ctx, workspaceID, userID, l.clock()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "user is not a member of workspace %s", workspaceID)
		}
		return internal("record access", err)
	}
	return nil
}
