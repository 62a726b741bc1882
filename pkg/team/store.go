package team

import (
	"context"
	"time"

	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/models"
)

// UserDirectory resolves user profiles. Used to decorate rosters and to match
// addressed invitations by email.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// WorkspaceDirectory owns workspace records.
type WorkspaceDirectory interface {
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)
	UpdateWorkspace(ctx context.Context, ws *models.Workspace) error
	LockWorkspace(ctx context.Context, id string) error
}

// GroupDirectory scopes groups to their workspace.
type GroupDirectory interface {
	GetGroup(ctx context.Context, id string) (*models.Group, error)
}

// MemberStore persists workspace memberships.
type MemberStore interface {
	AddWorkspaceMember(ctx context.Context, m *models.WorkspaceMember) error
	GetWorkspaceMember(ctx context.Context, memberID string) (*models.WorkspaceMember, error)
	GetActiveMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]models.WorkspaceMember, error)
	CountWorkspaceMembers(ctx context.Context, workspaceID string) (int, error)
	UpdateMemberRole(ctx context.Context, memberID string, role models.Role) error
	TouchMemberAccess(ctx context.Context, workspaceID, userID string, at time.Time) error
	DeleteWorkspaceMember(ctx context.Context, memberID string) error
}

// InvitationStore persists invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error
	GetInvitation(ctx context.Context, id string) (*models.WorkspaceInvitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.WorkspaceInvitation, error)
	ListInvitations(ctx context.Context, opts database.ListInvitationsOptions) ([]models.WorkspaceInvitation, error)
	CountPendingInvitations(ctx context.Context, workspaceID string, now time.Time) (int, error)
	ConsumeInvitationUse(ctx context.Context, id string, now time.Time) (*models.WorkspaceInvitation, error)
	TransitionInvitation(ctx context.Context, id string, to models.InvitationStatus, at time.Time) (bool, error)
	RevokeInvitation(ctx context.Context, id string, at time.Time) error
}

// PermissionStore persists group permission overrides.
type PermissionStore interface {
	UpsertGroupPermission(ctx context.Context, p *models.GroupPermission) error
	GetGroupPermission(ctx context.Context, id string) (*models.GroupPermission, error)
	FindGroupPermission(ctx context.Context, groupID, userID string) (*models.GroupPermission, error)
	ListGroupPermissions(ctx context.Context, groupID string) ([]models.GroupPermission, error)
	DeleteGroupPermission(ctx context.Context, id string) error
}

// Store is everything the team service needs from persistence.
// database.DatabaseInterface satisfies it.
type Store interface {
	UserDirectory
	WorkspaceDirectory
	GroupDirectory
	MemberStore
	InvitationStore
	PermissionStore
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Store = (database.DatabaseInterface)(nil)
