package database

import (
	"context"
	"fmt"
	"time"

	"workspace-team-backend/pkg/models"
)

// DatabaseInterface 定义数据库访问接口
type DatabaseInterface interface {
	// 目录：用户 / 工作区 / 分组（由外部服务拥有，这里只读取或做最小写入）
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateWorkspace(ctx context.Context, ws *models.Workspace) error
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)
	UpdateWorkspace(ctx context.Context, ws *models.Workspace) error
	// LockWorkspace serializes member-count checks for one workspace until the
	// surrounding transaction ends.
	LockWorkspace(ctx context.Context, id string) error
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)

	// Memberships
	AddWorkspaceMember(ctx context.Context, m *models.WorkspaceMember) error
	GetWorkspaceMember(ctx context.Context, memberID string) (*models.WorkspaceMember, error)
	GetActiveMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]models.WorkspaceMember, error)
	CountWorkspaceMembers(ctx context.Context, workspaceID string) (int, error)
	UpdateMemberRole(ctx context.Context, memberID string, role models.Role) error
	TouchMemberAccess(ctx context.Context, workspaceID, userID string, at time.Time) error
	DeleteWorkspaceMember(ctx context.Context, memberID string) error

	// Invitations
	CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error
	GetInvitation(ctx context.Context, id string) (*models.WorkspaceInvitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.WorkspaceInvitation, error)
	ListInvitations(ctx context.Context, opts ListInvitationsOptions) ([]models.WorkspaceInvitation, error)
	CountPendingInvitations(ctx context.Context, workspaceID string, now time.Time) (int, error)
	// ConsumeInvitationUse atomically records one use of a usable invitation and
	// returns the updated row, or ErrConflict when the invitation is no longer usable.
	ConsumeInvitationUse(ctx context.Context, id string, now time.Time) (*models.WorkspaceInvitation, error)
	// TransitionInvitation moves a pending invitation to a terminal status; false
	// means the invitation was no longer pending.
	TransitionInvitation(ctx context.Context, id string, to models.InvitationStatus, at time.Time) (bool, error)
	RevokeInvitation(ctx context.Context, id string, at time.Time) error

	// Group permissions
	UpsertGroupPermission(ctx context.Context, p *models.GroupPermission) error
	GetGroupPermission(ctx context.Context, id string) (*models.GroupPermission, error)
	FindGroupPermission(ctx context.Context, groupID, userID string) (*models.GroupPermission, error)
	ListGroupPermissions(ctx context.Context, groupID string) ([]models.GroupPermission, error)
	DeleteGroupPermission(ctx context.Context, id string) error

	// RunInTx runs fn inside one transaction carried by the context passed to fn.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver      string // "postgres" or "sqlite"
	PostgresDSN string
	SQLitePath  string
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	switch config.Driver {
	case "postgres":
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		db, err := NewPostgresDatabase(config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite", "":
		db, err := NewSQLiteDatabase(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}
