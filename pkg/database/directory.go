package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"workspace-team-backend/pkg/models"
)

var (
	userColumns      = []string{"id", "email", "name", "avatar", "created_at", "updated_at"}
	workspaceColumns = []string{"id", "name", "owner_id", "max_members", "created_at", "updated_at"}
	groupColumns     = []string{"id", "workspace_id", "name", "created_at"}
)

// CreateUser 创建用户
func (s *SQLDatabase) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	_, err := s.exec(ctx, s.builder.Insert("users").
		Columns(userColumns...).
		Values(user.ID, strings.TrimSpace(user.Email), user.Name, user.Avatar, toMillis(user.CreatedAt), toMillis(user.UpdatedAt)))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID 根据ID获取用户
func (s *SQLDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, sq.Eq{"id": id})
}

// GetUserByEmail 根据邮箱获取用户（忽略大小写）
func (s *SQLDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, sq.Expr("lower(email) = lower(?)", strings.TrimSpace(email)))
}

func (s *SQLDatabase) getUser(ctx context.Context, pred sq.Sqlizer) (*models.User, error) {
	row, err := s.queryRow(ctx, s.builder.Select(userColumns...).From("users").Where(pred))
	if err != nil {
		return nil, err
	}
	var u models.User
	var createdAt, updatedAt int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Avatar, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

// CreateWorkspace 创建工作区
func (s *SQLDatabase) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	now := time.Now().UTC()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = now
	}
	ws.UpdatedAt = now
	_, err := s.exec(ctx, s.builder.Insert("workspaces").
		Columns(workspaceColumns...).
		Values(ws.ID, ws.Name, ws.OwnerID, ws.MaxMembers, toMillis(ws.CreatedAt), toMillis(ws.UpdatedAt)))
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetWorkspace 获取工作区
func (s *SQLDatabase) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	row, err := s.queryRow(ctx, s.builder.Select(workspaceColumns...).From("workspaces").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	var ws models.Workspace
	var createdAt, updatedAt int64
	if err := row.Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.MaxMembers, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	ws.CreatedAt = fromMillis(createdAt)
	ws.UpdatedAt = fromMillis(updatedAt)
	return &ws, nil
}

// UpdateWorkspace 更新工作区名称与容量
func (s *SQLDatabase) UpdateWorkspace(ctx context.Context, ws *models.Workspace) error {
	ws.UpdatedAt = time.Now().UTC()
	err := s.execOne(ctx, s.builder.Update("workspaces").
		Set("name", ws.Name).
		Set("max_members", ws.MaxMembers).
		Set("updated_at", toMillis(ws.UpdatedAt)).
		Where(sq.Eq{"id": ws.ID}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	return err
}

// LockWorkspace takes a row write lock on the workspace (postgres) or the
// database write lock (sqlite) for the rest of the transaction.
func (s *SQLDatabase) LockWorkspace(ctx context.Context, id string) error {
	err := s.execOne(ctx, s.builder.Update("workspaces").
		Set("max_members", sq.Expr("max_members")).
		Where(sq.Eq{"id": id}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	return err
}

// CreateGroup 创建分组
func (s *SQLDatabase) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.builder.Insert("workspace_groups").
		Columns(groupColumns...).
		Values(group.ID, group.WorkspaceID, group.Name, toMillis(group.CreatedAt)))
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetGroup 获取分组
func (s *SQLDatabase) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	row, err := s.queryRow(ctx, s.builder.Select(groupColumns...).From("workspace_groups").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	var g models.Group
	var createdAt int64
	if err := row.Scan(&g.ID, &g.WorkspaceID, &g.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g.CreatedAt = fromMillis(createdAt)
	return &g, nil
}
