package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"workspace-team-backend/pkg/models"
)

var memberColumns = []string{"id", "workspace_id", "user_id", "role", "joined_at", "last_access_at", "is_active"}

// AddWorkspaceMember inserts an active membership row. A second active row for
// the same (workspace, user) yields ErrDuplicateEntry.
func (s *SQLDatabase) AddWorkspaceMember(ctx context.Context, m *models.WorkspaceMember) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	m.IsActive = true
	_, err := s.exec(ctx, s.builder.Insert("workspace_members").
		Columns(memberColumns...).
		Values(m.ID, m.WorkspaceID, m.UserID, string(m.Role), toMillis(m.JoinedAt), optionalMillis(m.LastAccessAt), m.IsActive))
	if err != nil {
		return fmt.Errorf("failed to add workspace member: %w", err)
	}
	return nil
}

// GetWorkspaceMember 根据成员ID获取成员记录
func (s *SQLDatabase) GetWorkspaceMember(ctx context.Context, memberID string) (*models.WorkspaceMember, error) {
	return s.getMember(ctx, sq.Eq{"id": memberID})
}

// GetActiveMember 获取用户在工作区内的有效成员记录
func (s *SQLDatabase) GetActiveMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	return s.getMember(ctx, sq.Eq{"workspace_id": workspaceID, "user_id": userID, "is_active": true})
}

func (s *SQLDatabase) getMember(ctx context.Context, pred sq.Sqlizer) (*models.WorkspaceMember, error) {
	row, err := s.queryRow(ctx, s.builder.Select(memberColumns...).From("workspace_members").Where(pred).Limit(1))
	if err != nil {
		return nil, err
	}
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace member: %w", err)
	}
	return m, nil
}

// ListWorkspaceMembers 按加入时间列出有效成员
func (s *SQLDatabase) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]models.WorkspaceMember, error) {
	rows, err := s.query(ctx, s.builder.Select(memberColumns...).
		From("workspace_members").
		Where(sq.Eq{"workspace_id": workspaceID, "is_active": true}).
		OrderBy("joined_at ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace members: %w", err)
	}
	defer rows.Close()

	members := make([]models.WorkspaceMember, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workspace members: %w", err)
	}
	return members, nil
}

// CountWorkspaceMembers 统计有效成员数（不含所有者）
func (s *SQLDatabase) CountWorkspaceMembers(ctx context.Context, workspaceID string) (int, error) {
	row, err := s.queryRow(ctx, s.builder.Select("COUNT(*)").
		From("workspace_members").
		Where(sq.Eq{"workspace_id": workspaceID, "is_active": true}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count workspace members: %w", err)
	}
	return n, nil
}

// UpdateMemberRole 更新成员角色
func (s *SQLDatabase) UpdateMemberRole(ctx context.Context, memberID string, role models.Role) error {
	err := s.execOne(ctx, s.builder.Update("workspace_members").
		Set("role", string(role)).
		Where(sq.Eq{"id": memberID, "is_active": true}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return err
}

// TouchMemberAccess 记录最近访问时间
func (s *SQLDatabase) TouchMemberAccess(ctx context.Context, workspaceID, userID string, at time.Time) error {
	err := s.execOne(ctx, s.builder.Update("workspace_members").
		Set("last_access_at", toMillis(at)).
		Where(sq.Eq{"workspace_id": workspaceID, "user_id": userID, "is_active": true}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to record member access: %w", err)
	}
	return err
}

// DeleteWorkspaceMember 删除成员记录
func (s *SQLDatabase) DeleteWorkspaceMember(ctx context.Context, memberID string) error {
	err := s.execOne(ctx, s.builder.Delete("workspace_members").Where(sq.Eq{"id": memberID}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete workspace member: %w", err)
	}
	return err
}

func scanMember(row rowScanner) (*models.WorkspaceMember, error) {
	var m models.WorkspaceMember
	var role string
	var joinedAt int64
	var lastAccess sql.NullInt64
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &role, &joinedAt, &lastAccess, &m.IsActive); err != nil {
		return nil, err
	}
	m.Role = models.Role(role)
	m.JoinedAt = fromMillis(joinedAt)
	m.LastAccessAt = fromNullMillis(lastAccess)
	return &m, nil
}
