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

var groupPermissionColumns = []string{
	"id", "group_id", "user_id", "can_view", "can_edit", "can_delete", "can_manage_pages", "created_at", "updated_at",
}

// UpsertGroupPermission 创建或覆盖 (group, user) 的权限；已存在时保留原 ID 与创建时间
func (s *SQLDatabase) UpsertGroupPermission(ctx context.Context, p *models.GroupPermission) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	row, err := s.queryRow(ctx, s.builder.Insert("group_permissions").
		Columns(groupPermissionColumns...).
		Values(p.ID, p.GroupID, p.UserID, p.CanView, p.CanEdit, p.CanDelete, p.CanManagePages,
			toMillis(p.CreatedAt), toMillis(p.UpdatedAt)).
		Suffix(`ON CONFLICT (group_id, user_id) DO UPDATE SET
    can_view = excluded.can_view,
    can_edit = excluded.can_edit,
    can_delete = excluded.can_delete,
    can_manage_pages = excluded.can_manage_pages,
    updated_at = excluded.updated_at
RETURNING id, created_at`))
	if err != nil {
		return err
	}
	var createdAt int64
	if err := row.Scan(&p.ID, &createdAt); err != nil {
		return fmt.Errorf("failed to upsert group permission: %w", s.mapError(err))
	}
	p.CreatedAt = fromMillis(createdAt)
	return nil
}

// GetGroupPermission 根据ID获取权限
func (s *SQLDatabase) GetGroupPermission(ctx context.Context, id string) (*models.GroupPermission, error) {
	return s.getGroupPermission(ctx, sq.Eq{"id": id})
}

// FindGroupPermission 获取用户在分组上的权限覆盖
func (s *SQLDatabase) FindGroupPermission(ctx context.Context, groupID, userID string) (*models.GroupPermission, error) {
	return s.getGroupPermission(ctx, sq.Eq{"group_id": groupID, "user_id": userID})
}

func (s *SQLDatabase) getGroupPermission(ctx context.Context, pred sq.Sqlizer) (*models.GroupPermission, error) {
	row, err := s.queryRow(ctx, s.builder.Select(groupPermissionColumns...).From("group_permissions").Where(pred))
	if err != nil {
		return nil, err
	}
	p, err := scanGroupPermission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group permission: %w", err)
	}
	return p, nil
}

// ListGroupPermissions 列出分组的全部权限覆盖
func (s *SQLDatabase) ListGroupPermissions(ctx context.Context, groupID string) ([]models.GroupPermission, error) {
	rows, err := s.query(ctx, s.builder.Select(groupPermissionColumns...).
		From("group_permissions").
		Where(sq.Eq{"group_id": groupID}).
		OrderBy("created_at ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to list group permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]models.GroupPermission, 0)
	for rows.Next() {
		p, err := scanGroupPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group permission: %w", err)
		}
		permissions = append(permissions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group permissions: %w", err)
	}
	return permissions, nil
}

// DeleteGroupPermission 删除权限覆盖
func (s *SQLDatabase) DeleteGroupPermission(ctx context.Context, id string) error {
	err := s.execOne(ctx, s.builder.Delete("group_permissions").Where(sq.Eq{"id": strings.TrimSpace(id)}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete group permission: %w", err)
	}
	return err
}

func scanGroupPermission(row rowScanner) (*models.GroupPermission, error) {
	var p models.GroupPermission
	var createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.GroupID, &p.UserID, &p.CanView, &p.CanEdit, &p.CanDelete, &p.CanManagePages,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}
