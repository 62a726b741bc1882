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

var invitationColumns = []string{
	"id", "workspace_id", "email", "inviter_id", "role", "status", "token",
	"expires_at", "max_uses", "current_uses", "is_active", "created_at", "responded_at",
}

// ListInvitationsOptions filters ListInvitations. Zero values mean "any".
type ListInvitationsOptions struct {
	WorkspaceID string
	Email       string
	Status      models.InvitationStatus
	ActiveOnly  bool
}

// Apply adds the option predicates to a select.
func (opts ListInvitationsOptions) Apply(query *sq.SelectBuilder) {
	if opts.WorkspaceID != "" {
		*query = query.Where(sq.Eq{"workspace_id": opts.WorkspaceID})
	}
	if email := strings.TrimSpace(opts.Email); email != "" {
		*query = query.Where(sq.Expr("lower(email) = lower(?)", email))
	}
	if opts.Status != "" {
		*query = query.Where(sq.Eq{"status": string(opts.Status)})
	}
	if opts.ActiveOnly {
		*query = query.Where(sq.Eq{"is_active": true})
	}
}

// CreateInvitation 创建邀请
func (s *SQLDatabase) CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.builder.Insert("workspace_invitations").
		Columns(invitationColumns...).
		Values(
			inv.ID, inv.WorkspaceID, strings.TrimSpace(inv.Email), inv.InviterID, string(inv.Role), string(inv.Status), inv.Token,
			optionalMillis(inv.ExpiresAt), optionalInt(inv.MaxUses), inv.CurrentUses, inv.IsActive,
			toMillis(inv.CreatedAt), optionalMillis(inv.RespondedAt),
		))
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitation 根据ID获取邀请
func (s *SQLDatabase) GetInvitation(ctx context.Context, id string) (*models.WorkspaceInvitation, error) {
	return s.getInvitation(ctx, sq.Eq{"id": id})
}

// GetInvitationByToken 根据邀请令牌获取邀请
func (s *SQLDatabase) GetInvitationByToken(ctx context.Context, token string) (*models.WorkspaceInvitation, error) {
	return s.getInvitation(ctx, sq.Eq{"token": token})
}

func (s *SQLDatabase) getInvitation(ctx context.Context, pred sq.Sqlizer) (*models.WorkspaceInvitation, error) {
	row, err := s.queryRow(ctx, s.builder.Select(invitationColumns...).From("workspace_invitations").Where(pred))
	if err != nil {
		return nil, err
	}
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// ListInvitations 按创建时间倒序列出邀请
func (s *SQLDatabase) ListInvitations(ctx context.Context, opts ListInvitationsOptions) ([]models.WorkspaceInvitation, error) {
	query := s.builder.Select(invitationColumns...).From("workspace_invitations")
	opts.Apply(&query)
	rows, err := s.query(ctx, query.OrderBy("created_at DESC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := make([]models.WorkspaceInvitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return invitations, nil
}

// usableAt matches invitations that can still admit someone at now.
func usableAt(now time.Time) sq.Sqlizer {
	return sq.And{
		sq.Eq{"is_active": true, "status": string(models.InvitationPending)},
		sq.Expr("(max_uses IS NULL OR current_uses < max_uses)"),
		sq.Expr("(expires_at IS NULL OR expires_at > ?)", toMillis(now)),
	}
}

// CountPendingInvitations counts invitations of the workspace that are still usable.
func (s *SQLDatabase) CountPendingInvitations(ctx context.Context, workspaceID string, now time.Time) (int, error) {
	row, err := s.queryRow(ctx, s.builder.Select("COUNT(*)").
		From("workspace_invitations").
		Where(sq.Eq{"workspace_id": workspaceID}).
		Where(usableAt(now)))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending invitations: %w", err)
	}
	return n, nil
}

// ConsumeInvitationUse 原子地占用一次邀请名额：计数与上限检查在同一条 UPDATE 中完成
func (s *SQLDatabase) ConsumeInvitationUse(ctx context.Context, id string, now time.Time) (*models.WorkspaceInvitation, error) {
	// 定向邀请或最后一个名额：转为 accepted
	const finalUse = "email <> '' OR (max_uses IS NOT NULL AND current_uses + 1 >= max_uses)"
	nowMillis := toMillis(now)

	row, err := s.queryRow(ctx, s.builder.Update("workspace_invitations").
		Set("current_uses", sq.Expr("current_uses + 1")).
		Set("status", sq.Expr("CASE WHEN "+finalUse+" THEN ? ELSE status END", string(models.InvitationAccepted))).
		Set("responded_at", sq.Expr("CASE WHEN "+finalUse+" THEN ? ELSE responded_at END", nowMillis)).
		Where(sq.Eq{"id": id}).
		Where(usableAt(now)).
		Suffix("RETURNING "+strings.Join(invitationColumns, ", ")))
	if err != nil {
		return nil, err
	}
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to consume invitation use: %w", s.mapError(err))
	}
	return inv, nil
}

// TransitionInvitation 仅当邀请仍为 pending 时切换状态（compare-and-set）
func (s *SQLDatabase) TransitionInvitation(ctx context.Context, id string, to models.InvitationStatus, at time.Time) (bool, error) {
	res, err := s.exec(ctx, s.builder.Update("workspace_invitations").
		Set("status", string(to)).
		Set("responded_at", toMillis(at)).
		Where(sq.Eq{"id": id, "status": string(models.InvitationPending)}))
	if err != nil {
		return false, fmt.Errorf("failed to transition invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// RevokeInvitation 撤销邀请：停用；仍为 pending 的邀请同时标记为 declined，
// 已终结的邀请保留原状态
func (s *SQLDatabase) RevokeInvitation(ctx context.Context, id string, at time.Time) error {
	const stillPending = "CASE WHEN status = ? THEN ? ELSE "
	pending := string(models.InvitationPending)
	err := s.execOne(ctx, s.builder.Update("workspace_invitations").
		Set("is_active", false).
		Set("status", sq.Expr(stillPending+"status END", pending, string(models.InvitationDeclined))).
		Set("responded_at", sq.Expr(stillPending+"responded_at END", pending, toMillis(at))).
		Where(sq.Eq{"id": id}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return err
}

func scanInvitation(row rowScanner) (*models.WorkspaceInvitation, error) {
	var inv models.WorkspaceInvitation
	var role, status string
	var expiresAt, respondedAt, maxUses sql.NullInt64
	var createdAt int64
	if err := row.Scan(
		&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.InviterID, &role, &status, &inv.Token,
		&expiresAt, &maxUses, &inv.CurrentUses, &inv.IsActive, &createdAt, &respondedAt,
	); err != nil {
		return nil, err
	}
	inv.Role = models.Role(role)
	inv.Status = models.InvitationStatus(status)
	inv.ExpiresAt = fromNullMillis(expiresAt)
	inv.MaxUses = fromNullInt(maxUses)
	inv.CreatedAt = fromMillis(createdAt)
	inv.RespondedAt = fromNullMillis(respondedAt)
	return &inv, nil
}
