package team

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/metrics"
	"workspace-team-backend/pkg/models"
	"workspace-team-backend/pkg/utils"
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Logger           *logrus.Logger
	Metrics          *metrics.Metrics
	Now              func() time.Time
	RolePolicy       RolePolicy
	InviteExpiryDays int
	InviteTokenBytes int
	// NewToken overrides invitation token generation.
	NewToken func() (string, error)
}

// Service is the team authorization facade: every mutating call resolves the
// acting user's effective role before delegating.
type Service struct {
	*deps
	ledger      *Ledger
	invitations *Invitations
	overlay     *Overlay
}

// TeamMember is one entry of a workspace roster. MemberID is empty for the owner.
type TeamMember struct {
	MemberID     string      `json:"member_id,omitempty"`
	UserID       string      `json:"user_id"`
	Email        string      `json:"email,omitempty"`
	Name         string      `json:"name,omitempty"`
	Avatar       string      `json:"avatar,omitempty"`
	Role         models.Role `json:"role"`
	JoinedAt     *time.Time  `json:"joined_at,omitempty"`
	LastAccessAt *time.Time  `json:"last_access_at,omitempty"`
}

// Team is the roster of a workspace plus its pending invitations, tokens removed.
type Team struct {
	WorkspaceID        string                       `json:"workspace_id"`
	MaxMembers         int                          `json:"max_members"`
	MemberCount        int                          `json:"member_count"`
	Members            []TeamMember                 `json:"members"`
	PendingInvitations []models.WorkspaceInvitation `json:"pending_invitations"`
}

// NewService 创建团队服务
func NewService(store Store, opts Options) *Service {
	d := &deps{
		store:   store,
		now:     opts.Now,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.log == nil {
		d.log = logrus.StandardLogger()
	}

	policy := opts.RolePolicy
	if policy == nil {
		policy = DefaultRolePolicy
	}
	expiryDays := opts.InviteExpiryDays
	if expiryDays <= 0 {
		expiryDays = 14
	}
	newToken := opts.NewToken
	if newToken == nil {
		n := opts.InviteTokenBytes
		newToken = func() (string, error) { return utils.GenerateURLToken(n) }
	}

	ledger := &Ledger{deps: d}
	return &Service{
		deps:   d,
		ledger: ledger,
		invitations: &Invitations{
			deps:              d,
			ledger:            ledger,
			newToken:          newToken,
			defaultExpiryDays: expiryDays,
		},
		overlay: &Overlay{deps: d, ledger: ledger, policy: policy},
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(KindOf(err)))
}

// observe records the outcome of op and logs store failures.
func (s *Service) observe(op string, err error) {
	s.metrics.ObserveOperation(op, outcome(err))
	if err != nil && KindOf(err) == KindInternal {
		s.log.WithError(err).WithField("operation", op).Error("team operation failed")
	}
}

// requireRole loads the workspace and rejects acting users below min.
func (s *Service) requireRole(ctx context.Context, workspaceID, actingUserID string, min models.Role) (*models.Workspace, models.Role, error) {
	ws, err := s.ledger.workspace(ctx, workspaceID)
	if err != nil {
		return nil, models.RoleNone, err
	}
	role, _, err := s.ledger.roleIn(ctx, ws, actingUserID)
	if err != nil {
		return nil, models.RoleNone, err
	}
	if !role.AtLeast(min) {
		s.log.WithFields(logrus.Fields{
			"workspace_id":   workspaceID,
			"acting_user_id": actingUserID,
			"role":           role,
			"required":       min,
		}).Warn("team action rejected: insufficient role")
		return nil, role, newError(KindForbidden, "requires %s role", min)
	}
	return ws, role, nil
}

// GetEffectiveRole returns the role governing userID in the workspace.
func (s *Service) GetEffectiveRole(ctx context.Context, workspaceID, userID string) (models.Role, error) {
	role, err := s.ledger.GetEffectiveRole(ctx, workspaceID, userID)
	s.observe("get_effective_role", err)
	return role, err
}

// GetTeam returns the roster and pending invitations to any participant.
func (s *Service) GetTeam(ctx context.Context, workspaceID, userID string) (team *Team, err error) {
	defer func() { s.observe("get_team", err) }()

	ws, _, err := s.requireRole(ctx, workspaceID, userID, models.RoleMember)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListWorkspaceMembers(ctx, ws.ID)
	if err != nil {
		return nil, internal("list members", err)
	}
	invs, err := s.store.ListInvitations(ctx, database.ListInvitationsOptions{
		WorkspaceID: ws.ID,
		Status:      models.InvitationPending,
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, internal("list invitations", err)
	}

	team = &Team{
		WorkspaceID:        ws.ID,
		MaxMembers:         ws.MaxMembers,
		MemberCount:        len(members),
		Members:            make([]TeamMember, 0, len(members)+1),
		PendingInvitations: make([]models.WorkspaceInvitation, 0, len(invs)),
	}
	owner := TeamMember{UserID: ws.OwnerID, Role: models.RoleOwner}
	s.decorate(ctx, &owner)
	team.Members = append(team.Members, owner)
	for _, m := range members {
		joined := m.JoinedAt
		entry := TeamMember{
			MemberID:     m.ID,
			UserID:       m.UserID,
			Role:         m.Role,
			JoinedAt:     &joined,
			LastAccessAt: m.LastAccessAt,
		}
		s.decorate(ctx, &entry)
		team.Members = append(team.Members, entry)
	}

	now := s.clock()
	for _, inv := range invs {
		if inv.IsUsableAt(now) {
			team.PendingInvitations = append(team.PendingInvitations, inv.Redacted())
		}
	}
	return team, nil
}

// decorate fills profile fields from the user directory. Unknown users are
// left undecorated.
func (s *Service) decorate(ctx context.Context, m *TeamMember) {
	user, err := s.store.GetUserByID(ctx, m.UserID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.log.WithError(err).WithField("user_id", m.UserID).Warn("user lookup failed")
		}
		return
	}
	m.Email = user.Email
	m.Name = user.Name
	m.Avatar = user.Avatar
}

// AddMember adds userID directly. Owner or Admin; only the owner grants Admin.
func (s *Service) AddMember(ctx context.Context, workspaceID, actingUserID, userID string, role models.Role) (member *models.WorkspaceMember, err error) {
	defer func() { s.observe("add_member", err) }()

	_, acting, err := s.requireRole(ctx, workspaceID, actingUserID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, newError(KindInvalidArgument, "user_id is required")
	}
	if role == models.RoleAdmin && acting != models.RoleOwner {
		return nil, newError(KindForbidden, "only the owner can add admins")
	}
	return s.ledger.AddMember(ctx, workspaceID, userID, role)
}

// RemoveMember removes a member row.
func (s *Service) RemoveMember(ctx context.Context, memberID, actingUserID string) (err error) {
	defer func() { s.observe("remove_member", err) }()
	return s.ledger.RemoveMember(ctx, memberID, actingUserID)
}

// UpdateRole changes a member's role. Owner only.
func (s *Service) UpdateRole(ctx context.Context, memberID, actingUserID string, role models.Role) (member *models.WorkspaceMember, err error) {
	defer func() { s.observe("update_role", err) }()
	return s.ledger.UpdateRole(ctx, memberID, actingUserID, role)
}

// UpgradeCapacity sets MaxMembers. Owner only; never below the current member count.
func (s *Service) UpgradeCapacity(ctx context.Context, workspaceID, actingUserID string, maxMembers int) (ws *models.Workspace, err error) {
	defer func() { s.observe("upgrade_capacity", err) }()

	if _, _, err = s.requireRole(ctx, workspaceID, actingUserID, models.RoleOwner); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.lock(ctx, workspaceID); err != nil {
			return err
		}
		current, err := s.ledger.workspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		count, err := s.ledger.MemberCount(ctx, workspaceID)
		if err != nil {
			return err
		}
		if maxMembers < count {
			return newError(KindInvalidArgument, "capacity %d is below the current member count %d", maxMembers, count)
		}
		current.MaxMembers = maxMembers
		if err := s.store.UpdateWorkspace(ctx, current); err != nil {
			return internal("update workspace", err)
		}
		ws = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"max_members":  maxMembers,
	}).Info("workspace capacity updated")
	return ws, nil
}

// RecordAccess stamps the member's last access time.
func (s *Service) RecordAccess(ctx context.Context, workspaceID, userID string) (err error) {
	defer func() { s.observe("record_access", err) }()
	return s.ledger.RecordAccess(ctx, workspaceID, userID)
}

// Invite creates an invitation. The returned invitation carries its token.
func (s *Service) Invite(ctx context.Context, workspaceID, actingUserID string, in CreateInvitationInput) (inv *models.WorkspaceInvitation, err error) {
	defer func() { s.observe("create_invitation", err) }()
	return s.invitations.CreateInvitation(ctx, workspaceID, actingUserID, in)
}

// ValidateInvitation checks a token; expired invitations are persisted as such.
func (s *Service) ValidateInvitation(ctx context.Context, token string) (inv *models.WorkspaceInvitation, err error) {
	defer func() { s.observe("validate_invitation", err) }()
	return s.invitations.ValidateInvitation(ctx, token)
}

// AcceptInvite joins userID to the invitation's workspace.
func (s *Service) AcceptInvite(ctx context.Context, userID, token string) (member *models.WorkspaceMember, err error) {
	defer func() { s.observe("accept_invitation", err) }()
	return s.invitations.AcceptInvitation(ctx, userID, token)
}

// DeclineInvite declines an addressed invitation.
func (s *Service) DeclineInvite(ctx context.Context, userID, token string) (inv *models.WorkspaceInvitation, err error) {
	defer func() { s.observe("decline_invitation", err) }()
	return s.invitations.DeclineInvitation(ctx, userID, token)
}

func (s *Service) RevokeInvitation(ctx context.Context, invitationID, actingUserID string) (err error) {
	defer func() { s.observe("revoke_invitation", err) }()
	return s.invitations.RevokeInvitation(ctx, invitationID, actingUserID)
}

func (s *Service) ListMyInvitations(ctx context.Context, userID string) (invs []models.WorkspaceInvitation, err error) {
	defer func() { s.observe("list_my_invitations", err) }()
	return s.invitations.ListMyInvitations(ctx, userID)
}

func (s *Service) SetGroupPermission(ctx context.Context, groupID, actingUserID, targetUserID string, flags models.PermissionFlags) (perm *models.GroupPermission, err error) {
	defer func() { s.observe("set_group_permission", err) }()
	return s.overlay.SetPermission(ctx, groupID, actingUserID, targetUserID, flags)
}

func (s *Service) GetGroupPermission(ctx context.Context, groupID, userID string) (flags models.PermissionFlags, err error) {
	defer func() { s.observe("get_group_permission", err) }()
	return s.overlay.GetEffectivePermission(ctx, groupID, userID)
}

func (s *Service) RemoveGroupPermission(ctx context.Context, permissionID, actingUserID string) (err error) {
	defer func() { s.observe("remove_group_permission", err) }()
	return s.overlay.RemovePermission(ctx, permissionID, actingUserID)
}

func (s *Service) ListGroupPermissions(ctx context.Context, groupID, actingUserID string) (perms []models.GroupPermission, err error) {
	defer func() { s.observe("list_group_permissions", err) }()
	return s.overlay.ListGroupPermissions(ctx, groupID, actingUserID)
}
