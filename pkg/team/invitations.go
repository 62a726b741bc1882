package team

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/models"
)

// CreateInvitationInput describes a new invitation. An empty Email makes a
// shareable link invite governed by MaxUses and ExpiresInDays.
type CreateInvitationInput struct {
	Email         string      `json:"email"`
	Role          models.Role `json:"role"`
	MaxUses       *int        `json:"max_uses,omitempty"`
	ExpiresInDays *int        `json:"expires_in_days,omitempty"`
}

// Invitations runs the invitation state machine:
// pending -> accepted | declined | expired, with IsActive as a separate revoke flag.
type Invitations struct {
	*deps
	ledger            *Ledger
	newToken          func() (string, error)
	defaultExpiryDays int
}

// CreateInvitation issues a new invitation on behalf of an Owner or Admin.
func (m *Invitations) CreateInvitation(ctx context.Context, workspaceID, actingUserID string, in CreateInvitationInput) (*models.WorkspaceInvitation, error) {
	ws, err := m.ledger.workspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	acting, _, err := m.ledger.roleIn(ctx, ws, actingUserID)
	if err != nil {
		return nil, err
	}
	logCtx := m.log.WithFields(logrus.Fields{
		"workspace_id":   ws.ID,
		"acting_user_id": actingUserID,
	})
	if !acting.AtLeast(models.RoleAdmin) {
		logCtx.Warn("create invitation rejected: insufficient role")
		return nil, newError(KindForbidden, "only the owner or an admin can invite")
	}

	inv, err := m.buildInvitation(ws, actingUserID, in)
	if err != nil {
		return nil, err
	}
	if inv.Role == models.RoleAdmin && acting != models.RoleOwner {
		logCtx.Warn("create invitation rejected: admin invite by non-owner")
		return nil, newError(KindForbidden, "only the owner can invite admins")
	}

	now := m.clock()
	err = m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.ledger.lock(ctx, ws.ID); err != nil {
			return err
		}
		members, err := m.ledger.MemberCount(ctx, ws.ID)
		if err != nil {
			return err
		}
		pending, err := m.store.CountPendingInvitations(ctx, ws.ID, now)
		if err != nil {
			return internal("count pending invitations", err)
		}
		if members+pending+1 > ws.MaxMembers {
			return newError(KindCapacityExceeded, "workspace is full (%d members, %d pending invitations, capacity %d)",
				members, pending, ws.MaxMembers)
		}
		if inv.IsAddressed() {
			if err := m.checkAddressee(ctx, ws, inv.Email, now); err != nil {
				return err
			}
		}

		inv.CreatedAt = now
		if err := m.store.CreateInvitation(ctx, inv); err != nil {
			return internal("create invitation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.InvitationCreated(inv.IsAddressed())
	logCtx.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"addressed":     inv.IsAddressed(),
		"role":          inv.Role,
	}).Info("invitation created")
	return inv, nil
}

// buildInvitation validates input and applies defaults.
func (m *Invitations) buildInvitation(ws *models.Workspace, inviterID string, in CreateInvitationInput) (*models.WorkspaceInvitation, error) {
	role := in.Role
	if role == models.RoleNone {
		role = models.RoleMember
	}
	if !role.Assignable() {
		return nil, newError(KindInvalidArgument, "role %q cannot be granted by invitation", in.Role)
	}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		return nil, newError(KindInvalidArgument, "max_uses must be positive")
	}
	if in.ExpiresInDays != nil && *in.ExpiresInDays <= 0 {
		return nil, newError(KindInvalidArgument, "expires_in_days must be positive")
	}

	email := strings.TrimSpace(in.Email)
	if email != "" && !strings.Contains(email, "@") {
		return nil, newError(KindInvalidArgument, "email %q is not valid", email)
	}

	token, err := m.newToken()
	if err != nil {
		return nil, internal("generate invitation token", err)
	}
	inv := &models.WorkspaceInvitation{
		ID:          uuid.NewString(),
		WorkspaceID: ws.ID,
		Email:       email,
		InviterID:   inviterID,
		Role:        role,
		Status:      models.InvitationPending,
		Token:       token,
		MaxUses:     in.MaxUses,
		IsActive:    true,
	}

	days := 0
	if in.ExpiresInDays != nil {
		days = *in.ExpiresInDays
	}
	if inv.IsAddressed() {
		// 定向邀请只能使用一次
		one := 1
		inv.MaxUses = &one
		if days == 0 {
			days = m.defaultExpiryDays
		}
	}
	if days > 0 {
		expiresAt := m.clock().AddDate(0, 0, days)
		inv.ExpiresAt = &expiresAt
	}
	return inv, nil
}

// checkAddressee rejects an addressed invite whose email already participates
// or already holds a usable pending invitation.
func (m *Invitations) checkAddressee(ctx context.Context, ws *models.Workspace, email string, now time.Time) error {
	pending, err := m.store.ListInvitations(ctx, database.ListInvitationsOptions{
		WorkspaceID: ws.ID,
		Email:       email,
		Status:      models.InvitationPending,
		ActiveOnly:  true,
	})
	if err != nil {
		return internal("list invitations", err)
	}
	for i := range pending {
		if pending[i].IsExpiredAt(now) {
			if _, err := m.store.TransitionInvitation(ctx, pending[i].ID, models.InvitationExpired, now); err != nil {
				return internal("expire invitation", err)
			}
			continue
		}
		return newError(KindDuplicateInvite, "a pending invitation already exists for %s", email)
	}

	user, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return internal("look up invitee", err)
	}
	role, _, err := m.ledger.roleIn(ctx, ws, user.ID)
	if err != nil {
		return err
	}
	if role != models.RoleNone {
		return newError(KindAlreadyMember, "%s is already a member of this workspace", email)
	}
	return nil
}

// usability classifies an invitation at now without side effects.
func usability(inv *models.WorkspaceInvitation, now time.Time) error {
	switch {
	case !inv.IsActive || inv.Status == models.InvitationDeclined:
		return newError(KindInvalid, "invitation is no longer valid")
	case inv.IsExhausted():
		return ErrLimitReached
	case inv.Status == models.InvitationExpired || inv.IsExpiredAt(now):
		return ErrExpired
	case inv.Status != models.InvitationPending:
		return newError(KindInvalid, "invitation is no longer valid")
	default:
		return nil
	}
}

// ValidateInvitation returns the invitation if it is usable. An invitation
// found past its expiry is persisted as expired.
func (m *Invitations) ValidateInvitation(ctx context.Context, token string) (*models.WorkspaceInvitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, newError(KindInvalid, "invitation token is required")
	}
	inv, err := m.store.GetInvitationByToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newError(KindInvalid, "invitation not found")
		}
		return nil, internal("load invitation", err)
	}

	now := m.clock()
	if err := usability(inv, now); err != nil {
		if errors.Is(err, ErrExpired) && inv.Status == models.InvitationPending {
			if _, terr := m.store.TransitionInvitation(ctx, inv.ID, models.InvitationExpired, now); terr != nil {
				return nil, internal("expire invitation", terr)
			}
			m.log.WithField("invitation_id", inv.ID).Info("invitation expired")
		}
		return nil, err
	}
	return inv, nil
}

func (m *Invitations) recipient(ctx context.Context, inv *models.WorkspaceInvitation, userID string) error {
	user, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "user %s not found", userID)
		}
		return internal("load user", err)
	}
	if !strings.EqualFold(strings.TrimSpace(user.Email), strings.TrimSpace(inv.Email)) {
		return ErrWrongRecipient
	}
	return nil
}

// AcceptInvitation admits userID through the invitation. The use counter and
// the membership insert commit together.
func (m *Invitations) AcceptInvitation(ctx context.Context, userID, token string) (member *models.WorkspaceMember, err error) {
	defer func() { m.metrics.AcceptanceAttempt(outcome(err)) }()

	inv, err := m.ValidateInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	logCtx := m.log.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"workspace_id":  inv.WorkspaceID,
		"user_id":       userID,
	})
	if inv.IsAddressed() {
		if err := m.recipient(ctx, inv, userID); err != nil {
			logCtx.WithError(err).Warn("accept invitation rejected")
			return nil, err
		}
	}

	ws, err := m.ledger.workspace(ctx, inv.WorkspaceID)
	if err != nil {
		return nil, err
	}

	err = m.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.ledger.lock(ctx, ws.ID); err != nil {
			return err
		}
		if err := m.ledger.checkAdmissible(ctx, ws, userID); err != nil {
			return err
		}

		now := m.clock()
		if _, err := m.store.ConsumeInvitationUse(ctx, inv.ID, now); err != nil {
			if !errors.Is(err, database.ErrConflict) {
				return internal("consume invitation", err)
			}
			return m.explainConflict(ctx, inv.ID, now)
		}

		inserted, err := m.ledger.insert(ctx, ws.ID, userID, inv.Role)
		member = inserted
		return err
	})
	if err != nil {
		logCtx.WithError(err).Warn("accept invitation failed")
		return nil, err
	}

	logCtx.WithField("role", member.Role).Info("invitation accepted")
	return member, nil
}

// explainConflict re-reads an invitation whose conditional consume matched no
// row and reports why it was unusable.
func (m *Invitations) explainConflict(ctx context.Context, invitationID string, now time.Time) error {
	current, err := m.store.GetInvitation(ctx, invitationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindInvalid, "invitation not found")
		}
		return internal("reload invitation", err)
	}
	if err := usability(current, now); err != nil {
		return err
	}
	return ErrLimitReached
}

// DeclineInvitation lets the addressee turn down an addressed invitation.
func (m *Invitations) DeclineInvitation(ctx context.Context, userID, token string) (*models.WorkspaceInvitation, error) {
	inv, err := m.ValidateInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if !inv.IsAddressed() {
		return nil, newError(KindInvalid, "link invitations cannot be declined")
	}
	if err := m.recipient(ctx, inv, userID); err != nil {
		return nil, err
	}

	now := m.clock()
	ok, err := m.store.TransitionInvitation(ctx, inv.ID, models.InvitationDeclined, now)
	if err != nil {
		return nil, internal("decline invitation", err)
	}
	if !ok {
		return nil, newError(KindInvalid, "invitation is no longer pending")
	}
	inv.Status = models.InvitationDeclined
	inv.RespondedAt = &now

	m.log.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"user_id":       userID,
	}).Info("invitation declined")
	return inv, nil
}

// RevokeInvitation deactivates an invitation on behalf of an Owner or Admin.
func (m *Invitations) RevokeInvitation(ctx context.Context, invitationID, actingUserID string) error {
	inv, err := m.store.GetInvitation(ctx, invitationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "invitation %s not found", invitationID)
		}
		return internal("load invitation", err)
	}
	ws, err := m.ledger.workspace(ctx, inv.WorkspaceID)
	if err != nil {
		return err
	}
	acting, _, err := m.ledger.roleIn(ctx, ws, actingUserID)
	if err != nil {
		return err
	}
	logCtx := m.log.WithFields(logrus.Fields{
		"invitation_id":  inv.ID,
		"workspace_id":   ws.ID,
		"acting_user_id": actingUserID,
	})
	if !acting.AtLeast(models.RoleAdmin) {
		logCtx.Warn("revoke invitation rejected: insufficient role")
		return newError(KindForbidden, "only the owner or an admin can revoke invitations")
	}

	if err := m.store.RevokeInvitation(ctx, inv.ID, m.clock()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "invitation %s not found", invitationID)
		}
		return internal("revoke invitation", err)
	}
	logCtx.Info("invitation revoked")
	return nil
}

// ListMyInvitations returns the usable addressed invitations for the user's
// email. Tokens are included: the caller is the addressee.
func (m *Invitations) ListMyInvitations(ctx context.Context, userID string) ([]models.WorkspaceInvitation, error) {
	user, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newError(KindNotFound, "user %s not found", userID)
		}
		return nil, internal("load user", err)
	}
	if strings.TrimSpace(user.Email) == "" {
		return []models.WorkspaceInvitation{}, nil
	}

	invs, err := m.store.ListInvitations(ctx, database.ListInvitationsOptions{
		Email:      user.Email,
		Status:     models.InvitationPending,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, internal("list invitations", err)
	}
	now := m.clock()
	mine := make([]models.WorkspaceInvitation, 0, len(invs))
	for _, inv := range invs {
		if inv.IsUsableAt(now) {
			mine = append(mine, inv)
		}
	}
	return mine, nil
}
