package models

import (
	"strings"
	"time"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// WorkspaceInvitation grants the right to join a workspace at Role.
// Email is empty for shareable-link invitations.
type WorkspaceInvitation struct {
	ID          string           `json:"id" db:"id"`
	WorkspaceID string           `json:"workspace_id" db:"workspace_id"`
	Email       string           `json:"email" db:"email"`
	InviterID   string           `json:"inviter_id" db:"inviter_id"`
	Role        Role             `json:"role" db:"role"`
	Status      InvitationStatus `json:"status" db:"status"`
	Token       string           `json:"token,omitempty" db:"token"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
	MaxUses     *int             `json:"max_uses,omitempty" db:"max_uses"`
	CurrentUses int              `json:"current_uses" db:"current_uses"`
	IsActive    bool             `json:"is_active" db:"is_active"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty" db:"responded_at"`
}

// IsAddressed reports whether the invitation targets a single email.
func (inv *WorkspaceInvitation) IsAddressed() bool {
	return strings.TrimSpace(inv.Email) != ""
}

func (inv *WorkspaceInvitation) IsExpiredAt(now time.Time) bool {
	return inv.ExpiresAt != nil && !inv.ExpiresAt.After(now)
}

func (inv *WorkspaceInvitation) IsExhausted() bool {
	return inv.MaxUses != nil && inv.CurrentUses >= *inv.MaxUses
}

// IsUsableAt: active, not past ExpiresAt and below MaxUses.
func (inv *WorkspaceInvitation) IsUsableAt(now time.Time) bool {
	return inv.IsActive && !inv.IsExpiredAt(now) && !inv.IsExhausted()
}

// RemainingUses returns -1 for unlimited invitations.
func (inv *WorkspaceInvitation) RemainingUses() int {
	if inv.MaxUses == nil {
		return -1
	}
	if left := *inv.MaxUses - inv.CurrentUses; left > 0 {
		return left
	}
	return 0
}

// Redacted returns a copy without the token, for roster listings.
func (inv WorkspaceInvitation) Redacted() WorkspaceInvitation {
	inv.Token = ""
	return inv
}
