package models

import "time"

// Workspace is the tenant container. It is owned by the workspace service;
// this module only reads the owner and the member capacity.
type Workspace struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	OwnerID    string    `json:"owner_id" db:"owner_id"`
	MaxMembers int       `json:"max_members" db:"max_members"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type Role string

const (
	RoleNone   Role = ""
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Rank orders roles for authorization comparisons: owner > admin > member > none.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r meets the minimum role.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank() && r != RoleNone
}

// Assignable reports whether the role may be stored on a member row or an invitation.
// Ownership is implicit and never assigned.
func (r Role) Assignable() bool {
	return r == RoleAdmin || r == RoleMember
}

func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(s)
	default:
		return RoleNone
	}
}

// WorkspaceMember relates a non-owner user to a workspace with a role
type WorkspaceMember struct {
	ID           string     `json:"id" db:"id"`
	WorkspaceID  string     `json:"workspace_id" db:"workspace_id"`
	UserID       string     `json:"user_id" db:"user_id"`
	Role         Role       `json:"role" db:"role"`
	JoinedAt     time.Time  `json:"joined_at" db:"joined_at"`
	LastAccessAt *time.Time `json:"last_access_at,omitempty" db:"last_access_at"`
	IsActive     bool       `json:"is_active" db:"is_active"`
}
