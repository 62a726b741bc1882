package models

import "time"

// Group is a container of pages under a Workspace
type Group struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Name        string    `json:"name" db:"name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PermissionFlags are the four group capabilities
type PermissionFlags struct {
	CanView        bool `json:"can_view"`
	CanEdit        bool `json:"can_edit"`
	CanDelete      bool `json:"can_delete"`
	CanManagePages bool `json:"can_manage_pages"`
}

func AllPermissions() PermissionFlags {
	return PermissionFlags{CanView: true, CanEdit: true, CanDelete: true, CanManagePages: true}
}

// GroupPermission overrides a member's role defaults inside one group
type GroupPermission struct {
	ID        string    `json:"id" db:"id"`
	GroupID   string    `json:"group_id" db:"group_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	PermissionFlags
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
