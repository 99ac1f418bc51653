package models

import (
	"sort"
	"time"
)

type Group struct {
	ID          string
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

type RoleName string

const (
	RoleOwner RoleName = "OWNER"
	RoleAdmin RoleName = "ADMIN"
	RoleUser  RoleName = "USER"
)

// Reserved reports whether name is one of the roles created with every group.
func (r RoleName) Reserved() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleUser:
		return true
	}
	return false
}

type Role struct {
	ID        string
	GroupID   string
	Name      RoleName
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Permission string

const (
	PermViewOwnReport  Permission = "view_own_report"
	PermInviteUser     Permission = "invite_user"
	PermKickUser       Permission = "kick_user"
	PermGenerateReport Permission = "generate_report"
	PermViewReport     Permission = "view_report"
	PermAssignRole     Permission = "assign_role"
	PermEdit           Permission = "edit"
	PermDelete         Permission = "delete"
)

// AllPermissions is the global permission catalog.
var AllPermissions = []Permission{
	PermViewOwnReport,
	PermInviteUser,
	PermKickUser,
	PermGenerateReport,
	PermViewReport,
	PermAssignRole,
	PermEdit,
	PermDelete,
}

func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// DefaultRolePermissions are bound to the reserved roles of every new group.
var DefaultRolePermissions = map[RoleName][]Permission{
	RoleOwner: AllPermissions,
	RoleAdmin: {PermViewOwnReport, PermInviteUser, PermKickUser, PermGenerateReport, PermViewReport},
	RoleUser:  {PermViewOwnReport},
}

type RolePermission struct {
	ID           string
	RoleID       string
	PermissionID string
}

type GroupUser struct {
	ID        string
	GroupID   string
	UserID    string
	RoleID    string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Membership is a GroupUser joined with its group and role, the shape
// returned by group lookups.
type Membership struct {
	GroupUser   GroupUser
	Group       Group
	Role        Role
	Permissions PermissionSet
}

type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// StrictSupersetOf reports whether s contains every permission of other and
// at least one more.
func (s PermissionSet) StrictSupersetOf(other PermissionSet) bool {
	if len(s) <= len(other) {
		return false
	}
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
