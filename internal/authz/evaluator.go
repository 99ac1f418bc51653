// Package authz decides whether a group member may perform an action, using
// the permission set bound to the member's role.
package authz

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"clockpoint/internal/apperr"
	"clockpoint/internal/models"
	"clockpoint/internal/repository"
)

var (
	ErrNotInGroup       = apperr.New(apperr.KindUnauthorized, "not_in_group", "user is not a member of this group")
	ErrPermissionDenied = apperr.New(apperr.KindForbidden, "permission_denied", "permission denied")
	ErrRoleEscalation   = apperr.New(apperr.KindForbidden, "role_escalation", "cannot act on a member of equal or higher rank")
)

// Source reads memberships and role bindings. Member returns
// repository.ErrNotFound when the user has no active membership.
type Source interface {
	Member(ctx context.Context, groupID, userID string) (models.GroupUser, error)
	RolePermissions(ctx context.Context, roleID string) ([]models.Permission, error)
}

// Grant is a resolved membership with its permission set.
type Grant struct {
	Member      models.GroupUser
	Permissions models.PermissionSet
}

type Evaluator struct {
	src Source

	mu    sync.RWMutex
	roles map[string]models.PermissionSet
}

func NewEvaluator(src Source) *Evaluator {
	return &Evaluator{src: src, roles: make(map[string]models.PermissionSet)}
}

// RolePermissions returns the cached permission set of roleID. Role
// bindings are written with the role and never change afterwards.
func (e *Evaluator) RolePermissions(ctx context.Context, roleID string) (models.PermissionSet, error) {
	e.mu.RLock()
	set, ok := e.roles[roleID]
	e.mu.RUnlock()
	if ok {
		return set, nil
	}

	perms, err := e.src.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	set = models.NewPermissionSet(perms...)

	e.mu.Lock()
	e.roles[roleID] = set
	e.mu.Unlock()
	return set, nil
}

// Resolve looks up the actor's membership in groupID.
func (e *Evaluator) Resolve(ctx context.Context, actorID, groupID string) (Grant, error) {
	member, err := e.src.Member(ctx, groupID, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return Grant{}, ErrNotInGroup
	}
	if err != nil {
		return Grant{}, fmt.Errorf("load membership: %w", err)
	}
	perms, err := e.RolePermissions(ctx, member.RoleID)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Member: member, Permissions: perms}, nil
}

func (e *Evaluator) Allow(ctx context.Context, actorID, groupID string, action models.Permission) (bool, error) {
	grant, err := e.Resolve(ctx, actorID, groupID)
	if errors.Is(err, ErrNotInGroup) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return grant.Permissions.Has(action), nil
}

// Require resolves the actor and fails with ErrPermissionDenied naming the
// action when it is not granted.
func (e *Evaluator) Require(ctx context.Context, actorID, groupID string, action models.Permission) (Grant, error) {
	grant, err := e.Resolve(ctx, actorID, groupID)
	if err != nil {
		return Grant{}, err
	}
	if !grant.Permissions.Has(action) {
		return Grant{}, Denied(action)
	}
	return grant, nil
}

func Denied(action models.Permission) error {
	return ErrPermissionDenied.
		WithMessage(fmt.Sprintf("permission denied: %s", action)).
		WithFields(apperr.FieldError{Name: "action", Message: string(action), ErrorCode: ErrPermissionDenied.Code})
}

// CheckAssign enforces that the actor strictly outranks both the target's
// current role and the role being assigned.
func CheckAssign(actor, targetCurrent, targetNext models.PermissionSet) error {
	if !actor.StrictSupersetOf(targetCurrent) || !actor.StrictSupersetOf(targetNext) {
		return ErrRoleEscalation
	}
	return nil
}

// CheckKick enforces that the actor strictly outranks the target.
func CheckKick(actor, target models.PermissionSet) error {
	if !actor.StrictSupersetOf(target) {
		return ErrRoleEscalation
	}
	return nil
}
