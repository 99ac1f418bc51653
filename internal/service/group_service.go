package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"clockpoint/internal/apperr"
	"clockpoint/internal/authz"
	"clockpoint/internal/config"
	"clockpoint/internal/events"
	"clockpoint/internal/ids"
	"clockpoint/internal/mail"
	"clockpoint/internal/models"
	"clockpoint/internal/notify"
	"clockpoint/internal/repository"
	"clockpoint/internal/tokens"
)

type GroupService struct {
	store   Store
	tokens  *tokens.Store
	authz   *authz.Evaluator
	effects Effects
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewGroupService(
	store Store,
	tokenStore *tokens.Store,
	evaluator *authz.Evaluator,
	effects Effects,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *GroupService {
	return &GroupService{
		store:   store,
		tokens:  tokenStore,
		authz:   evaluator,
		effects: effects,
		cfg:     cfg,
		log:     log,
	}
}

type CustomRole struct {
	Name        models.RoleName
	Permissions []models.Permission
}

type CreateGroupInput struct {
	Name        string
	Description *string
	CustomRoles []CustomRole
}

func (in CreateGroupInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation(apperr.FieldError{Name: "name", Message: "field is required", ErrorCode: "required"})
	}
	seen := make(map[models.RoleName]bool)
	for _, role := range in.CustomRoles {
		name := models.RoleName(strings.TrimSpace(string(role.Name)))
		if name == "" {
			return apperr.Validation(apperr.FieldError{Name: "customRoles", Message: "role name is required", ErrorCode: "required"})
		}
		if name.Reserved() || seen[name] {
			return ErrDuplicateRole.WithMessage(fmt.Sprintf("role %s already exists in this group", name))
		}
		seen[name] = true

		perms := make(map[models.Permission]bool, len(role.Permissions))
		for _, p := range role.Permissions {
			if !p.Valid() {
				return ErrInvalidPermission.WithMessage(fmt.Sprintf("unknown permission %q", p))
			}
			if perms[p] {
				return ErrDuplicateRolePermission.WithMessage(fmt.Sprintf("permission %s listed twice for role %s", p, name))
			}
			perms[p] = true
		}
	}
	return nil
}

// CreateGroup inserts the group, its reserved and custom roles with their
// bindings, and the actor's OWNER membership in one transaction.
func (s *GroupService) CreateGroup(ctx context.Context, actor models.User, input CreateGroupInput) (models.Membership, error) {
	if err := input.validate(); err != nil {
		return models.Membership{}, err
	}

	group := models.Group{
		ID:          ids.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
	}
	var result models.Membership

	err := s.store.WithTx(ctx, func(tx Repositories) error {
		if err := tx.Groups().Create(ctx, &group); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateGroup
			}
			return fmt.Errorf("create group: %w", err)
		}

		bindings := []CustomRole{
			{Name: models.RoleOwner, Permissions: models.DefaultRolePermissions[models.RoleOwner]},
			{Name: models.RoleAdmin, Permissions: models.DefaultRolePermissions[models.RoleAdmin]},
			{Name: models.RoleUser, Permissions: models.DefaultRolePermissions[models.RoleUser]},
		}
		for _, custom := range input.CustomRoles {
			custom.Name = models.RoleName(strings.TrimSpace(string(custom.Name)))
			bindings = append(bindings, custom)
		}

		var owner models.Role
		for _, b := range bindings {
			role := models.Role{ID: ids.New(), GroupID: group.ID, Name: b.Name}
			if err := tx.Roles().Create(ctx, &role); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return ErrDuplicateRole.WithMessage(fmt.Sprintf("role %s already exists in this group", b.Name))
				}
				return fmt.Errorf("create role %s: %w", b.Name, err)
			}
			if err := tx.Roles().BindPermissions(ctx, role.ID, b.Permissions); err != nil {
				switch {
				case errors.Is(err, repository.ErrDuplicate):
					return ErrDuplicateRolePermission
				case errors.Is(err, repository.ErrNotFound):
					return ErrInvalidPermission
				}
				return fmt.Errorf("bind permissions of %s: %w", b.Name, err)
			}
			if b.Name == models.RoleOwner {
				owner = role
			}
		}

		member := models.GroupUser{ID: ids.New(), GroupID: group.ID, UserID: actor.ID, RoleID: owner.ID}
		if err := tx.Members().Add(ctx, &member); err != nil {
			return fmt.Errorf("add owner: %w", err)
		}

		result = models.Membership{
			GroupUser:   member,
			Group:       group,
			Role:        owner,
			Permissions: models.NewPermissionSet(models.DefaultRolePermissions[models.RoleOwner]...),
		}
		return nil
	})
	if err != nil {
		return models.Membership{}, err
	}

	s.log.Info().Str("group_id", group.ID).Str("user_id", actor.ID).Msg("group created")
	s.effects.emit(ctx, events.GroupCreated, map[string]any{
		"groupId": group.ID,
		"name":    group.Name,
		"ownerId": actor.ID,
	})
	return result, nil
}

// GetGroup returns the actor's membership in the group named name.
func (s *GroupService) GetGroup(ctx context.Context, actor models.User, name string) (models.Membership, error) {
	group, err := s.store.Groups().GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Membership{}, ErrGroupNotFound
		}
		return models.Membership{}, fmt.Errorf("load group: %w", err)
	}
	return s.membership(ctx, actor.ID, group)
}

func (s *GroupService) membership(ctx context.Context, userID string, group models.Group) (models.Membership, error) {
	grant, err := s.authz.Resolve(ctx, userID, group.ID)
	if err != nil {
		return models.Membership{}, err
	}
	role, err := s.store.Roles().GetByID(ctx, grant.Member.RoleID)
	if err != nil {
		return models.Membership{}, fmt.Errorf("load role: %w", err)
	}
	return models.Membership{GroupUser: grant.Member, Group: group, Role: role, Permissions: grant.Permissions}, nil
}

func (s *GroupService) ListGroups(ctx context.Context, actor models.User) ([]models.Membership, error) {
	memberships, err := s.store.Members().ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	for i := range memberships {
		perms, err := s.authz.RolePermissions(ctx, memberships[i].Role.ID)
		if err != nil {
			return nil, err
		}
		memberships[i].Permissions = perms
	}
	return memberships, nil
}

// Members lists the group's members for any member of the group.
func (s *GroupService) Members(ctx context.Context, actor models.User, groupID string) ([]models.Member, error) {
	if _, err := s.authz.Resolve(ctx, actor.ID, groupID); err != nil {
		return nil, err
	}
	members, err := s.store.Members().ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *GroupService) group(ctx context.Context, groupID string) (models.Group, error) {
	group, err := s.store.Groups().GetByID(ctx, groupID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("load group: %w", err)
	}
	return group, nil
}

// Invite issues one INVITE token per recipient and mails it. It returns
// the normalized recipient list.
func (s *GroupService) Invite(ctx context.Context, actor models.User, groupID string, emails []string) ([]string, error) {
	if _, err := s.authz.Require(ctx, actor.ID, groupID, models.PermInviteUser); err != nil {
		return nil, err
	}
	group, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}

	recipients := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, email := range emails {
		email = normalizeEmail(email)
		if email == "" || seen[email] {
			continue
		}
		if !strings.Contains(email, "@") {
			return nil, apperr.Validation(apperr.FieldError{Name: "emails", Message: fmt.Sprintf("invalid email address %q", email), ErrorCode: "invalid_email"})
		}
		seen[email] = true
		recipients = append(recipients, email)
	}
	if len(recipients) == 0 {
		return nil, apperr.Validation(apperr.FieldError{Name: "emails", Message: "at least one email is required", ErrorCode: "required"})
	}

	for _, email := range recipients {
		raw, _, err := s.tokens.Issue(ctx, &actor, models.SubjectInvite, s.cfg.Security.InviteTTL, tokens.Record{
			Emails:  []string{email},
			GroupID: group.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("issue invite token: %w", err)
		}

		s.effects.mail(ctx, mail.Message{
			Template: mail.TemplateInvite,
			To:       []string{email},
			Data: map[string]string{
				"app":     s.cfg.AppName,
				"inviter": actor.FirstName + " " + actor.LastName,
				"group":   group.Name,
				"link":    frontendLink(s.cfg.Frontend, s.cfg.Frontend.InvitePath, "invite_token", raw),
				"expires": humanDuration(s.cfg.Security.InviteTTL),
			},
		})

		if invitee, err := s.store.Users().GetByEmail(ctx, email); err == nil {
			s.effects.notify(ctx, notify.EventGroupInvite, []string{invitee.ID}, map[string]string{
				"groupId":   group.ID,
				"groupName": group.Name,
				"inviterId": actor.ID,
			})
		}
	}

	s.log.Info().Str("group_id", group.ID).Str("user_id", actor.ID).Int("recipients", len(recipients)).Msg("invitations issued")
	return recipients, nil
}

// AcceptInvite consumes an INVITE token addressed to the actor's email and
// adds the actor to the group as USER.
func (s *GroupService) AcceptInvite(ctx context.Context, actor models.User, raw string) (models.Membership, error) {
	claim, err := s.tokens.Consume(ctx, raw, models.SubjectInvite)
	if err != nil {
		return models.Membership{}, err
	}
	membership, err := s.acceptInvite(ctx, actor, claim)
	if err != nil {
		if rerr := claim.Restore(ctx); rerr != nil {
			s.log.Error().Err(rerr).Msg("restore invite token failed")
		}
		return models.Membership{}, err
	}

	s.effects.notify(ctx, notify.EventMemberJoined, []string{claim.Record.UserID}, map[string]string{
		"groupId": membership.Group.ID,
		"userId":  actor.ID,
	})
	s.effects.emit(ctx, events.MemberJoined, map[string]any{
		"groupId": membership.Group.ID,
		"userId":  actor.ID,
		"role":    membership.Role.Name,
	})
	return membership, nil
}

func (s *GroupService) acceptInvite(ctx context.Context, actor models.User, claim *tokens.Claim) (models.Membership, error) {
	addressed := false
	for _, email := range claim.Record.Emails {
		if strings.EqualFold(email, actor.Email) {
			addressed = true
			break
		}
	}
	if !addressed {
		return models.Membership{}, ErrTokenNotAssociated
	}

	group, err := s.group(ctx, claim.Record.GroupID)
	if err != nil {
		return models.Membership{}, err
	}
	role, err := s.store.Roles().GetByName(ctx, group.ID, models.RoleUser)
	if err != nil {
		return models.Membership{}, fmt.Errorf("load USER role: %w", err)
	}

	member := models.GroupUser{ID: ids.New(), GroupID: group.ID, UserID: actor.ID, RoleID: role.ID}
	if err := s.store.Members().Add(ctx, &member); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Membership{}, ErrAlreadyMember
		}
		return models.Membership{}, fmt.Errorf("add member: %w", err)
	}

	perms, err := s.authz.RolePermissions(ctx, role.ID)
	if err != nil {
		return models.Membership{}, err
	}
	return models.Membership{GroupUser: member, Group: group, Role: role, Permissions: perms}, nil
}

func (s *GroupService) roleName(ctx context.Context, roleID string) (models.RoleName, error) {
	role, err := s.store.Roles().GetByID(ctx, roleID)
	if err != nil {
		return "", fmt.Errorf("load role: %w", err)
	}
	return role.Name, nil
}

func (s *GroupService) Leave(ctx context.Context, actor models.User, groupID string) error {
	grant, err := s.authz.Resolve(ctx, actor.ID, groupID)
	if err != nil {
		return err
	}
	name, err := s.roleName(ctx, grant.Member.RoleID)
	if err != nil {
		return err
	}
	if name == models.RoleOwner {
		return ErrOwnerCannotLeave
	}
	if err := s.store.Members().SoftDelete(ctx, grant.Member.ID); err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	s.effects.emit(ctx, events.MemberRemoved, map[string]any{"groupId": groupID, "userId": actor.ID, "reason": "left"})
	return nil
}

// target resolves a member other than the actor.
func (s *GroupService) target(ctx context.Context, groupID, userID string) (authz.Grant, models.RoleName, error) {
	grant, err := s.authz.Resolve(ctx, userID, groupID)
	if errors.Is(err, authz.ErrNotInGroup) {
		return authz.Grant{}, "", ErrMemberNotFound
	}
	if err != nil {
		return authz.Grant{}, "", err
	}
	name, err := s.roleName(ctx, grant.Member.RoleID)
	if err != nil {
		return authz.Grant{}, "", err
	}
	return grant, name, nil
}

// Kick removes userID from the group. The owner can never be kicked and the
// actor must strictly outrank the target.
func (s *GroupService) Kick(ctx context.Context, actor models.User, groupID, userID string) error {
	if userID == actor.ID {
		return ErrCannotKickSelf
	}
	grant, err := s.authz.Require(ctx, actor.ID, groupID, models.PermKickUser)
	if err != nil {
		return err
	}
	target, name, err := s.target(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if name == models.RoleOwner {
		return ErrCannotKickOwner
	}
	if err := authz.CheckKick(grant.Permissions, target.Permissions); err != nil {
		return err
	}
	if err := s.store.Members().SoftDelete(ctx, target.Member.ID); err != nil {
		return fmt.Errorf("kick member: %w", err)
	}

	s.log.Info().Str("group_id", groupID).Str("user_id", userID).Str("actor_id", actor.ID).Msg("member kicked")
	s.effects.emit(ctx, events.MemberRemoved, map[string]any{"groupId": groupID, "userId": userID, "reason": "kicked"})
	return nil
}

// AssignRole moves userID to role. The actor's permissions must strictly
// contain both the target's current and new permission sets.
func (s *GroupService) AssignRole(ctx context.Context, actor models.User, groupID, userID string, role models.RoleName) (models.Membership, error) {
	grant, err := s.authz.Require(ctx, actor.ID, groupID, models.PermAssignRole)
	if err != nil {
		return models.Membership{}, err
	}
	target, _, err := s.target(ctx, groupID, userID)
	if err != nil {
		return models.Membership{}, err
	}

	next, err := s.store.Roles().GetByName(ctx, groupID, role)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Membership{}, ErrRoleNotFound
	}
	if err != nil {
		return models.Membership{}, fmt.Errorf("load role: %w", err)
	}
	nextPerms, err := s.authz.RolePermissions(ctx, next.ID)
	if err != nil {
		return models.Membership{}, err
	}
	if err := authz.CheckAssign(grant.Permissions, target.Permissions, nextPerms); err != nil {
		return models.Membership{}, err
	}

	if err := s.store.Members().UpdateRole(ctx, target.Member.ID, next.ID); err != nil {
		return models.Membership{}, fmt.Errorf("assign role: %w", err)
	}
	group, err := s.group(ctx, groupID)
	if err != nil {
		return models.Membership{}, err
	}

	member := target.Member
	member.RoleID = next.ID
	return models.Membership{GroupUser: member, Group: group, Role: next, Permissions: nextPerms}, nil
}

type EditGroupInput struct {
	Name        *string
	Description *string
}

func (s *GroupService) EditGroup(ctx context.Context, actor models.User, groupID string, input EditGroupInput) (models.Group, error) {
	if _, err := s.authz.Require(ctx, actor.ID, groupID, models.PermEdit); err != nil {
		return models.Group{}, err
	}
	group, err := s.group(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return models.Group{}, apperr.Validation(apperr.FieldError{Name: "name", Message: "field is required", ErrorCode: "required"})
		}
		group.Name = name
	}
	if input.Description != nil {
		group.Description = input.Description
	}

	if err := s.store.Groups().Update(ctx, &group); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Group{}, ErrDuplicateGroup
		}
		return models.Group{}, fmt.Errorf("update group: %w", err)
	}
	return group, nil
}

func (s *GroupService) DeleteGroup(ctx context.Context, actor models.User, groupID string) error {
	if _, err := s.authz.Require(ctx, actor.ID, groupID, models.PermDelete); err != nil {
		return err
	}
	if err := s.store.Groups().SoftDelete(ctx, groupID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("delete group: %w", err)
	}
	s.log.Info().Str("group_id", groupID).Str("user_id", actor.ID).Msg("group deleted")
	return nil
}
