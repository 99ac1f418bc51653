package service

import (
	"context"
	"errors"
	"time"

	"clockpoint/internal/authz"
	"clockpoint/internal/models"
	"clockpoint/internal/repository"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	UpdatePassword(ctx context.Context, id, salt, passwordHash string) error
	Activate(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
}

type GroupStore interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id string) (models.Group, error)
	GetByName(ctx context.Context, name string) (models.Group, error)
	Update(ctx context.Context, group *models.Group) error
	SoftDelete(ctx context.Context, id string) error
}

type RoleStore interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id string) (models.Role, error)
	GetByName(ctx context.Context, groupID string, name models.RoleName) (models.Role, error)
	BindPermissions(ctx context.Context, roleID string, perms []models.Permission) error
	Permissions(ctx context.Context, roleID string) ([]models.Permission, error)
}

type MemberStore interface {
	Add(ctx context.Context, gu *models.GroupUser) error
	Get(ctx context.Context, groupID, userID string) (models.GroupUser, error)
	GetByID(ctx context.Context, id string) (models.GroupUser, error)
	UpdateRole(ctx context.Context, id, roleID string) error
	SoftDelete(ctx context.Context, id string) error
	SoftDeleteByUser(ctx context.Context, userID string) error
	ListByUser(ctx context.Context, userID string) ([]models.Membership, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Member, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *models.ClockSession) error
	Get(ctx context.Context, id string) (models.ClockSession, error)
	ListByGroup(ctx context.Context, groupID string, from, to *time.Time) ([]models.ClockSession, error)
	AddSessionEntry(ctx context.Context, e *models.SessionEntry) error
	AddClockEntry(ctx context.Context, e *models.ClockEntry) error
	LockPair(ctx context.Context, sessionID, groupUserID string) error
	LastEntry(ctx context.Context, sessionID, groupUserID string) (models.ClockEntry, error)
	EntryRecords(ctx context.Context, groupID string, f models.ReportFilter) ([]models.EntryRecord, error)
}

type ScheduleStore interface {
	Create(ctx context.Context, s *models.ClockSchedule) error
	Get(ctx context.Context, id string) (models.ClockSchedule, error)
	Update(ctx context.Context, s *models.ClockSchedule) error
	Delete(ctx context.Context, id string) error
	ListByGroup(ctx context.Context, groupID string) ([]models.ClockSchedule, error)
	ListActive(ctx context.Context) ([]models.ClockSchedule, error)
}

// Repositories is the set of stores reachable inside or outside a
// transaction.
type Repositories interface {
	Users() UserStore
	Groups() GroupStore
	Roles() RoleStore
	Members() MemberStore
	Sessions() SessionStore
	Schedules() ScheduleStore
}

// Store is the persistence boundary of every service. WithTx discards all
// writes made through tx when fn fails.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}

type pgStore struct {
	store *repository.Store
}

// NewPostgresStore adapts the pgx repositories to Store.
func NewPostgresStore(store *repository.Store) Store {
	return pgStore{store: store}
}

func (p pgStore) WithTx(ctx context.Context, fn func(tx Repositories) error) error {
	if p.store == nil {
		return errors.New("nil store")
	}
	return p.store.WithTx(ctx, func(tx *repository.Store) error {
		return fn(pgStore{store: tx})
	})
}

func (p pgStore) Ping(ctx context.Context) error { return p.store.Ping(ctx) }

func (p pgStore) Users() UserStore         { return p.store.Users() }
func (p pgStore) Groups() GroupStore       { return p.store.Groups() }
func (p pgStore) Roles() RoleStore         { return p.store.Roles() }
func (p pgStore) Members() MemberStore     { return p.store.Members() }
func (p pgStore) Sessions() SessionStore   { return p.store.Sessions() }
func (p pgStore) Schedules() ScheduleStore { return p.store.Schedules() }

type authzSource struct {
	repos Repositories
}

// NewAuthzSource feeds the evaluator from repos.
func NewAuthzSource(repos Repositories) authz.Source {
	return authzSource{repos: repos}
}

func (a authzSource) Member(ctx context.Context, groupID, userID string) (models.GroupUser, error) {
	return a.repos.Members().Get(ctx, groupID, userID)
}

func (a authzSource) RolePermissions(ctx context.Context, roleID string) ([]models.Permission, error) {
	return a.repos.Roles().Permissions(ctx, roleID)
}
