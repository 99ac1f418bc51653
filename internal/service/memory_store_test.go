package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"clockpoint/internal/models"
	"clockpoint/internal/repository"
)

// memoryStore is an in-memory Store. Transactions hold the store lock for
// their whole duration and restore a snapshot when fn fails.
type memoryStore struct {
	mu   sync.Mutex
	data memoryData
	// fail makes the named operation return the error once.
	fail map[string]error
}

type memoryData struct {
	users          map[string]models.User
	groups         map[string]models.Group
	roles          map[string]models.Role
	rolePerms      map[string][]models.Permission
	members        map[string]models.GroupUser
	sessions       map[string]models.ClockSession
	entries        map[string]models.ClockEntry
	sessionEntries []models.SessionEntry
	schedules      map[string]models.ClockSchedule
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data: memoryData{
			users:     make(map[string]models.User),
			groups:    make(map[string]models.Group),
			roles:     make(map[string]models.Role),
			rolePerms: make(map[string][]models.Permission),
			members:   make(map[string]models.GroupUser),
			sessions:  make(map[string]models.ClockSession),
			entries:   make(map[string]models.ClockEntry),
			schedules: make(map[string]models.ClockSchedule),
		},
		fail: make(map[string]error),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d memoryData) clone() memoryData {
	perms := make(map[string][]models.Permission, len(d.rolePerms))
	for k, v := range d.rolePerms {
		perms[k] = append([]models.Permission(nil), v...)
	}
	return memoryData{
		users:          cloneMap(d.users),
		groups:         cloneMap(d.groups),
		roles:          cloneMap(d.roles),
		rolePerms:      perms,
		members:        cloneMap(d.members),
		sessions:       cloneMap(d.sessions),
		entries:        cloneMap(d.entries),
		sessionEntries: append([]models.SessionEntry(nil), d.sessionEntries...),
		schedules:      cloneMap(d.schedules),
	}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(tx Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(memoryView{store: m, tx: true}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) Users() UserStore         { return memoryView{store: m}.Users() }
func (m *memoryStore) Groups() GroupStore       { return memoryView{store: m}.Groups() }
func (m *memoryStore) Roles() RoleStore         { return memoryView{store: m}.Roles() }
func (m *memoryStore) Members() MemberStore     { return memoryView{store: m}.Members() }
func (m *memoryStore) Sessions() SessionStore   { return memoryView{store: m}.Sessions() }
func (m *memoryStore) Schedules() ScheduleStore { return memoryView{store: m}.Schedules() }

// failNext arms a one-shot failure for op.
func (m *memoryStore) failNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

func (m *memoryStore) snapshot() memoryData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.clone()
}

// memoryView runs operations against the store, taking the lock unless it
// belongs to a transaction that already holds it.
type memoryView struct {
	store *memoryStore
	tx    bool
}

func (v memoryView) do(op string, fn func(d *memoryData) error) error {
	if !v.tx {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	if err, ok := v.store.fail[op]; ok {
		delete(v.store.fail, op)
		return err
	}
	return fn(&v.store.data)
}

func (v memoryView) Users() UserStore         { return memoryUsers{v} }
func (v memoryView) Groups() GroupStore       { return memoryGroups{v} }
func (v memoryView) Roles() RoleStore         { return memoryRoles{v} }
func (v memoryView) Members() MemberStore     { return memoryMembers{v} }
func (v memoryView) Sessions() SessionStore   { return memorySessions{v} }
func (v memoryView) Schedules() ScheduleStore { return memorySchedules{v} }

type memoryUsers struct{ v memoryView }

func (r memoryUsers) Create(ctx context.Context, user *models.User) error {
	return r.v.do("users.create", func(d *memoryData) error {
		for _, u := range d.users {
			if u.Deleted() {
				continue
			}
			if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
				return repository.ErrDuplicate
			}
		}
		user.CreatedAt, user.UpdatedAt = time.Now(), time.Now()
		d.users[user.ID] = *user
		return nil
	})
}

func (r memoryUsers) GetByID(ctx context.Context, id string) (models.User, error) {
	var out models.User
	err := r.v.do("users.get", func(d *memoryData) error {
		u, ok := d.users[id]
		if !ok || u.Deleted() {
			return repository.ErrNotFound
		}
		out = u
		return nil
	})
	return out, err
}

func (r memoryUsers) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var out models.User
	err := r.v.do("users.get", func(d *memoryData) error {
		for _, u := range d.users {
			if !u.Deleted() && strings.EqualFold(u.Email, email) {
				out = u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memoryUsers) update(op, id string, fn func(u *models.User)) error {
	return r.v.do(op, func(d *memoryData) error {
		u, ok := d.users[id]
		if !ok || u.Deleted() {
			return repository.ErrNotFound
		}
		fn(&u)
		u.UpdatedAt = time.Now()
		d.users[id] = u
		return nil
	})
}

func (r memoryUsers) UpdatePassword(ctx context.Context, id, salt, passwordHash string) error {
	return r.update("users.password", id, func(u *models.User) {
		u.Salt, u.PasswordHash = salt, passwordHash
	})
}

func (r memoryUsers) Activate(ctx context.Context, id string) error {
	return r.update("users.activate", id, func(u *models.User) { u.IsActive = true })
}

func (r memoryUsers) SoftDelete(ctx context.Context, id string) error {
	return r.update("users.delete", id, func(u *models.User) {
		now := time.Now()
		u.DeletedAt = &now
	})
}

type memoryGroups struct{ v memoryView }

func (r memoryGroups) Create(ctx context.Context, group *models.Group) error {
	return r.v.do("groups.create", func(d *memoryData) error {
		for _, g := range d.groups {
			if g.DeletedAt == nil && g.Name == group.Name {
				return repository.ErrDuplicate
			}
		}
		group.CreatedAt, group.UpdatedAt = time.Now(), time.Now()
		d.groups[group.ID] = *group
		return nil
	})
}

func (r memoryGroups) GetByID(ctx context.Context, id string) (models.Group, error) {
	var out models.Group
	err := r.v.do("groups.get", func(d *memoryData) error {
		g, ok := d.groups[id]
		if !ok || g.DeletedAt != nil {
			return repository.ErrNotFound
		}
		out = g
		return nil
	})
	return out, err
}

func (r memoryGroups) GetByName(ctx context.Context, name string) (models.Group, error) {
	var out models.Group
	err := r.v.do("groups.get", func(d *memoryData) error {
		for _, g := range d.groups {
			if g.DeletedAt == nil && g.Name == name {
				out = g
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memoryGroups) Update(ctx context.Context, group *models.Group) error {
	return r.v.do("groups.update", func(d *memoryData) error {
		current, ok := d.groups[group.ID]
		if !ok || current.DeletedAt != nil {
			return repository.ErrNotFound
		}
		for _, g := range d.groups {
			if g.ID != group.ID && g.DeletedAt == nil && g.Name == group.Name {
				return repository.ErrDuplicate
			}
		}
		group.UpdatedAt = time.Now()
		d.groups[group.ID] = *group
		return nil
	})
}

func (r memoryGroups) SoftDelete(ctx context.Context, id string) error {
	return r.v.do("groups.delete", func(d *memoryData) error {
		g, ok := d.groups[id]
		if !ok || g.DeletedAt != nil {
			return repository.ErrNotFound
		}
		now := time.Now()
		g.DeletedAt = &now
		d.groups[id] = g
		return nil
	})
}

type memoryRoles struct{ v memoryView }

func (r memoryRoles) Create(ctx context.Context, role *models.Role) error {
	return r.v.do("roles.create", func(d *memoryData) error {
		for _, existing := range d.roles {
			if existing.GroupID == role.GroupID && existing.Name == role.Name {
				return repository.ErrDuplicate
			}
		}
		role.CreatedAt, role.UpdatedAt = time.Now(), time.Now()
		d.roles[role.ID] = *role
		return nil
	})
}

func (r memoryRoles) GetByID(ctx context.Context, id string) (models.Role, error) {
	var out models.Role
	err := r.v.do("roles.get", func(d *memoryData) error {
		role, ok := d.roles[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = role
		return nil
	})
	return out, err
}

func (r memoryRoles) GetByName(ctx context.Context, groupID string, name models.RoleName) (models.Role, error) {
	var out models.Role
	err := r.v.do("roles.get", func(d *memoryData) error {
		for _, role := range d.roles {
			if role.GroupID == groupID && role.Name == name {
				out = role
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memoryRoles) BindPermissions(ctx context.Context, roleID string, perms []models.Permission) error {
	return r.v.do("roles.bind", func(d *memoryData) error {
		bound := models.NewPermissionSet(d.rolePerms[roleID]...)
		for _, p := range perms {
			if !p.Valid() {
				return repository.ErrNotFound
			}
			if bound.Has(p) {
				return repository.ErrDuplicate
			}
			bound[p] = struct{}{}
			d.rolePerms[roleID] = append(d.rolePerms[roleID], p)
		}
		return nil
	})
}

func (r memoryRoles) Permissions(ctx context.Context, roleID string) ([]models.Permission, error) {
	var out []models.Permission
	err := r.v.do("roles.permissions", func(d *memoryData) error {
		out = models.NewPermissionSet(d.rolePerms[roleID]...).Sorted()
		return nil
	})
	return out, err
}

type memoryMembers struct{ v memoryView }

func (r memoryMembers) Add(ctx context.Context, gu *models.GroupUser) error {
	return r.v.do("members.add", func(d *memoryData) error {
		for id, existing := range d.members {
			if existing.GroupID != gu.GroupID || existing.UserID != gu.UserID {
				continue
			}
			if existing.DeletedAt == nil {
				return repository.ErrDuplicate
			}
			existing.RoleID = gu.RoleID
			existing.DeletedAt = nil
			existing.UpdatedAt = time.Now()
			d.members[id] = existing
			*gu = existing
			return nil
		}
		gu.CreatedAt, gu.UpdatedAt = time.Now(), time.Now()
		d.members[gu.ID] = *gu
		return nil
	})
}

func activeGroup(d *memoryData, groupID string) bool {
	g, ok := d.groups[groupID]
	return ok && g.DeletedAt == nil
}

func (r memoryMembers) Get(ctx context.Context, groupID, userID string) (models.GroupUser, error) {
	var out models.GroupUser
	err := r.v.do("members.get", func(d *memoryData) error {
		if !activeGroup(d, groupID) {
			return repository.ErrNotFound
		}
		for _, gu := range d.members {
			if gu.GroupID == groupID && gu.UserID == userID && gu.DeletedAt == nil {
				out = gu
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memoryMembers) GetByID(ctx context.Context, id string) (models.GroupUser, error) {
	var out models.GroupUser
	err := r.v.do("members.get", func(d *memoryData) error {
		gu, ok := d.members[id]
		if !ok || gu.DeletedAt != nil {
			return repository.ErrNotFound
		}
		out = gu
		return nil
	})
	return out, err
}

func (r memoryMembers) UpdateRole(ctx context.Context, id, roleID string) error {
	return r.v.do("members.role", func(d *memoryData) error {
		gu, ok := d.members[id]
		if !ok || gu.DeletedAt != nil {
			return repository.ErrNotFound
		}
		gu.RoleID = roleID
		d.members[id] = gu
		return nil
	})
}

func (r memoryMembers) SoftDelete(ctx context.Context, id string) error {
	return r.v.do("members.delete", func(d *memoryData) error {
		gu, ok := d.members[id]
		if !ok || gu.DeletedAt != nil {
			return repository.ErrNotFound
		}
		now := time.Now()
		gu.DeletedAt = &now
		d.members[id] = gu
		return nil
	})
}

func (r memoryMembers) SoftDeleteByUser(ctx context.Context, userID string) error {
	return r.v.do("members.delete", func(d *memoryData) error {
		now := time.Now()
		for id, gu := range d.members {
			if gu.UserID == userID && gu.DeletedAt == nil {
				gu.DeletedAt = &now
				d.members[id] = gu
			}
		}
		return nil
	})
}

func (r memoryMembers) ListByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	var out []models.Membership
	err := r.v.do("members.list", func(d *memoryData) error {
		for _, gu := range d.members {
			if gu.UserID != userID || gu.DeletedAt != nil || !activeGroup(d, gu.GroupID) {
				continue
			}
			out = append(out, models.Membership{GroupUser: gu, Group: d.groups[gu.GroupID], Role: d.roles[gu.RoleID]})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Group.Name < out[j].Group.Name })
		return nil
	})
	return out, err
}

func (r memoryMembers) ListByGroup(ctx context.Context, groupID string) ([]models.Member, error) {
	var out []models.Member
	err := r.v.do("members.list", func(d *memoryData) error {
		for _, gu := range d.members {
			u, ok := d.users[gu.UserID]
			if gu.GroupID != groupID || gu.DeletedAt != nil || !ok || u.Deleted() {
				continue
			}
			out = append(out, models.Member{GroupUser: gu, User: u, Role: d.roles[gu.RoleID].Name})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].User.Username < out[j].User.Username })
		return nil
	})
	return out, err
}

type memorySessions struct{ v memoryView }

func (r memorySessions) Create(ctx context.Context, s *models.ClockSession) error {
	return r.v.do("sessions.create", func(d *memoryData) error {
		s.CreatedAt, s.UpdatedAt = time.Now(), time.Now()
		d.sessions[s.ID] = *s
		return nil
	})
}

func (r memorySessions) Get(ctx context.Context, id string) (models.ClockSession, error) {
	var out models.ClockSession
	err := r.v.do("sessions.get", func(d *memoryData) error {
		s, ok := d.sessions[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = s
		return nil
	})
	return out, err
}

func (r memorySessions) ListByGroup(ctx context.Context, groupID string, from, to *time.Time) ([]models.ClockSession, error) {
	var out []models.ClockSession
	err := r.v.do("sessions.list", func(d *memoryData) error {
		for _, s := range d.sessions {
			if s.GroupID != groupID {
				continue
			}
			if (from != nil && s.StartAt.Before(*from)) || (to != nil && s.StartAt.After(*to)) {
				continue
			}
			out = append(out, s)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
		return nil
	})
	return out, err
}

func (r memorySessions) AddSessionEntry(ctx context.Context, e *models.SessionEntry) error {
	return r.v.do("sessions.link", func(d *memoryData) error {
		if e.EntryID == nil {
			for _, existing := range d.sessionEntries {
				if existing.EntryID == nil && existing.SessionID == e.SessionID && existing.GroupUserID == e.GroupUserID {
					return repository.ErrDuplicate
				}
			}
		}
		d.sessionEntries = append(d.sessionEntries, *e)
		return nil
	})
}

func (r memorySessions) AddClockEntry(ctx context.Context, e *models.ClockEntry) error {
	return r.v.do("sessions.entry", func(d *memoryData) error {
		e.CreatedAt, e.UpdatedAt = time.Now(), time.Now()
		d.entries[e.ID] = *e
		return nil
	})
}

// LockPair is implied by the transaction holding the store lock.
func (r memorySessions) LockPair(ctx context.Context, sessionID, groupUserID string) error {
	return r.v.do("sessions.lock", func(*memoryData) error { return nil })
}

func (r memorySessions) LastEntry(ctx context.Context, sessionID, groupUserID string) (models.ClockEntry, error) {
	var (
		out   models.ClockEntry
		found bool
	)
	err := r.v.do("sessions.last", func(d *memoryData) error {
		for _, se := range d.sessionEntries {
			if se.SessionID == sessionID && se.GroupUserID == groupUserID && se.EntryID != nil {
				out, found = d.entries[*se.EntryID], true
			}
		}
		if !found {
			return repository.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r memorySessions) EntryRecords(ctx context.Context, groupID string, f models.ReportFilter) ([]models.EntryRecord, error) {
	var out []models.EntryRecord
	err := r.v.do("sessions.records", func(d *memoryData) error {
		for _, se := range d.sessionEntries {
			s := d.sessions[se.SessionID]
			gu := d.members[se.GroupUserID]
			u := d.users[gu.UserID]
			if s.GroupID != groupID || (f.SessionID != "" && s.ID != f.SessionID) {
				continue
			}
			if len(f.UserIDs) > 0 && !contains(f.UserIDs, u.ID) {
				continue
			}
			if (f.StartAt != nil && s.StartAt.Before(*f.StartAt)) || (f.StopAt != nil && s.StartAt.After(*f.StopAt)) {
				continue
			}
			rec := models.EntryRecord{
				SessionID:      s.ID,
				SessionStartAt: s.StartAt,
				SessionStopAt:  s.StopAt,
				GroupUserID:    gu.ID,
				User:           u,
				EntryID:        se.EntryID,
			}
			if se.EntryID != nil {
				e := d.entries[*se.EntryID]
				rec.ClockAt, rec.Type = &e.ClockAt, e.Type
			}
			out = append(out, rec)
		}
		at := func(rec models.EntryRecord) time.Time {
			if rec.ClockAt != nil {
				return *rec.ClockAt
			}
			return rec.SessionStartAt
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.SessionStartAt.Equal(b.SessionStartAt) {
				return a.SessionStartAt.Before(b.SessionStartAt)
			}
			if !at(a).Equal(at(b)) {
				return at(a).Before(at(b))
			}
			return a.User.ID < b.User.ID
		})
		return nil
	})
	return out, err
}

type memorySchedules struct{ v memoryView }

func (r memorySchedules) unique(d *memoryData, s *models.ClockSchedule) error {
	for _, existing := range d.schedules {
		if existing.ID != s.ID && existing.GroupUserID == s.GroupUserID &&
			existing.StartAt == s.StartAt && existing.StopAt == s.StopAt {
			return repository.ErrDuplicate
		}
	}
	return nil
}

func (r memorySchedules) Create(ctx context.Context, s *models.ClockSchedule) error {
	return r.v.do("schedules.create", func(d *memoryData) error {
		if err := r.unique(d, s); err != nil {
			return err
		}
		s.CreatedAt, s.UpdatedAt = time.Now(), time.Now()
		d.schedules[s.ID] = *s
		return nil
	})
}

func (r memorySchedules) visible(d *memoryData, s models.ClockSchedule) (models.ClockSchedule, bool) {
	gu, ok := d.members[s.GroupUserID]
	if !ok || gu.DeletedAt != nil || !activeGroup(d, gu.GroupID) {
		return s, false
	}
	s.GroupID = gu.GroupID
	return s, true
}

func (r memorySchedules) Get(ctx context.Context, id string) (models.ClockSchedule, error) {
	var out models.ClockSchedule
	err := r.v.do("schedules.get", func(d *memoryData) error {
		s, ok := d.schedules[id]
		if !ok {
			return repository.ErrNotFound
		}
		if out, ok = r.visible(d, s); !ok {
			return repository.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r memorySchedules) Update(ctx context.Context, s *models.ClockSchedule) error {
	return r.v.do("schedules.update", func(d *memoryData) error {
		if _, ok := d.schedules[s.ID]; !ok {
			return repository.ErrNotFound
		}
		if err := r.unique(d, s); err != nil {
			return err
		}
		s.UpdatedAt = time.Now()
		d.schedules[s.ID] = *s
		return nil
	})
}

func (r memorySchedules) Delete(ctx context.Context, id string) error {
	return r.v.do("schedules.delete", func(d *memoryData) error {
		if _, ok := d.schedules[id]; !ok {
			return repository.ErrNotFound
		}
		delete(d.schedules, id)
		return nil
	})
}

func (r memorySchedules) list(groupID string) ([]models.ClockSchedule, error) {
	var out []models.ClockSchedule
	err := r.v.do("schedules.list", func(d *memoryData) error {
		for _, s := range d.schedules {
			s, ok := r.visible(d, s)
			if !ok || (groupID != "" && s.GroupID != groupID) {
				continue
			}
			out = append(out, s)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].StartAt < out[j].StartAt })
		return nil
	})
	return out, err
}

func (r memorySchedules) ListByGroup(ctx context.Context, groupID string) ([]models.ClockSchedule, error) {
	return r.list(groupID)
}

func (r memorySchedules) ListActive(ctx context.Context) ([]models.ClockSchedule, error) {
	return r.list("")
}
