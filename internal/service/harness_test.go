package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clockpoint/internal/apperr"
	"clockpoint/internal/authz"
	"clockpoint/internal/config"
	"clockpoint/internal/mail"
	"clockpoint/internal/models"
	"clockpoint/internal/notify"
	"clockpoint/internal/security"
	"clockpoint/internal/tokens"
)

const testPassword = "P@ssw0rd!"

var errFake = errors.New("injected failure")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (r *recordingMailer) Enqueue(_ context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingMailer) messages(template string) []mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mail.Message
	for _, m := range r.msgs {
		if m.Template == template {
			out = append(out, m)
		}
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type recordingEvents struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingEvents) Publish(_ context.Context, routingKey string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, routingKey)
	return nil
}

func (r *recordingEvents) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.keys {
		if k == key {
			n++
		}
	}
	return n
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingArchive) ArchiveReport(_ context.Context, key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(data) == 0 {
		return errors.New("empty report")
	}
	r.keys = append(r.keys, key)
	return nil
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memoryStore
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	cfg      *config.AppConfig
	mailer   *recordingMailer
	notifier *recordingNotifier
	events   *recordingEvents
	archive  *recordingArchive

	auth     *AuthService
	groups   *GroupService
	sessions *SessionService
	clocks   *ClockService
	reports  *ReportService
}

// monday0700 is the harness start time.
var monday0700 = time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{t: monday0700}
	codec, err := security.NewTokenCodec("test-secret", "HS256")
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	codec = codec.WithClock(clock.Now)

	cfg := &config.AppConfig{
		AppName: "clockpoint",
		Security: config.SecurityConfig{
			AccessTTL:      7 * 24 * time.Hour,
			ActivateTTL:    24 * time.Hour,
			ResetTTL:       30 * time.Minute,
			InviteTTL:      7 * 24 * time.Hour,
			QRCodeEntryTTL: 5 * time.Minute,
		},
		Frontend: config.FrontendConfig{
			DNS:          "https://app.example",
			InvitePath:   "/invite",
			ActivatePath: "/activate",
			ResetPath:    "/reset-password",
		},
	}

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    newMemoryStore(),
		mr:       mr,
		rdb:      rdb,
		clock:    clock,
		cfg:      cfg,
		mailer:   &recordingMailer{},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		archive:  &recordingArchive{},
	}

	log := zerolog.Nop()
	tokenStore := tokens.NewStore(rdb, codec, 500*time.Millisecond)
	hasher := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	evaluator := authz.NewEvaluator(NewAuthzSource(h.store))
	effects := Effects{Mailer: h.mailer, Notifier: h.notifier, Events: h.events, Log: log}

	h.auth = NewAuthService(h.store, tokenStore, codec, hasher, effects, cfg, log)
	h.groups = NewGroupService(h.store, tokenStore, evaluator, effects, cfg, log)
	h.sessions = NewSessionService(h.store, evaluator, effects, log).WithClock(clock.Now)
	h.clocks = NewClockService(h.store, tokenStore, codec, evaluator, effects, cfg, log)
	h.reports = NewReportService(h.store, evaluator, h.archive, time.UTC, log).WithClock(clock.Now)
	return h
}

// register creates an activated user named name with testPassword.
func (h *harness) register(name string) models.User {
	h.t.Helper()
	res, err := h.auth.Register(h.ctx, RegisterInput{
		Email:     name + "@x",
		Password:  testPassword,
		FirstName: name,
		LastName:  "Tester",
		Username:  name,
	})
	if err != nil {
		h.t.Fatalf("register %s: %v", name, err)
	}
	if err := h.auth.Activate(h.ctx, res.User, res.ActivateToken); err != nil {
		h.t.Fatalf("activate %s: %v", name, err)
	}
	return h.user(res.User.ID)
}

func (h *harness) user(id string) models.User {
	h.t.Helper()
	u, err := h.store.Users().GetByID(h.ctx, id)
	if err != nil {
		h.t.Fatalf("load user %s: %v", id, err)
	}
	return u
}

func (h *harness) createGroup(owner models.User, name string, custom ...CustomRole) models.Membership {
	h.t.Helper()
	m, err := h.groups.CreateGroup(h.ctx, owner, CreateGroupInput{Name: name, CustomRoles: custom})
	if err != nil {
		h.t.Fatalf("create group %s: %v", name, err)
	}
	return m
}

// mailedToken extracts the token parameter from the last link mailed to
// email with template.
func (h *harness) mailedToken(template, email, param string) string {
	h.t.Helper()
	msgs := h.mailer.messages(template)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].To[0] != email {
			continue
		}
		u, err := url.Parse(msgs[i].Data["link"])
		if err != nil {
			h.t.Fatalf("parse link: %v", err)
		}
		return u.Query().Get(param)
	}
	h.t.Fatalf("no %s mail for %s", template, email)
	return ""
}

// join invites user into the group and accepts the invitation, optionally
// moving the member to role.
func (h *harness) join(owner models.User, groupID string, user models.User, role models.RoleName) {
	h.t.Helper()
	if _, err := h.groups.Invite(h.ctx, owner, groupID, []string{user.Email}); err != nil {
		h.t.Fatalf("invite %s: %v", user.Username, err)
	}
	raw := h.mailedToken(mail.TemplateInvite, user.Email, "invite_token")
	if _, err := h.groups.AcceptInvite(h.ctx, user, raw); err != nil {
		h.t.Fatalf("accept invite %s: %v", user.Username, err)
	}
	if role != "" && role != models.RoleUser {
		if _, err := h.groups.AssignRole(h.ctx, owner, groupID, user.ID, role); err != nil {
			h.t.Fatalf("assign %s to %s: %v", role, user.Username, err)
		}
	}
}

func (h *harness) tokenExists(raw string) bool {
	return h.mr.Exists("token:" + raw)
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, got, err)
	}
}
