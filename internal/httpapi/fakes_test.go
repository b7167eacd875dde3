package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/config"
	"osutourney.org/internal/notify"
	"osutourney.org/internal/override"
	"osutourney.org/internal/perm"
	"osutourney.org/internal/session"
	"osutourney.org/internal/staff"
)

type fakeAuthorizer struct {
	tokens map[string]*session.Claims
	owners map[int64]bool
}

func (f *fakeAuthorizer) GetSession(token string, must bool) (*session.Claims, error) {
	c, ok := f.tokens[token]
	if !ok {
		if must {
			return nil, apperr.Unauthorized("You must be logged in to perform this action")
		}
		return nil, nil
	}
	return c, nil
}

func (f *fakeAuthorizer) IsOwner(_ context.Context, c *session.Claims) bool {
	return c != nil && f.owners[c.UserID]
}

type fakeSessions struct {
	inactive  map[string]bool
	reissued  int
	loggedOut []string

	impersonated int64
	meta         session.Meta
	impErr       error
}

func (f *fakeSessions) CheckActive(_ context.Context, c *session.Claims) error {
	if f.inactive[c.SessionID] {
		return apperr.Unauthorized("Your session has expired, please log in again")
	}
	return nil
}

func (f *fakeSessions) Reissue(_ context.Context, c *session.Claims) (*session.Claims, string, error) {
	f.reissued++
	fresh := *c
	fresh.UpdatedAt = time.Now()
	return &fresh, "reissued-token", nil
}

func (f *fakeSessions) Logout(_ context.Context, c *session.Claims) error {
	if c == nil {
		return apperr.Unauthorized("You must be logged in")
	}
	f.loggedOut = append(f.loggedOut, c.SessionID)
	return nil
}

func (f *fakeSessions) Impersonate(_ context.Context, acting *session.Claims, target int64, meta session.Meta) (*session.Claims, string, error) {
	if f.impErr != nil {
		return nil, "", f.impErr
	}
	f.impersonated = target
	f.meta = meta
	return &session.Claims{
		SessionID: "01J0IMPERSONATED",
		UserID:    target,
		RealUser:  &session.RealUser{ID: acting.UserID},
	}, "impersonated-token", nil
}

type fakeInbox struct {
	items  []notify.Notification
	limit  int
	offset int
	marked map[int64]bool
}

func (f *fakeInbox) List(_ context.Context, _ int64, limit, offset int) ([]notify.Notification, error) {
	f.limit, f.offset = limit, offset
	return f.items, nil
}

func (f *fakeInbox) UnreadCount(context.Context, int64) (int, error) {
	n := 0
	for _, it := range f.items {
		if !it.Read {
			n++
		}
	}
	return n, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, _ int64, id int64, read bool) error {
	if id == 404 {
		return apperr.NotFound("Notification with ID %d doesn't exist", id)
	}
	if f.marked == nil {
		f.marked = map[int64]bool{}
	}
	f.marked[id] = read
	return nil
}

func (f *fakeInbox) MarkAllRead(context.Context, int64) (int64, error) { return 3, nil }

func (f *fakeInbox) Delete(context.Context, int64, int64) error { return nil }

type fakeStaff struct {
	calls      []string
	tournament string
	roleUpdate staff.RoleUpdate
	err        error
}

func (f *fakeStaff) record(name, tournament string) error {
	f.calls = append(f.calls, name)
	f.tournament = tournament
	return f.err
}

func (f *fakeStaff) ListRoles(_ context.Context, _ *session.Claims, t string) ([]staff.Role, error) {
	if err := f.record("ListRoles", t); err != nil {
		return nil, err
	}
	return []staff.Role{{ID: 10, Name: "Host", Permissions: []perm.Permission{perm.Host}}}, nil
}

func (f *fakeStaff) CreateRole(_ context.Context, _ *session.Claims, t, name string, color staff.Color) (staff.Role, error) {
	if err := f.record("CreateRole", t); err != nil {
		return staff.Role{}, err
	}
	return staff.Role{ID: 99, Name: name, Color: color}, nil
}

func (f *fakeStaff) UpdateRole(_ context.Context, _ *session.Claims, t string, roleID int64, upd staff.RoleUpdate) (staff.Role, error) {
	f.roleUpdate = upd
	if err := f.record("UpdateRole", t); err != nil {
		return staff.Role{}, err
	}
	return staff.Role{ID: roleID}, nil
}

func (f *fakeStaff) DeleteRole(_ context.Context, _ *session.Claims, t string, _ int64) error {
	return f.record("DeleteRole", t)
}

func (f *fakeStaff) SwapRoleOrder(_ context.Context, _ *session.Claims, t string, _, _ int64) error {
	return f.record("SwapRoleOrder", t)
}

func (f *fakeStaff) AddStaffMember(_ context.Context, _ *session.Claims, t string, userID int64, _ []int64) (staff.Member, error) {
	if err := f.record("AddStaffMember", t); err != nil {
		return staff.Member{}, err
	}
	return staff.Member{ID: 7, UserID: userID}, nil
}

func (f *fakeStaff) SetMemberRoles(_ context.Context, _ *session.Claims, t string, _ int64, _ []int64) error {
	return f.record("SetMemberRoles", t)
}

func (f *fakeStaff) RemoveStaffMember(_ context.Context, _ *session.Claims, t string, _ int64) error {
	return f.record("RemoveStaffMember", t)
}

type fakeOverrides struct {
	owners map[int64]bool
	perms  map[int64][]perm.Permission
	keys   map[string]bool
}

func newFakeOverrides() *fakeOverrides {
	return &fakeOverrides{owners: map[int64]bool{}, perms: map[int64][]perm.Permission{}, keys: map[string]bool{}}
}

func (f *fakeOverrides) SetOwner(_ context.Context, id int64, owner bool) error {
	f.owners[id] = owner
	f.keys[override.OwnerKey(id)] = true
	return nil
}

func (f *fakeOverrides) SetStaffPermissions(_ context.Context, id int64, perms []perm.Permission) error {
	f.perms[id] = perms
	f.keys[override.StaffPermissionsKey(id)] = true
	return nil
}

func (f *fakeOverrides) Persist(_ context.Context, key string) error {
	if !f.keys[key] {
		return override.ErrNotFound
	}
	return nil
}

func (f *fakeOverrides) Delete(_ context.Context, key string) error {
	if !f.keys[key] {
		return override.ErrNotFound
	}
	delete(f.keys, key)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

var errPing = errors.New("connection refused")

type harness struct {
	auth      *fakeAuthorizer
	sessions  *fakeSessions
	inbox     *fakeInbox
	staff     *fakeStaff
	overrides *fakeOverrides
	handler   http.Handler
}

// newHarness builds the router around fakes. Token "admin" belongs to an
// admin, "user" to a plain user and "owner" to the platform owner.
func newHarness(t *testing.T, env config.Env) *harness {
	t.Helper()
	h := &harness{
		auth: &fakeAuthorizer{
			tokens: map[string]*session.Claims{
				"admin": {SessionID: "s-admin", UserID: 1, Admin: true, UpdatedAt: time.Now()},
				"user":  {SessionID: "s-user", UserID: 2, UpdatedAt: time.Now()},
				"owner": {SessionID: "s-owner", UserID: 3, UpdatedAt: time.Now()},
				"stale": {SessionID: "s-stale", UserID: 4, UpdatedAt: time.Now().Add(-48 * time.Hour)},
			},
			owners: map[int64]bool{3: true},
		},
		sessions:  &fakeSessions{inactive: map[string]bool{}},
		inbox:     &fakeInbox{},
		staff:     &fakeStaff{},
		overrides: newFakeOverrides(),
	}
	api := New(Deps{
		Env:        env,
		Version:    "test",
		DB:         fakePinger{},
		Authorizer: h.auth,
		Sessions:   h.sessions,
		Inbox:      h.inbox,
		Staff:      h.staff,
		Overrides:  h.overrides,
		Cookie:     CookieConfig{Name: "session", MaxAge: 24 * time.Hour},
	})
	h.handler = api.Handler()
	return h
}

func (h *harness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.10:5555"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func cookieNamed(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	require.Failf(t, "cookie not set", "no %q cookie in response", name)
	return nil
}
