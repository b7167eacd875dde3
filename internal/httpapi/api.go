// Package httpapi is the HTTP boundary: it reads the session cookie, calls
// into the session, staff and notification layers and maps their error kinds
// to status codes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"osutourney.org/internal/config"
	"osutourney.org/internal/notify"
	"osutourney.org/internal/obs"
	"osutourney.org/internal/perm"
	"osutourney.org/internal/session"
	"osutourney.org/internal/staff"
)

// Pinger backs /readyz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Authorizer is the part of staff.Authorizer the boundary needs.
type Authorizer interface {
	GetSession(token string, mustBeSignedIn bool) (*session.Claims, error)
	IsOwner(ctx context.Context, claims *session.Claims) bool
}

type Sessions interface {
	CheckActive(ctx context.Context, claims *session.Claims) error
	Reissue(ctx context.Context, claims *session.Claims) (*session.Claims, string, error)
	Logout(ctx context.Context, claims *session.Claims) error
	Impersonate(ctx context.Context, acting *session.Claims, targetUserID int64, meta session.Meta) (*session.Claims, string, error)
}

type Inbox interface {
	List(ctx context.Context, userID int64, limit, offset int) ([]notify.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, notificationID int64, read bool) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, userID, notificationID int64) error
}

type Staff interface {
	ListRoles(ctx context.Context, claims *session.Claims, tournament string) ([]staff.Role, error)
	CreateRole(ctx context.Context, claims *session.Claims, tournament, name string, color staff.Color) (staff.Role, error)
	UpdateRole(ctx context.Context, claims *session.Claims, tournament string, roleID int64, upd staff.RoleUpdate) (staff.Role, error)
	DeleteRole(ctx context.Context, claims *session.Claims, tournament string, roleID int64) error
	SwapRoleOrder(ctx context.Context, claims *session.Claims, tournament string, roleA, roleB int64) error
	AddStaffMember(ctx context.Context, claims *session.Claims, tournament string, userID int64, roleIDs []int64) (staff.Member, error)
	SetMemberRoles(ctx context.Context, claims *session.Claims, tournament string, memberID int64, roleIDs []int64) error
	RemoveStaffMember(ctx context.Context, claims *session.Claims, tournament string, memberID int64) error
}

// Overrides is the writable side of the non-production override store.
type Overrides interface {
	SetOwner(ctx context.Context, userID int64, owner bool) error
	SetStaffPermissions(ctx context.Context, staffMemberID int64, perms []perm.Permission) error
	Persist(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	// MaxAge is how old cached profile data in the claims may get before
	// GET /v1/session reissues them. Zero disables the refresh.
	MaxAge time.Duration
}

type RateLimitConfig struct {
	Burst     int
	PerSecond int
}

// Deps is everything the router needs. Overrides is ignored in production.
type Deps struct {
	Env        config.Env
	Version    string
	DB         Pinger
	Authorizer Authorizer
	Sessions   Sessions
	Inbox      Inbox
	Staff      Staff
	Overrides  Overrides
	Cookie     CookieConfig
	RateLimit  RateLimitConfig
}

// API is the HTTP layer.
type API struct {
	deps Deps
	now  func() time.Time
}

func New(deps Deps) *API {
	if deps.Cookie.Name == "" {
		deps.Cookie.Name = "session"
	}
	if deps.Env.IsProduction() {
		deps.Overrides = nil
	}
	return &API{deps: deps, now: time.Now}
}

const maxBodyBytes = 1 << 20

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Logging, SecurityHeaders, CORS, obs.Instrument)
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, maxBodyBytes) })
	if a.deps.RateLimit.Burst > 0 && a.deps.RateLimit.PerSecond > 0 {
		burst, perSecond := a.deps.RateLimit.Burst, a.deps.RateLimit.PerSecond
		r.Use(func(next http.Handler) http.Handler { return RateLimit(next, burst, perSecond) })
	}

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.withSession)
		r.Get("/info", a.info)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", a.getSession)
			r.Post("/logout", a.logout)
			r.Post("/impersonate", a.impersonate)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/", a.listNotifications)
			r.Get("/unread", a.unreadCount)
			r.Post("/read-all", a.markAllRead)
			r.Patch("/{notificationID}", a.markRead)
			r.Delete("/{notificationID}", a.deleteNotification)
		})

		r.Route("/tournaments/{tournament}/staff", func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/roles", a.listRoles)
			r.Post("/roles", a.createRole)
			r.Post("/roles/swap", a.swapRoles)
			r.Patch("/roles/{roleID}", a.updateRole)
			r.Delete("/roles/{roleID}", a.deleteRole)
			r.Post("/members", a.addMember)
			r.Put("/members/{memberID}/roles", a.setMemberRoles)
			r.Delete("/members/{memberID}", a.removeMember)
		})

		if a.deps.Overrides != nil {
			r.Route("/dev/overrides", func(r chi.Router) {
				r.Use(requireSession, a.requireDevAccess)
				r.Put("/owner/{userID}", a.setOwnerOverride)
				r.Post("/owner/{userID}/persist", a.persistOwnerOverride)
				r.Delete("/owner/{userID}", a.deleteOwnerOverride)
				r.Put("/staff-permissions/{memberID}", a.setStaffPermissionsOverride)
				r.Post("/staff-permissions/{memberID}/persist", a.persistStaffPermissionsOverride)
				r.Delete("/staff-permissions/{memberID}", a.deleteStaffPermissionsOverride)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, r, http.StatusNotFound, "not_found", "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, r, http.StatusMethodNotAllowed, "bad_request", "Method not allowed")
	})
	return r
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "osutourney-api",
		"version": a.deps.Version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if a.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.deps.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "osutourney-api",
		"env":     string(a.deps.Env),
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}
