package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/audit"
	"osutourney.org/internal/config"
	"osutourney.org/internal/ids"
	"osutourney.org/internal/obs"
)

// ErrNotFound is returned by Store lookups for missing users and sessions.
var ErrNotFound = errors.New("not found")

type User struct {
	ID           int64
	Admin        bool
	ApprovedHost bool
	UpdatedAt    time.Time
	Osu          OsuProfile
	Discord      DiscordProfile
}

// Session is a server-side session row. Expired rows revoke their token.
type Session struct {
	ID           string
	UserID       int64
	Expired      bool
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Meta describes the client a session is created for.
type Meta struct {
	IPAddress string
	UserAgent string
}

// Store is the persistence surface the Manager needs.
type Store interface {
	User(ctx context.Context, userID int64) (User, error)
	HasActiveBan(ctx context.Context, userID int64, now time.Time) (bool, error)
	Session(ctx context.Context, id string) (Session, error)
	CreateSession(ctx context.Context, s Session) error
	// ReplaceSession expires expireID and inserts next in one transaction.
	ReplaceSession(ctx context.Context, expireID string, next Session) error
	ExpireSession(ctx context.Context, id string) error
}

// Manager turns users into signed claims and keeps session rows in step.
type Manager struct {
	store  Store
	signer *Signer[Claims]
	env    config.Env
	now    func() time.Time
}

func NewManager(store Store, signer *Signer[Claims], env config.Env) *Manager {
	return &Manager{store: store, signer: signer, env: env, now: time.Now}
}

// Verify decodes a session token. It does not consult the session row; see
// CheckActive.
func (m *Manager) Verify(token string) (*Claims, bool) {
	claims, ok := m.signer.Verify(token)
	if !ok {
		return nil, false
	}
	return &claims, true
}

// Issue creates a session row for userID and returns signed claims for it.
// It is called once the identity provider has authenticated the user.
func (m *Manager) Issue(ctx context.Context, userID int64, meta Meta) (*Claims, string, error) {
	user, err := m.store.User(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, "", apperr.NotFound("User with ID %d doesn't exist", userID)
	}
	if err != nil {
		return nil, "", apperr.Unexpected(ctx, "getting the user", err)
	}
	row := m.newSession(userID, meta)
	if err := m.store.CreateSession(ctx, row); err != nil {
		return nil, "", apperr.Unexpected(ctx, "creating the session", err)
	}
	return m.sign(ctx, claimsFor(user, row.ID, nil))
}

// Reissue reloads the user behind claims and signs fresh claims for the same
// session, keeping any impersonation back-reference.
func (m *Manager) Reissue(ctx context.Context, claims *Claims) (*Claims, string, error) {
	if claims == nil {
		return nil, "", apperr.Unauthorized("You must be logged in")
	}
	user, err := m.store.User(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, "", apperr.NotFound("User with ID %d doesn't exist", claims.UserID)
	}
	if err != nil {
		return nil, "", apperr.Unexpected(ctx, "getting the user", err)
	}
	var realUser *RealUser
	if claims.RealUser != nil {
		ru := *claims.RealUser
		realUser = &ru
	}
	return m.sign(ctx, claimsFor(user, claims.SessionID, realUser))
}

// Impersonate swaps the acting session for one belonging to targetUserID.
// Outside development it always fails with forbidden, before any lookup.
func (m *Manager) Impersonate(ctx context.Context, acting *Claims, targetUserID int64, meta Meta) (*Claims, string, error) {
	if !m.env.IsDevelopment() {
		return nil, "", apperr.Forbidden("Impersonation is only available in development environments")
	}
	if acting == nil {
		return nil, "", apperr.Unauthorized("You must be logged in to impersonate a user")
	}

	target, err := m.store.User(ctx, targetUserID)
	if errors.Is(err, ErrNotFound) {
		return nil, "", apperr.NotFound("User with ID %d doesn't exist", targetUserID)
	}
	if err != nil {
		return nil, "", apperr.Unexpected(ctx, "getting the user to impersonate", err)
	}

	banned, err := m.store.HasActiveBan(ctx, targetUserID, m.now())
	if err != nil {
		return nil, "", apperr.Unexpected(ctx, "checking the user's bans", err)
	}
	if banned {
		return nil, "", apperr.Forbidden("User with ID %d is banned and can't be impersonated", targetUserID)
	}

	row := m.newSession(targetUserID, meta)
	if err := m.store.ReplaceSession(ctx, acting.SessionID, row); err != nil {
		return nil, "", apperr.Unexpected(ctx, "replacing the session", err)
	}

	realUser := realUserOf(acting)
	_ = audit.LogEvent(ctx, audit.SessionImpersonate,
		zap.Int64("real_user_id", realUser.ID),
		zap.Int64("acting_user_id", acting.UserID),
		zap.Int64("target_user_id", targetUserID),
		zap.String("expired_session_id", acting.SessionID),
		zap.String("session_id", row.ID),
	)
	return m.sign(ctx, claimsFor(target, row.ID, realUser))
}

// Logout expires the session behind claims.
func (m *Manager) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil {
		return apperr.Unauthorized("You must be logged in")
	}
	err := m.store.ExpireSession(ctx, claims.SessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return apperr.Unexpected(ctx, "expiring the session", err)
	}
	_ = audit.LogEvent(ctx, audit.SessionLogout, zap.String("session_id", claims.SessionID))
	return nil
}

// CheckActive rejects claims whose session row is gone, expired or owned by
// someone else.
func (m *Manager) CheckActive(ctx context.Context, claims *Claims) error {
	if claims == nil {
		return apperr.Unauthorized("You must be logged in")
	}
	if !ids.ValidSessionID(claims.SessionID) {
		return apperr.Unauthorized("Your session has expired, please log in again")
	}
	row, err := m.store.Session(ctx, claims.SessionID)
	if errors.Is(err, ErrNotFound) {
		return apperr.Unauthorized("Your session has expired, please log in again")
	}
	if err != nil {
		return apperr.Unexpected(ctx, "getting the session", err)
	}
	if row.Expired || row.UserID != claims.UserID {
		obs.From(ctx).Debug("rejected inactive session",
			zap.String("session_id", row.ID), zap.Bool("expired", row.Expired))
		return apperr.Unauthorized("Your session has expired, please log in again")
	}
	return nil
}

func (m *Manager) newSession(userID int64, meta Meta) Session {
	now := m.now().UTC()
	return Session{
		ID:           ids.NewSessionID(),
		UserID:       userID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (m *Manager) sign(ctx context.Context, claims Claims) (*Claims, string, error) {
	token, err := m.signer.Sign(claims)
	if err != nil {
		return nil, "", apperr.Unexpected(ctx, "signing the session", err)
	}
	return &claims, token, nil
}

func claimsFor(user User, sessionID string, realUser *RealUser) Claims {
	return Claims{
		SessionID:    sessionID,
		UserID:       user.ID,
		Admin:        user.Admin,
		ApprovedHost: user.ApprovedHost,
		UpdatedAt:    user.UpdatedAt,
		Osu:          user.Osu,
		Discord:      user.Discord,
		RealUser:     realUser,
	}
}
