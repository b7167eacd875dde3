// Package session signs and verifies session claims and manages the
// server-side session rows backing them.
package session

import (
	"context"
	"time"
)

type OsuProfile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type DiscordProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type OsuRef struct {
	ID int64 `json:"id"`
}

type DiscordRef struct {
	ID string `json:"id"`
}

// RealUser identifies who is actually behind an impersonated session.
type RealUser struct {
	ID      int64      `json:"id"`
	Osu     OsuRef     `json:"osu"`
	Discord DiscordRef `json:"discord"`
}

// Claims is the payload carried by the session cookie.
type Claims struct {
	SessionID    string         `json:"sessionId"`
	UserID       int64          `json:"userId"`
	Admin        bool           `json:"admin"`
	ApprovedHost bool           `json:"approvedHost"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Osu          OsuProfile     `json:"osu"`
	Discord      DiscordProfile `json:"discord"`
	RealUser     *RealUser      `json:"realUser,omitempty"`
}

// Impersonating reports whether the claims were issued by Impersonate.
func (c *Claims) Impersonating() bool { return c != nil && c.RealUser != nil }

// Stale reports whether the cached profile data is older than maxAge.
func (c *Claims) Stale(now time.Time, maxAge time.Duration) bool {
	if c == nil || maxAge <= 0 {
		return false
	}
	return now.Sub(c.UpdatedAt) > maxAge
}

// realUserOf returns the identity to record as the real user when c starts
// impersonating. An existing back-reference is carried forward as is.
func realUserOf(c *Claims) *RealUser {
	if c.RealUser != nil {
		ru := *c.RealUser
		return &ru
	}
	return &RealUser{
		ID:      c.UserID,
		Osu:     OsuRef{ID: c.Osu.ID},
		Discord: DiscordRef{ID: c.Discord.ID},
	}
}

type claimsContextKey struct{}

// ContextWithClaims attaches verified claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims attached by ContextWithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
