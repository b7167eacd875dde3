package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/obs"
	"osutourney.org/internal/session"
)

// withSession resolves the session cookie into claims. A missing, invalid or
// revoked session leaves the request anonymous; routes that need a user use
// requireSession.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(a.deps.Cookie.Name)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.deps.Authorizer.GetSession(cookie.Value, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if claims == nil {
			a.clearCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		if err := a.deps.Sessions.CheckActive(r.Context(), claims); err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				a.clearCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, err)
			return
		}

		ctx := session.ContextWithClaims(r.Context(), claims)
		l := obs.From(ctx).With(obs.UserID(claims.UserID))
		if claims.Impersonating() {
			l = l.With(zap.Int64("real_user_id", claims.RealUser.ID))
		}
		ctx = obs.WithLogger(ctx, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.ClaimsFromContext(r.Context()); !ok {
			writeError(w, r, apperr.Unauthorized("You must be logged in to perform this action"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsOf(r *http.Request) *session.Claims {
	claims, _ := session.ClaimsFromContext(r.Context())
	return claims
}

func (a *API) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.deps.Cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.deps.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.deps.Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.deps.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionResponse struct {
	Session *session.Claims `json:"session"`
}

// getSession returns the caller's claims, or null when signed out. Claims
// whose cached profile is older than the configured age are reissued.
func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsOf(r)
	if claims != nil && claims.Stale(a.now(), a.deps.Cookie.MaxAge) {
		fresh, token, err := a.deps.Sessions.Reissue(r.Context(), claims)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a.setCookie(w, token)
		claims = fresh
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: claims})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Sessions.Logout(r.Context(), claimsOf(r)); err != nil {
		writeError(w, r, err)
		return
	}
	a.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type impersonateRequest struct {
	UserID int64 `json:"userId"`
}

func (a *API) impersonate(w http.ResponseWriter, r *http.Request) {
	var req impersonateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	meta := session.Meta{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
	claims, token, err := a.deps.Sessions.Impersonate(r.Context(), claimsOf(r), req.UserID, meta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.setCookie(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{Session: claims})
}
