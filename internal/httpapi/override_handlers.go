package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/audit"
	"osutourney.org/internal/override"
	"osutourney.org/internal/perm"
)

// requireDevAccess limits the override routes to admins and the owner.
func (a *API) requireDevAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsOf(r)
		if !claims.Admin && !a.deps.Authorizer.IsOwner(r.Context(), claims) {
			writeError(w, r, apperr.Forbidden("Only admins can manage overrides"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ownerOverrideRequest struct {
	Owner bool `json:"owner"`
}

func (a *API) setOwnerOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ownerOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Overrides.SetOwner(r.Context(), userID, req.Owner); err != nil {
		writeError(w, r, apperr.Unexpected(r.Context(), "setting the owner override", err))
		return
	}
	_ = audit.LogEvent(r.Context(), audit.OverrideSet,
		zap.String("key", override.OwnerKey(userID)), zap.Bool("owner", req.Owner))
	w.WriteHeader(http.StatusNoContent)
}

type staffPermissionsOverrideRequest struct {
	Permissions []perm.Permission `json:"permissions"`
}

func (a *API) setStaffPermissionsOverride(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req staffPermissionsOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	perms := perm.NewSet(req.Permissions...).Sorted()
	if err := a.deps.Overrides.SetStaffPermissions(r.Context(), memberID, perms); err != nil {
		writeError(w, r, apperr.Unexpected(r.Context(), "setting the staff permissions override", err))
		return
	}
	_ = audit.LogEvent(r.Context(), audit.OverrideSet,
		zap.String("key", override.StaffPermissionsKey(memberID)),
		zap.Strings("permissions", perm.Strings(perms)))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) persistOwnerOverride(w http.ResponseWriter, r *http.Request) {
	a.withOverrideKey(w, r, "userID", override.OwnerKey, a.persistOverride)
}

func (a *API) deleteOwnerOverride(w http.ResponseWriter, r *http.Request) {
	a.withOverrideKey(w, r, "userID", override.OwnerKey, a.deleteOverride)
}

func (a *API) persistStaffPermissionsOverride(w http.ResponseWriter, r *http.Request) {
	a.withOverrideKey(w, r, "memberID", override.StaffPermissionsKey, a.persistOverride)
}

func (a *API) deleteStaffPermissionsOverride(w http.ResponseWriter, r *http.Request) {
	a.withOverrideKey(w, r, "memberID", override.StaffPermissionsKey, a.deleteOverride)
}

func (a *API) withOverrideKey(w http.ResponseWriter, r *http.Request, param string, keyOf func(int64) string, fn func(http.ResponseWriter, *http.Request, string)) {
	id, err := pathID(r, param)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fn(w, r, keyOf(id))
}

func (a *API) persistOverride(w http.ResponseWriter, r *http.Request, key string) {
	if err := a.deps.Overrides.Persist(r.Context(), key); err != nil {
		writeError(w, r, overrideError(r, "persisting the override", key, err))
		return
	}
	_ = audit.LogEvent(r.Context(), audit.OverridePersisted, zap.String("key", key))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteOverride(w http.ResponseWriter, r *http.Request, key string) {
	if err := a.deps.Overrides.Delete(r.Context(), key); err != nil {
		writeError(w, r, overrideError(r, "deleting the override", key, err))
		return
	}
	_ = audit.LogEvent(r.Context(), audit.OverrideDeleted, zap.String("key", key))
	w.WriteHeader(http.StatusNoContent)
}

func overrideError(r *http.Request, op, key string, err error) error {
	if errors.Is(err, override.ErrNotFound) {
		return apperr.NotFound("No override stored under %s", key)
	}
	return apperr.Unexpected(r.Context(), op, err)
}
