package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"osutourney.org/internal/perm"
	"osutourney.org/internal/staff"
)

func tournamentParam(r *http.Request) string {
	return chi.URLParam(r, "tournament")
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.deps.Staff.ListRoles(r.Context(), claimsOf(r), tournamentParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []staff.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type createRoleRequest struct {
	Name  string      `json:"name"`
	Color staff.Color `json:"color"`
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := a.deps.Staff.CreateRole(r.Context(), claimsOf(r), tournamentParam(r), req.Name, req.Color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// updateRoleRequest uses pointers so absent fields stay untouched.
// Permission tokens are validated while decoding.
type updateRoleRequest struct {
	Name        *string            `json:"name"`
	Color       *staff.Color       `json:"color"`
	Permissions *[]perm.Permission `json:"permissions"`
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := staff.RoleUpdate{Name: req.Name, Color: req.Color, Permissions: req.Permissions}
	role, err := a.deps.Staff.UpdateRole(r.Context(), claimsOf(r), tournamentParam(r), roleID, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Staff.DeleteRole(r.Context(), claimsOf(r), tournamentParam(r), roleID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type swapRolesRequest struct {
	RoleA int64 `json:"roleA"`
	RoleB int64 `json:"roleB"`
}

func (a *API) swapRoles(w http.ResponseWriter, r *http.Request) {
	var req swapRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Staff.SwapRoleOrder(r.Context(), claimsOf(r), tournamentParam(r), req.RoleA, req.RoleB); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMemberRequest struct {
	UserID  int64   `json:"userId"`
	RoleIDs []int64 `json:"roleIds"`
}

func (a *API) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	member, err := a.deps.Staff.AddStaffMember(r.Context(), claimsOf(r), tournamentParam(r), req.UserID, req.RoleIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

type setMemberRolesRequest struct {
	RoleIDs []int64 `json:"roleIds"`
}

func (a *API) setMemberRoles(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setMemberRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Staff.SetMemberRoles(r.Context(), claimsOf(r), tournamentParam(r), memberID, req.RoleIDs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Staff.RemoveStaffMember(r.Context(), claimsOf(r), tournamentParam(r), memberID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
