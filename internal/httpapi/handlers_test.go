package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/config"
	"osutourney.org/internal/perm"
	"osutourney.org/internal/staff"
)

func decodeErr(t *testing.T, body []byte) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = h.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	api := New(Deps{Env: config.EnvDevelopment, DB: fakePinger{err: errPing}, Authorizer: h.auth, Sessions: h.sessions})
	rr = httpGet(t, api.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestGetSessionAnonymous(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/v1/session", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"session":null}`, rr.Body.String())

	// an unknown token is treated exactly like no token
	rr = h.do(t, http.MethodGet, "/v1/session", "garbage", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"session":null}`, rr.Body.String())
	assert.Equal(t, -1, cookieNamed(t, rr, "session").MaxAge)
}

func TestGetSessionSignedIn(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/v1/session", "user", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Session struct {
			SessionID string `json:"sessionId"`
			UserID    int64  `json:"userId"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "s-user", resp.Session.SessionID)
	assert.Equal(t, int64(2), resp.Session.UserID)
	assert.Zero(t, h.sessions.reissued)
}

func TestGetSessionReissuesStaleClaims(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/v1/session", "stale", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, h.sessions.reissued)
	assert.Equal(t, "reissued-token", cookieNamed(t, rr, "session").Value)
}

func TestRevokedSessionIsAnonymous(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)
	h.sessions.inactive["s-user"] = true

	rr := h.do(t, http.MethodGet, "/v1/notifications", "user", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(apperr.KindUnauthorized), decodeErr(t, rr.Body.Bytes()).Error.Kind)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPost, "/v1/session/logout", "user", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"s-user"}, h.sessions.loggedOut)
	assert.Equal(t, -1, cookieNamed(t, rr, "session").MaxAge)

	rr = h.do(t, http.MethodPost, "/v1/session/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestImpersonate(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPost, "/v1/session/impersonate", "admin", `{"userId":42}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(42), h.sessions.impersonated)
	assert.Equal(t, "192.0.2.10", h.sessions.meta.IPAddress)
	assert.Equal(t, "impersonated-token", cookieNamed(t, rr, "session").Value)
	assert.Contains(t, rr.Body.String(), `"realUser":{"id":1`)
}

func TestImpersonateErrorKeepsCookie(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)
	h.sessions.impErr = apperr.Forbidden("Impersonation is only available in development environments")

	rr := h.do(t, http.MethodPost, "/v1/session/impersonate", "admin", `{"userId":42}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
	resp := decodeErr(t, rr.Body.Bytes())
	assert.Equal(t, "forbidden", resp.Error.Kind)
	assert.NotEmpty(t, resp.RequestID)
}

func TestImpersonateRejectsUnknownFields(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPost, "/v1/session/impersonate", "admin", `{"user":42}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, h.sessions.impersonated)
}

func TestNotificationsRequireSession(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/v1/notifications", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	resp := decodeErr(t, rr.Body.Bytes())
	assert.Equal(t, "unauthorized", resp.Error.Kind)
	assert.Equal(t, "You must be logged in to perform this action", resp.Error.Message)
}

func TestListNotifications(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/v1/notifications?limit=10&offset=20", "user", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"notifications":[],"unread":0}`, rr.Body.String())
	assert.Equal(t, 10, h.inbox.limit)
	assert.Equal(t, 20, h.inbox.offset)

	rr = h.do(t, http.MethodGet, "/v1/notifications?limit=-1", "user", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMarkNotificationRead(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPatch, "/v1/notifications/5", "user", `{"read":true}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, h.inbox.marked[5])

	rr = h.do(t, http.MethodPatch, "/v1/notifications/404", "user", `{"read":true}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodPatch, "/v1/notifications/abc", "user", `{"read":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/notifications/read-all", "user", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"updated":3}`, rr.Body.String())
}

func TestStaffRoutesPassTournamentThrough(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/v1/tournaments/owc-2025/staff/roles", "user", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "owc-2025", h.staff.tournament)

	rr = h.do(t, http.MethodPost, "/v1/tournaments/12/staff/roles", "user", `{"name":"Mappooler","color":"blue"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "12", h.staff.tournament)
	assert.Contains(t, rr.Body.String(), `"name":"Mappooler"`)

	rr = h.do(t, http.MethodPost, "/v1/tournaments/12/staff/roles/swap", "user", `{"roleA":11,"roleB":12}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/tournaments/12/staff/members", "user", `{"userId":5,"roleIds":[12]}`)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = h.do(t, http.MethodPut, "/v1/tournaments/12/staff/members/7/roles", "user", `{"roleIds":[12,13]}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodDelete, "/v1/tournaments/12/staff/members/7", "user", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodDelete, "/v1/tournaments/12/staff/roles/11", "user", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, []string{
		"ListRoles", "CreateRole", "SwapRoleOrder", "AddStaffMember",
		"SetMemberRoles", "RemoveStaffMember", "DeleteRole",
	}, h.staff.calls)
}

func TestStaffErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.Unauthorized("You do not have the required permissions"), http.StatusUnauthorized},
		{apperr.Forbidden("The host role's permissions can't be changed"), http.StatusForbidden},
		{apperr.NotFound("Tournament with ID 12 doesn't exist"), http.StatusNotFound},
		{apperr.BadRequest("Invalid color"), http.StatusBadRequest},
		{&apperr.Error{Kind: apperr.KindUnexpected, Message: "An unexpected error occurred while getting the staff member", Err: errPing}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newHarness(t, config.EnvDevelopment)
		h.staff.err = tc.err

		rr := h.do(t, http.MethodGet, "/v1/tournaments/12/staff/roles", "user", "")
		require.Equal(t, tc.code, rr.Code)
		kind, msg := apperr.Public(tc.err)
		resp := decodeErr(t, rr.Body.Bytes())
		assert.Equal(t, string(kind), resp.Error.Kind)
		assert.Equal(t, msg, resp.Error.Message)
		assert.NotContains(t, rr.Body.String(), "connection refused")
	}
}

func TestUpdateRoleDecodesPartialUpdate(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPatch, "/v1/tournaments/12/staff/roles/11", "user",
		`{"permissions":["view_regs","ref_matches"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	upd := h.staff.roleUpdate
	assert.Nil(t, upd.Name)
	assert.Nil(t, upd.Color)
	require.NotNil(t, upd.Permissions)
	assert.Equal(t, []perm.Permission{perm.ViewRegs, perm.RefMatches}, *upd.Permissions)

	color := staff.ColorRed
	rr = h.do(t, http.MethodPatch, "/v1/tournaments/12/staff/roles/11", "user", `{"color":"red"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, &color, h.staff.roleUpdate.Color)
}

func TestUpdateRoleRejectsUnknownPermission(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPatch, "/v1/tournaments/12/staff/roles/11", "user", `{"permissions":["superuser"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, h.staff.calls)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodGet, "/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeErr(t, rr.Body.Bytes()).Error.Kind)
}
