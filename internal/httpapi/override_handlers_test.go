package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osutourney.org/internal/config"
	"osutourney.org/internal/perm"
)

func TestOverrideRoutesAbsentInProduction(t *testing.T) {
	h := newHarness(t, config.EnvProduction)

	rr := h.do(t, http.MethodPut, "/v1/dev/overrides/owner/2", "admin", `{"owner":true}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, h.overrides.owners)
}

func TestOverrideRoutesRequireAdminOrOwner(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPut, "/v1/dev/overrides/owner/2", "user", `{"owner":true}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = h.do(t, http.MethodPut, "/v1/dev/overrides/owner/2", "", `{"owner":true}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.do(t, http.MethodPut, "/v1/dev/overrides/owner/2", "owner", `{"owner":true}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, h.overrides.owners[2])
}

func TestSetStaffPermissionsOverride(t *testing.T) {
	h := newHarness(t, config.EnvStaging)

	rr := h.do(t, http.MethodPut, "/v1/dev/overrides/staff-permissions/3", "admin",
		`{"permissions":["view_regs","host","view_regs"]}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.ElementsMatch(t, []perm.Permission{perm.Host, perm.ViewRegs}, h.overrides.perms[3])

	rr = h.do(t, http.MethodPut, "/v1/dev/overrides/staff-permissions/3", "admin", `{"permissions":["root"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPersistAndDeleteOverride(t *testing.T) {
	h := newHarness(t, config.EnvDevelopment)

	rr := h.do(t, http.MethodPost, "/v1/dev/overrides/owner/9/persist", "admin", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "owner:9")

	rr = h.do(t, http.MethodPut, "/v1/dev/overrides/owner/9", "admin", `{"owner":false}`)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/dev/overrides/owner/9/persist", "admin", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodDelete, "/v1/dev/overrides/owner/9", "admin", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodDelete, "/v1/dev/overrides/owner/9", "admin", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodDelete, "/v1/dev/overrides/staff-permissions/0", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
