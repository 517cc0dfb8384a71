package auditlog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/apierror"
)

func serve(t *testing.T, p *auth.Principal) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = apierror.Handler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth.SetPrincipal(c, p)
			return next(c)
		}
	})
	NewHandler(NewService(seeded(t))).RegisterRoutes(api)
	return e
}

func get(e *echo.Echo, target string) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHandler_List(t *testing.T) {
	e := serve(t, principal(auth.RoleSuperAdmin, nil))
	rec, body := get(e, "/api/v1/audit-logs?limit=2&sortBy=action&sortOrder=asc")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "DOCTOR_LIST", data[0].(map[string]any)["action"])
	pg := body["pagination"].(map[string]any)
	assert.Equal(t, float64(4), pg["total"])
	assert.Equal(t, true, pg["hasMore"])
}

func TestHandler_BadDate(t *testing.T) {
	e := serve(t, principal(auth.RoleSuperAdmin, nil))
	rec, body := get(e, "/api/v1/audit-logs?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUERY", body["code"])
}

func TestHandler_GetAndStats(t *testing.T) {
	e := serve(t, principal(auth.RoleClinic, ptr("org-a")))
	rec, _ := get(e, "/api/v1/audit-logs/1")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = get(e, "/api/v1/audit-logs/4")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := get(e, "/api/v1/audit-logs/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["data"].(map[string]any)["total"])
}

func TestHandler_RequiresAuditPermission(t *testing.T) {
	e := serve(t, principal("Receptionist", ptr("org-a")))
	rec, body := get(e, "/api/v1/audit-logs")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INSUFFICIENT_RIGHTS", body["code"])
}
