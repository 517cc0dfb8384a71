package organization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/apierror"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

func newTestServer(t *testing.T, p *auth.Principal) (*echo.Echo, *Service) {
	t.Helper()
	svc, _ := newTestService()
	e := echo.New()
	e.HTTPErrorHandler = apierror.Handler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p != nil {
				auth.SetPrincipal(c, p)
			}
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(api)
	return e, svc
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

var superAdmin = &auth.Principal{ID: "admin-1", Role: auth.RoleSuperAdmin, Verified: true, Active: true}

func clinicFor(orgID string) *auth.Principal {
	return &auth.Principal{ID: "clinic-1", Role: auth.RoleClinic, OrganizationID: &orgID, Verified: true, Active: true}
}

func TestHandler_CreateAndGet(t *testing.T) {
	e, _ := newTestServer(t, superAdmin)

	rec, env := do(e, http.MethodPost, "/api/v1/organizations", `{"name":"Northside","durationMonths":12}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	var o Organization
	require.NoError(t, json.Unmarshal(env.Data, &o))
	assert.Equal(t, "Northside", o.Name)

	rec, _ = do(e, http.MethodGet, "/api/v1/organizations/"+o.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(e, http.MethodGet, "/api/v1/organizations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestHandler_CreateValidation(t *testing.T) {
	e, _ := newTestServer(t, superAdmin)

	rec, env := do(e, http.MethodPost, "/api/v1/organizations", `{"durationMonths":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Code)
}

func TestHandler_ClinicCannotManageOrganizations(t *testing.T) {
	e, _ := newTestServer(t, clinicFor("org-1"))

	rec, _ := do(e, http.MethodPost, "/api/v1/organizations", `{"name":"x","durationMonths":12}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_ListPaginated(t *testing.T) {
	e, svc := newTestServer(t, superAdmin)
	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.Create(context.Background(), "admin-1", CreateInput{Name: name, DurationMonths: 12})
		require.NoError(t, err)
	}

	rec, _ := do(e, http.MethodGet, "/api/v1/organizations?page=2&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []Organization `json:"data"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"hasMore"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "C", body.Data[0].Name)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.False(t, body.Pagination.HasMore)
}

func TestHandler_RenewalFlow(t *testing.T) {
	svc, _ := newTestService()
	o, err := svc.Create(context.Background(), "admin-1", CreateInput{Name: "Northside", DurationMonths: 12})
	require.NoError(t, err)

	clinic := echo.New()
	clinic.HTTPErrorHandler = apierror.Handler(zerolog.Nop())
	admin := echo.New()
	admin.HTTPErrorHandler = apierror.Handler(zerolog.Nop())
	h := NewHandler(svc)
	for srv, p := range map[*echo.Echo]*auth.Principal{clinic: clinicFor(o.ID), admin: superAdmin} {
		p := p
		h.RegisterRoutes(srv.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				auth.SetPrincipal(c, p)
				return next(c)
			}
		}))
	}

	rec, env := do(clinic, http.MethodPost, "/api/v1/organization/renewal-requests", `{"requestedMonths":6,"note":"renew"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var req RenewalRequest
	require.NoError(t, json.Unmarshal(env.Data, &req))

	target := "/api/v1/organizations/" + o.ID + "/renewal-requests/" + req.ID + "/approve"
	rec, _ = do(admin, http.MethodPost, target, `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = do(admin, http.MethodPost, target, `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_DECIDED", env.Code)

	rec, _ = do(clinic, http.MethodGet, "/api/v1/organization/contract", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_OwnOrganizationRequiresLink(t *testing.T) {
	e, _ := newTestServer(t, &auth.Principal{ID: "clinic-2", Role: auth.RoleClinic, Verified: true, Active: true})

	rec, env := do(e, http.MethodGet, "/api/v1/organization", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NO_ORGANIZATION", env.Code)
}

func TestHandler_DoctorDeniedOwnOrganization(t *testing.T) {
	orgID := "org-1"
	e, _ := newTestServer(t, &auth.Principal{ID: "doc-1", Role: auth.RoleDoctor, OrganizationID: &orgID})

	rec, _ := do(e, http.MethodGet, "/api/v1/organization", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
