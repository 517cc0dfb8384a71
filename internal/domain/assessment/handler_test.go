package assessment

import (
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

func serve(f *fixture, p *auth.Principal) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apierror.Handler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth.SetPrincipal(c, p)
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api, nil)
	return e
}

func call(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestHandler_CreateAndTransition(t *testing.T) {
	f := newFixture()
	p := f.patient(t, "org-a", "Ada")
	e := serve(f, clinic("org-a"))

	rec, env := call(e, http.MethodPost, "/api/v1/assessment-requests", `{"patientId":"`+p.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r Request
	require.NoError(t, json.Unmarshal(env.Data, &r))

	rec, env = call(e, http.MethodPatch, "/api/v1/assessment-requests/"+r.ID+"/status", `{"status":"Completed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", env.Code)

	rec, _ = call(e, http.MethodPatch, "/api/v1/assessment-requests/"+r.ID+"/status", `{"status":"Cancelled"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_DoctorIsReadOnly(t *testing.T) {
	f := newFixture()
	f.doctor(t, "org-a", ptr("user-doc"))
	e := serve(f, doctorUser("user-doc", "org-a"))

	rec, _ := call(e, http.MethodGet, "/api/v1/assessment-requests", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := call(e, http.MethodPost, "/api/v1/assessment-requests", `{"patientId":"p"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INSUFFICIENT_RIGHTS", env.Code)

	rec, _ = call(e, http.MethodGet, "/api/v1/assessment-requests/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
