package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hengadev/errsx"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.Nop())(err, c)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestHandler_APIError(t *testing.T) {
	err := Forbidden("INSUFFICIENT_RIGHTS", "insufficient rights").
		WithDetails(map[string]any{"required": []string{"patients:read"}})

	status, out := render(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "INSUFFICIENT_RIGHTS", out["code"])
	assert.Equal(t, "insufficient rights", out["message"])
	assert.Contains(t, out["details"], "required")
}

func TestHandler_EchoHTTPError(t *testing.T) {
	status, out := render(t, echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", out["code"])
	assert.Equal(t, "rate limit exceeded", out["message"])
}

func TestHandler_UnknownErrorIsHidden(t *testing.T) {
	status, out := render(t, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", out["message"])
}

func TestHandler_ValidationMap(t *testing.T) {
	var m errsx.Map
	m.Set("email", "is required")

	status, out := render(t, m.AsError())
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", out["code"])
	details, ok := out["details"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "email")
}

func TestFrom_Wrapped(t *testing.T) {
	base := NotFound("patient not found")
	wrapped := errors.Join(errors.New("context"), base)
	assert.Equal(t, http.StatusNotFound, From(wrapped).Status)
}
