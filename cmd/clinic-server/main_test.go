package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicadmin/clinic/internal/config"
	"github.com/clinicadmin/clinic/internal/domain/account"
	"github.com/clinicadmin/clinic/internal/domain/assessment"
	"github.com/clinicadmin/clinic/internal/domain/auditlog"
	"github.com/clinicadmin/clinic/internal/domain/identity"
	"github.com/clinicadmin/clinic/internal/domain/organization"
	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/internal/platform/db"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

type fixture struct {
	e        *echo.Echo
	sessions *auth.Sessions
	accounts *account.InMemoryRepo
	orgs     *organization.InMemoryRepo
	audit    *auditlog.MemoryStore
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		CORSOrigins:         []string{"*"},
		SessionTTL:          8 * time.Hour,
		UnlockWindow:        12 * time.Hour,
		CaptchaTTL:          5 * time.Minute,
		CaptchaAttempts:     3,
		ContractWarningDays: 30,
		RateLimitRequests:   1000,
		RateLimitWindow:     time.Minute,
		LoginRateRPS:        100,
		LoginRateBurst:      100,
	}
}

func testCiphers(t *testing.T) (*hipaa.FieldCipher, *hipaa.BlindIndexer) {
	t.Helper()
	k1 := make([]byte, hipaa.KeySize)
	k2 := make([]byte, hipaa.KeySize)
	_, err := rand.Read(k1)
	require.NoError(t, err)
	_, err = rand.Read(k2)
	require.NoError(t, err)
	cipher, index, err := newCiphers(hipaa.Keys{Encryption: k1, BlindIndex: k2}, zerolog.Nop())
	require.NoError(t, err)
	return cipher, index
}

// newFixture wires the full router over in-memory stores. With a non-nil
// q, patients go through the Postgres repository instead.
func newFixture(t *testing.T, q db.Querier) *fixture {
	t.Helper()
	cipher, index := testCiphers(t)
	var patients identity.PatientRepository = identity.NewInMemoryPatientRepo()
	if q != nil {
		patients = identity.NewPatientRepo(q, cipher, index)
	}
	store := auth.NewMemoryStore(time.Minute)
	t.Cleanup(store.Close)

	f := &fixture{
		sessions: auth.NewSessions(auth.SessionConfig{Secret: []byte(strings.Repeat("s", 32)), TTL: time.Hour}),
		accounts: account.NewInMemoryRepo(),
		orgs:     organization.NewInMemoryRepo(),
		audit:    auditlog.NewMemoryStore(),
	}
	f.e = newRouter(deps{
		cfg:         testConfig(),
		logger:      zerolog.Nop(),
		sessions:    f.sessions,
		store:       store,
		cipher:      cipher,
		accounts:    f.accounts,
		orgs:        f.orgs,
		patients:    patients,
		doctors:     identity.NewInMemoryDoctorRepo(),
		assessments: assessment.NewInMemoryRepo(),
		audit:       f.audit,
		registry:    prometheus.NewRegistry(),
	})
	return f
}

// clinic creates an organization whose contract ends endIn from now, plus a
// Clinic user in it, and returns a bearer token for that user.
func (f *fixture) clinic(t *testing.T, endIn time.Duration, grace int) (orgID, token string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	o := &organization.Organization{
		Name:              "Northside Clinic",
		ContractStartDate: now.AddDate(-1, 0, 0),
		ContractEndDate:   now.Add(endIn),
		DurationMonths:    12,
		GracePeriodDays:   grace,
		Status:            organization.StatusActive,
	}
	require.NoError(t, f.orgs.Create(ctx, o, nil))

	u := &account.User{
		Email:          "front-desk@northside.test",
		DisplayName:    "Front Desk",
		Role:           auth.RoleClinic,
		OrganizationID: &o.ID,
		Verified:       true,
		Active:         true,
	}
	require.NoError(t, f.accounts.Create(ctx, u))
	token, _, err := f.sessions.Issue(u.Principal())
	require.NoError(t, err)
	return o.ID, token
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) entries(t *testing.T) []hipaa.AuditEntry {
	t.Helper()
	out, _, err := f.audit.List(context.Background(), auditlog.Query{Page: pagination.Params{Page: 1, Limit: 100}})
	require.NoError(t, err)
	return out
}

type captured struct{ v any }

func (c *captured) Match(v any) bool {
	c.v = v
	return true
}

func TestClinicCreatesPatientWithSealedName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	f := newFixture(t, mock)
	orgID, token := f.clinic(t, 40*24*time.Hour, 7)

	name := &captured{}
	anyArg := pgxmock.AnyArg()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO patient").
		WithArgs(anyArg, orgID, name, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	rec := f.do(http.MethodPost, "/api/v1/patients", token, `{"name":"Grace Hopper"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Success bool             `json:"success"`
		Data    identity.Patient `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	require.NotEmpty(t, created.Data.ID)

	stored, ok := name.v.(string)
	require.True(t, ok, "name bound as %T", name.v)
	assert.NotEqual(t, "Grace Hopper", stored)
	assert.NotContains(t, stored, "Grace")
	_, err = base64.StdEncoding.DecodeString(stored)
	assert.NoError(t, err, "stored name is not a base64 token")

	mock.ExpectQuery("SELECT .+ FROM patient WHERE id").
		WithArgs(created.Data.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "organization_id", "name", "email", "phone", "date_of_birth",
			"gender", "doctor_id", "created_by", "created_at", "updated_at"}).
			AddRow(created.Data.ID, orgID, stored, nil, nil, nil, nil, nil, "user-1", now, now))

	rec = f.do(http.MethodGet, "/api/v1/patients/"+created.Data.ID, token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Data identity.Patient `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Grace Hopper", got.Data.Name)
	require.NoError(t, mock.ExpectationsWereMet())

	var creates []hipaa.AuditEntry
	for _, e := range f.entries(t) {
		if e.Action == "PATIENT_CREATE" {
			creates = append(creates, e)
		}
	}
	require.Len(t, creates, 1)
	assert.Equal(t, hipaa.OutcomeSuccess, creates[0].Outcome)
	assert.Equal(t, http.StatusCreated, creates[0].StatusCode)
	require.NotNil(t, creates[0].TargetID)
	assert.Equal(t, created.Data.ID, *creates[0].TargetID)
	require.NotNil(t, creates[0].OrganizationID)
	assert.Equal(t, orgID, *creates[0].OrganizationID)
}

func TestExpiredContractBlocksClinicalRoutes(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.clinic(t, -10*24*time.Hour, 7)

	rec := f.do(http.MethodGet, "/api/v1/patients", token, "")
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "CONTRACT_EXPIRED", body.Code)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, hipaa.OutcomeFailure, entries[0].Outcome)
	assert.Equal(t, http.StatusForbidden, entries[0].StatusCode)

	// The clinic can still reach its own contract to ask for a renewal.
	rec = f.do(http.MethodGet, "/api/v1/organization/contract", token, "")
	assert.NotEqual(t, http.StatusForbidden, rec.Code, rec.Body.String())
}

func TestGracePeriodStillAllowsClinic(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.clinic(t, -3*24*time.Hour, 7)

	rec := f.do(http.MethodGet, "/api/v1/patients", token, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUnauthenticatedRequestIsAudited(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/v1/patients", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, hipaa.OutcomeFailure, entries[0].Outcome)
	assert.Nil(t, entries[0].ActorUserID)
}

func TestPublicEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/auth/captcha", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, hipaa.AnonymousRole, f.entries(t)[0].ActorRole)
}

func TestResolveKeysDevelopmentFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "development"
	cfg.KeySource = config.KeySourceEnv
	keys, err := resolveKeys(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, keys.Encryption, hipaa.KeySize)
	assert.NotEqual(t, keys.Encryption, keys.BlindIndex)

	cfg.Env = "production"
	_, err = resolveKeys(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(nil, &buf)
	l.Info().Msg("config missing")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "nil config logs JSON: %s", buf.String())
	assert.Equal(t, "config missing", line["message"])

	buf.Reset()
	l = newLogger(&config.Config{Env: "development"}, &buf)
	l.Info().Msg("dev")
	assert.Contains(t, buf.String(), "INF")
	assert.False(t, json.Valid(buf.Bytes()))
}
