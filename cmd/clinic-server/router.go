package main

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clinicadmin/clinic/internal/config"
	"github.com/clinicadmin/clinic/internal/domain/account"
	"github.com/clinicadmin/clinic/internal/domain/assessment"
	"github.com/clinicadmin/clinic/internal/domain/auditlog"
	"github.com/clinicadmin/clinic/internal/domain/identity"
	"github.com/clinicadmin/clinic/internal/domain/organization"
	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/internal/platform/contract"
	"github.com/clinicadmin/clinic/internal/platform/db"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/internal/platform/middleware"
	"github.com/clinicadmin/clinic/pkg/apierror"
)

const apiPrefix = "/api/v1"

// deps is everything the router needs. serve fills it with Postgres
// repositories; tests fill it with in-memory ones.
type deps struct {
	cfg    *config.Config
	logger zerolog.Logger

	sessions *auth.Sessions
	store    auth.KeyedStore
	cipher   *hipaa.FieldCipher

	accounts    account.Repository
	orgs        organization.Repository
	patients    identity.PatientRepository
	doctors     identity.DoctorRepository
	assessments assessment.Repository
	audit       auditlog.Store

	// recorder receives audit entries from the middleware. nil means audit
	// writes go straight to audit.
	recorder hipaa.AuditRecorder
	registry *prometheus.Registry
	health   db.Pinger
	now      func() time.Time
}

func newRouter(d deps) *echo.Echo {
	if d.now == nil {
		d.now = time.Now
	}
	if d.recorder == nil {
		d.recorder = d.audit
	}
	cfg := d.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(d.logger)

	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled() || cfg.IsProduction()))
	if d.registry != nil {
		e.Use(middleware.NewHTTPMetrics(d.registry).Middleware())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"success": true, "data": map[string]string{"status": "ok"}})
	})
	if d.health != nil {
		e.GET("/health/db", db.HealthHandler(d.health))
	}
	if d.registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))
	}

	// Services
	captcha := auth.NewCaptcha(d.store, cfg.CaptchaTTL, cfg.CaptchaAttempts, auth.WithCaptchaClock(d.now))
	accountSvc := account.NewService(d.accounts, d.sessions, captcha, account.Config{
		TOTPIssuer:   cfg.TOTPIssuer,
		UnlockWindow: cfg.UnlockWindow,
	}, d.logger).WithClock(d.now)
	orgSvc := organization.NewService(d.orgs).WithClock(d.now)
	identitySvc := identity.NewService(d.patients, d.doctors)
	assessmentSvc := assessment.NewService(d.assessments, d.patients, d.doctors)
	auditSvc := auditlog.NewService(d.audit)

	auditor := middleware.NewAuditor(middleware.AuditConfig{
		Recorder:   d.recorder,
		Classifier: middleware.NewClassifier(apiPrefix, middleware.DefaultAuditRoutes()),
		Cipher:     d.cipher,
		Logger:     d.logger,
		Now:        d.now,
	})

	// The auditor wraps authentication so rejected sessions are recorded.
	api := e.Group(apiPrefix,
		auditor.Global(),
		auth.Authenticate(d.sessions, accountSvc, auth.AuthSkipper, d.logger),
		middleware.RateLimit(d.store, middleware.RateLimitConfig{
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindow,
			Now:      d.now,
		}, d.logger),
	)

	gate := contract.Validate(orgSvc, contract.Options{
		WarningDays: cfg.ContractWarningDays,
		Now:         d.now,
		Logger:      d.logger,
	})

	throttle := auth.NewLoginThrottle(cfg.LoginRateRPS, cfg.LoginRateBurst)
	account.NewHandler(accountSvc, d.sessions, captcha, throttle).RegisterRoutes(api)
	organization.NewHandler(orgSvc).RegisterRoutes(api)
	identity.NewHandler(identitySvc).RegisterRoutes(api, gate)
	assessment.NewHandler(assessmentSvc).RegisterRoutes(api, gate)
	auditlog.NewHandler(auditSvc).RegisterRoutes(api)

	return e
}
