package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/internal/platform/middleware"
	"github.com/clinicadmin/clinic/pkg/apierror"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

type Handler struct {
	svc      *Service
	sessions *auth.Sessions
	captcha  *auth.Captcha
	throttle *auth.LoginThrottle
}

// NewHandler wires the account routes. throttle may be nil.
func NewHandler(svc *Service, sessions *auth.Sessions, captcha *auth.Captcha, throttle *auth.LoginThrottle) *Handler {
	return &Handler{svc: svc, sessions: sessions, captcha: captcha, throttle: throttle}
}

// RegisterRoutes mounts /auth and /users on api. Login and captcha are
// reachable without a session; Authenticate skips them. Logout is public
// too but names its actor when the session is still valid.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	a := api.Group("/auth")
	if h.throttle != nil {
		a.POST("/login", h.Login, h.throttle.Middleware())
	} else {
		a.POST("/login", h.Login)
	}
	a.GET("/captcha", h.Captcha)
	a.POST("/logout", h.Logout, auth.Identify(h.sessions, h.svc))
	a.GET("/me", h.Me, auth.RequireAuthenticated())
	a.GET("/login-history", h.LoginHistory, auth.RequireAuthenticated())
	a.POST("/2fa/setup", h.SetupTwoFactor, auth.RequireAuthenticated())
	a.POST("/2fa/enable", h.EnableTwoFactor, auth.RequireAuthenticated())
	a.POST("/2fa/disable", h.DisableTwoFactor, auth.RequireAuthenticated())
	a.POST("/2fa/backup-codes", h.RegenerateBackupCodes, auth.RequireAuthenticated())

	u := api.Group("/users")
	u.GET("", h.ListUsers, auth.RequirePermission(auth.PermUsersRead))
	u.POST("", h.CreateUser, auth.RequirePermission(auth.PermUsersCreate))
	u.GET("/:id", h.GetUser, auth.RequirePermission(auth.PermUsersRead))
	u.PATCH("/:id/status", h.UpdateStatus, auth.RequirePermission(auth.PermUsersUpdate))
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"success": true, "data": data})
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apierror.BadRequest("INVALID_BODY", "request body is not valid JSON")
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apierror.NotFound("user not found")
	case errors.Is(err, ErrEmailTaken):
		return apierror.Conflict("EMAIL_TAKEN", "email already registered")
	case errors.Is(err, ErrForbidden):
		return apierror.Forbidden("INSUFFICIENT_RIGHTS", "insufficient rights")
	case errors.Is(err, ErrSelfDeactivation):
		return apierror.BadRequest("SELF_DEACTIVATION", err.Error())
	case errors.Is(err, ErrTwoFactorEnabled):
		return apierror.Conflict("TWO_FACTOR_ENABLED", err.Error())
	case errors.Is(err, ErrTwoFactorNotEnabled), errors.Is(err, ErrTwoFactorNotSetUp):
		return apierror.BadRequest("TWO_FACTOR_NOT_ENABLED", err.Error())
	case errors.Is(err, ErrInvalidTwoFactor):
		return apierror.Unauthorized("INVALID_TWO_FACTOR", err.Error())
	}
	return err
}

var loginCodes = []struct {
	err    error
	status int
	code   string
}{
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{ErrAccountUnverified, http.StatusForbidden, auth.CodeAccountUnverified},
	{ErrAccountDeactivated, http.StatusForbidden, auth.CodeAccountDeactivated},
	{ErrTwoFactorRequired, http.StatusUnauthorized, "TWO_FACTOR_REQUIRED"},
	{ErrInvalidTwoFactor, http.StatusUnauthorized, "INVALID_TWO_FACTOR"},
	{ErrCaptchaRequired, http.StatusUnauthorized, "CAPTCHA_REQUIRED"},
	{ErrInvalidCaptcha, http.StatusUnauthorized, "INVALID_CAPTCHA"},
	{ErrUnlockDenied, http.StatusUnauthorized, "UNLOCK_DENIED"},
}

func loginFailure(lerr *LoginError) *apierror.Error {
	for _, lc := range loginCodes {
		if errors.Is(lerr.Err, lc.err) {
			ae := apierror.New(lc.status, lc.code, lerr.Err.Error())
			details := map[string]any{}
			if lerr.Challenge != nil {
				details["captcha"] = lerr.Challenge
			}
			if errors.Is(lerr.Err, ErrInvalidCaptcha) {
				details["attemptsLeft"] = lerr.AttemptsLeft
			}
			if len(details) > 0 {
				ae = ae.WithDetails(details)
			}
			return ae
		}
	}
	return apierror.Unauthorized("INVALID_CREDENTIALS", ErrInvalidCredentials.Error())
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := bind(c, &in); err != nil {
		return err
	}
	in.IP = c.RealIP()
	in.UserAgent = c.Request().UserAgent()
	in.SessionToken = h.sessions.TokenFromRequest(c)

	res, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		var lerr *LoginError
		if !errors.As(err, &lerr) {
			return err
		}
		action := "LOGIN_FAILED"
		if errors.Is(lerr.Err, ErrTwoFactorRequired) || errors.Is(lerr.Err, ErrCaptchaRequired) {
			action = "LOGIN_CHALLENGE"
		}
		middleware.SetAuditAction(c, action)
		middleware.AddAuditMetadata(c, "email", in.Email)
		middleware.AddAuditMetadata(c, "reason", lerr.Err.Error())
		if lerr.UserID != "" {
			middleware.SetAuditTarget(c, lerr.UserID)
		}
		return loginFailure(lerr)
	}

	middleware.SetAuditActor(c, res.User.Principal())
	middleware.SetAuditTarget(c, res.User.ID)
	middleware.AddAuditMetadata(c, "method", string(res.Method))
	h.sessions.SetCookie(c, res.Token, res.ExpiresAt)
	return ok(c, http.StatusOK, map[string]any{
		"user":      res.User,
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
	})
}

func (h *Handler) Captcha(c echo.Context) error {
	ch, err := h.captcha.Generate(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, ch)
}

func (h *Handler) Logout(c echo.Context) error {
	h.sessions.ClearCookie(c)
	return ok(c, http.StatusOK, map[string]any{"loggedOut": true})
}

func (h *Handler) Me(c echo.Context) error {
	p := auth.PrincipalFromEcho(c)
	u, err := h.svc.Me(c.Request().Context(), p.ID)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, u)
}

func (h *Handler) LoginHistory(c echo.Context) error {
	p := auth.PrincipalFromEcho(c)
	hist, err := h.svc.LoginHistory(c.Request().Context(), p.ID)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, hist)
}

type codeInput struct {
	Code string `json:"code"`
}

func (h *Handler) SetupTwoFactor(c echo.Context) error {
	p := auth.PrincipalFromEcho(c)
	enr, err := h.svc.SetupTwoFactor(c.Request().Context(), p.ID)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, enr)
}

func (h *Handler) EnableTwoFactor(c echo.Context) error {
	var in codeInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p := auth.PrincipalFromEcho(c)
	codes, err := h.svc.EnableTwoFactor(c.Request().Context(), p.ID, in.Code)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, map[string]any{"enabled": true, "backupCodes": codes})
}

func (h *Handler) DisableTwoFactor(c echo.Context) error {
	var in codeInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p := auth.PrincipalFromEcho(c)
	if err := h.svc.DisableTwoFactor(c.Request().Context(), p.ID, in.Code); err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, map[string]any{"enabled": false})
}

func (h *Handler) RegenerateBackupCodes(c echo.Context) error {
	var in codeInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p := auth.PrincipalFromEcho(c)
	codes, err := h.svc.RegenerateBackupCodes(c.Request().Context(), p.ID, in.Code)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, map[string]any{"backupCodes": codes})
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), auth.PrincipalFromEcho(c), c.QueryParam("role"), pg)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg))
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in CreateUserInput
	if err := bind(c, &in); err != nil {
		return err
	}
	middleware.AddAuditMetadata(c, "role", in.Role)
	u, err := h.svc.CreateUser(c.Request().Context(), auth.PrincipalFromEcho(c), in)
	if err != nil {
		return mapError(err)
	}
	middleware.SetAuditTarget(c, u.ID)
	return ok(c, http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, u)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var in StatusInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if in.Active != nil {
		middleware.AddAuditMetadata(c, "active", *in.Active)
	}
	if in.Verified != nil {
		middleware.AddAuditMetadata(c, "verified", *in.Verified)
	}
	u, err := h.svc.UpdateStatus(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"), in)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, u)
}
