package assessment

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
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /assessment-requests behind the permission checks
// and then gate.
func (h *Handler) RegisterRoutes(api *echo.Group, gate echo.MiddlewareFunc) {
	if gate == nil {
		gate = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g := api.Group("/assessment-requests")
	g.GET("", h.List, auth.RequirePermission(auth.PermAssessmentRead), gate)
	g.POST("", h.Create, auth.RequirePermission(auth.PermAssessmentCreate), gate)
	g.GET("/:id", h.Get, auth.RequirePermission(auth.PermAssessmentRead), gate)
	g.PUT("/:id", h.Update, auth.RequirePermission(auth.PermAssessmentUpdate), gate)
	g.PATCH("/:id/status", h.UpdateStatus, auth.RequirePermission(auth.PermAssessmentUpdate), gate)
	g.DELETE("/:id", h.Delete, auth.RequirePermission(auth.PermAssessmentDelete), gate)
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"success": true, "data": data})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apierror.NotFound("assessment request not found")
	case errors.Is(err, ErrNoOrganization):
		return apierror.Forbidden("NO_ORGANIZATION", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return apierror.Conflict("INVALID_TRANSITION", err.Error())
	}
	return err
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apierror.BadRequest("INVALID_BODY", "request body is not valid JSON")
	}
	return nil
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.PrincipalFromEcho(c),
		Status(c.QueryParam("status")), c.QueryParam("patientId"), p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := h.svc.Create(c.Request().Context(), auth.PrincipalFromEcho(c), in)
	if err != nil {
		return mapError(err)
	}
	middleware.SetAuditTarget(c, r.ID)
	return ok(c, http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	r, err := h.svc.Get(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, r)
}

func (h *Handler) Update(c echo.Context) error {
	var in UpdateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := h.svc.Update(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"), in)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, r)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var in StatusInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := h.svc.UpdateStatus(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"), in)
	if err != nil {
		return mapError(err)
	}
	middleware.AddAuditMetadata(c, "status", string(r.Status))
	return ok(c, http.StatusOK, r)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, map[string]any{"deleted": true})
}
