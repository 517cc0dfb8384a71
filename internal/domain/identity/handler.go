package identity

import (
	"errors"
	"net/http"
	"strconv"

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

// RegisterRoutes mounts /patients and /doctors. Each route checks its
// permission first and then runs gate, the contract validator.
func (h *Handler) RegisterRoutes(api *echo.Group, gate echo.MiddlewareFunc) {
	if gate == nil {
		gate = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	perm := auth.RequirePermission

	p := api.Group("/patients")
	p.GET("", h.ListPatients, perm(auth.PermPatientsRead), gate)
	p.POST("", h.CreatePatient, perm(auth.PermPatientsCreate), gate)
	p.GET("/:id", h.GetPatient, perm(auth.PermPatientsRead), gate)
	p.PUT("/:id", h.UpdatePatient, perm(auth.PermPatientsUpdate), gate)
	p.DELETE("/:id", h.DeletePatient, perm(auth.PermPatientsDelete), gate)

	d := api.Group("/doctors")
	d.GET("", h.ListDoctors, perm(auth.PermDoctorsRead), gate)
	d.POST("", h.CreateDoctor, perm(auth.PermDoctorsCreate), gate)
	d.GET("/:id", h.GetDoctor, perm(auth.PermDoctorsRead), gate)
	d.PUT("/:id", h.UpdateDoctor, perm(auth.PermDoctorsUpdate), gate)
	d.DELETE("/:id", h.DeleteDoctor, perm(auth.PermDoctorsDelete), gate)
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"success": true, "data": data})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrPatientNotFound):
		return apierror.NotFound("patient not found")
	case errors.Is(err, ErrDoctorNotFound):
		return apierror.NotFound("doctor not found")
	case errors.Is(err, ErrNoOrganization):
		return apierror.Forbidden("NO_ORGANIZATION", err.Error())
	}
	return err
}

func queryFrom(c echo.Context) Query {
	return Query{
		Email:    c.QueryParam("email"),
		Phone:    c.QueryParam("phone"),
		DoctorID: c.QueryParam("doctorId"),
		Q:        c.QueryParam("q"),
	}
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), auth.PrincipalFromEcho(c), queryFrom(c), pg)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return apierror.BadRequest("INVALID_BODY", "request body is not valid JSON")
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), auth.PrincipalFromEcho(c), in)
	if err != nil {
		return mapError(err)
	}
	middleware.SetAuditTarget(c, p.ID)
	return ok(c, http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return apierror.BadRequest("INVALID_BODY", "request body is not valid JSON")
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"), in)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.DeletePatient(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	var active *bool
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apierror.BadRequest("INVALID_QUERY", "active must be true or false")
		}
		active = &b
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), auth.PrincipalFromEcho(c), queryFrom(c), active, pg)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return apierror.BadRequest("INVALID_BODY", "request body is not valid JSON")
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), auth.PrincipalFromEcho(c), in)
	if err != nil {
		return mapError(err)
	}
	middleware.SetAuditTarget(c, d.ID)
	return ok(c, http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	d, err := h.svc.GetDoctor(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return apierror.BadRequest("INVALID_BODY", "request body is not valid JSON")
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"), in)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	if err := h.svc.DeleteDoctor(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, map[string]any{"deleted": true})
}
