package organization

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

// RegisterRoutes mounts the platform routes under /organizations and the
// clinic's own-organization routes under /organization. The latter are not
// behind the contract gate so an expired clinic can still see its contract
// and ask for a renewal.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	orgs := api.Group("/organizations")
	orgs.GET("", h.List, auth.RequirePermission(auth.PermOrganizationsRead))
	orgs.POST("", h.Create, auth.RequirePermission(auth.PermOrganizationsCreate))
	orgs.GET("/:id", h.Get, auth.RequirePermission(auth.PermOrganizationsRead))
	orgs.PUT("/:id", h.Update, auth.RequirePermission(auth.PermOrganizationsUpdate))
	orgs.POST("/:id/contract/extend", h.Extend, auth.RequirePermission(auth.PermContractsManage))
	orgs.POST("/:id/contract/reduce", h.Reduce, auth.RequirePermission(auth.PermContractsManage))
	orgs.POST("/:id/contract/renew", h.Renew, auth.RequirePermission(auth.PermContractsManage))
	orgs.GET("/:id/contract/history", h.History, auth.RequirePermission(auth.PermOrganizationsRead))
	orgs.GET("/:id/renewal-requests", h.ListRenewals, auth.RequirePermission(auth.PermRenewalsRead))
	orgs.POST("/:id/renewal-requests/:requestId/approve", h.Approve, auth.RequirePermission(auth.PermRenewalsDecide))
	orgs.POST("/:id/renewal-requests/:requestId/reject", h.Reject, auth.RequirePermission(auth.PermRenewalsDecide))

	own := api.Group("/organization", auth.RequireRole(auth.RoleClinic))
	own.GET("", h.GetOwn, auth.RequirePermission(auth.PermOrganizationRead))
	own.GET("/contract", h.OwnContract, auth.RequirePermission(auth.PermOrganizationRead))
	own.GET("/renewal-requests", h.ListOwnRenewals, auth.RequirePermission(auth.PermRenewalsRead))
	own.POST("/renewal-requests", h.RequestRenewal, auth.RequirePermission(auth.PermRenewalsRequest))
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"success": true, "data": data})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apierror.NotFound("organization not found")
	case errors.Is(err, ErrRenewalNotFound):
		return apierror.NotFound("renewal request not found")
	case errors.Is(err, ErrAlreadyDecided):
		return apierror.Conflict("ALREADY_DECIDED", "renewal request already decided")
	}
	return err
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apierror.BadRequest("INVALID_BODY", "request body is not valid JSON")
	}
	return nil
}

func actorID(c echo.Context) string {
	if p := auth.PrincipalFromEcho(c); p != nil {
		return p.ID
	}
	return ""
}

// ownOrg resolves the calling clinic's organization id.
func ownOrg(c echo.Context) (string, error) {
	p := auth.PrincipalFromEcho(c)
	if p == nil || p.OrganizationID == nil {
		return "", apierror.Forbidden("NO_ORGANIZATION", "no organization linked to this account")
	}
	return *p.OrganizationID, nil
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	orgs, total, err := h.svc.List(c.Request().Context(), pg)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orgs, total, pg))
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	o, err := h.svc.Create(c.Request().Context(), actorID(c), in)
	if err != nil {
		return mapError(err)
	}
	middleware.SetAuditTarget(c, o.ID)
	return ok(c, http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	o, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, o)
}

func (h *Handler) Update(c echo.Context) error {
	var in UpdateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	o, err := h.svc.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, o)
}

type monthsInput struct {
	Months int `json:"months"`
}

func (h *Handler) Extend(c echo.Context) error {
	var in monthsInput
	if err := bind(c, &in); err != nil {
		return err
	}
	middleware.AddAuditMetadata(c, "months", in.Months)
	o, err := h.svc.Extend(c.Request().Context(), actorID(c), c.Param("id"), in.Months)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, o)
}

func (h *Handler) Reduce(c echo.Context) error {
	var in monthsInput
	if err := bind(c, &in); err != nil {
		return err
	}
	middleware.AddAuditMetadata(c, "months", in.Months)
	o, err := h.svc.Reduce(c.Request().Context(), actorID(c), c.Param("id"), in.Months)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, o)
}

func (h *Handler) Renew(c echo.Context) error {
	var in RenewInput
	if err := bind(c, &in); err != nil {
		return err
	}
	middleware.AddAuditMetadata(c, "durationMonths", in.DurationMonths)
	o, err := h.svc.Renew(c.Request().Context(), actorID(c), c.Param("id"), in)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, o)
}

func (h *Handler) History(c echo.Context) error {
	hist, err := h.svc.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, hist)
}

func (h *Handler) ListRenewals(c echo.Context) error {
	reqs, err := h.svc.ListRenewals(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, reqs)
}

type decisionInput struct {
	Note string `json:"note"`
}

func (h *Handler) Approve(c echo.Context) error {
	var in decisionInput
	if err := bind(c, &in); err != nil {
		return err
	}
	middleware.SetAuditTarget(c, c.Param("requestId"))
	req, o, err := h.svc.ApproveRenewal(c.Request().Context(), actorID(c), c.Param("id"), c.Param("requestId"), in.Note)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, map[string]any{"request": req, "organization": o})
}

func (h *Handler) Reject(c echo.Context) error {
	var in decisionInput
	if err := bind(c, &in); err != nil {
		return err
	}
	middleware.SetAuditTarget(c, c.Param("requestId"))
	req, err := h.svc.RejectRenewal(c.Request().Context(), actorID(c), c.Param("id"), c.Param("requestId"), in.Note)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, req)
}

func (h *Handler) GetOwn(c echo.Context) error {
	orgID, err := ownOrg(c)
	if err != nil {
		return err
	}
	middleware.SetAuditTarget(c, orgID)
	o, err := h.svc.Get(c.Request().Context(), orgID)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, o)
}

func (h *Handler) OwnContract(c echo.Context) error {
	orgID, err := ownOrg(c)
	if err != nil {
		return err
	}
	middleware.SetAuditTarget(c, orgID)
	_, status, err := h.svc.ContractStatus(c.Request().Context(), orgID)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, status)
}

func (h *Handler) ListOwnRenewals(c echo.Context) error {
	orgID, err := ownOrg(c)
	if err != nil {
		return err
	}
	reqs, err := h.svc.ListRenewals(c.Request().Context(), orgID)
	if err != nil {
		return mapError(err)
	}
	return ok(c, http.StatusOK, reqs)
}

func (h *Handler) RequestRenewal(c echo.Context) error {
	orgID, err := ownOrg(c)
	if err != nil {
		return err
	}
	var in RenewalInput
	if err := bind(c, &in); err != nil {
		return err
	}
	req, err := h.svc.RequestRenewal(c.Request().Context(), actorID(c), orgID, in)
	if err != nil {
		return mapError(err)
	}
	middleware.SetAuditTarget(c, req.ID)
	return ok(c, http.StatusCreated, req)
}
