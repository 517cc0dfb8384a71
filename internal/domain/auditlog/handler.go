package auditlog

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/apierror"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit-logs", auth.RequirePermission(auth.PermAuditRead))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryFrom(c echo.Context) (Query, error) {
	q := Query{
		Action:     c.QueryParam("action"),
		RecordType: c.QueryParam("recordType"),
		Q:          c.QueryParam("q"),
		SortBy:     c.QueryParam("sortBy"),
		SortOrder:  c.QueryParam("sortOrder"),
		Page:       pagination.FromContext(c),
	}
	var err error
	if q.From, err = parseTime(c.QueryParam("from")); err != nil {
		return q, apierror.BadRequest("INVALID_QUERY", "from must be a date or RFC 3339 timestamp")
	}
	if q.To, err = parseTime(c.QueryParam("to")); err != nil {
		return q, apierror.BadRequest("INVALID_QUERY", "to must be a date or RFC 3339 timestamp")
	}
	return q, nil
}

func (h *Handler) List(c echo.Context) error {
	q, err := queryFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), auth.PrincipalFromEcho(c), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, q.Page))
}

func (h *Handler) Get(c echo.Context) error {
	e, err := h.svc.Get(c.Request().Context(), auth.PrincipalFromEcho(c), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return apierror.NotFound("audit entry not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": e})
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context(), auth.PrincipalFromEcho(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": st})
}
