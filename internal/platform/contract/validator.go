package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/apierror"
)

// ErrNotFound is returned by a Lookup when the organization does not exist.
var ErrNotFound = errors.New("organization not found")

// Rejection codes.
const (
	CodeNoOrganization        = "NO_ORGANIZATION"
	CodeContractExpired       = "CONTRACT_EXPIRED"
	CodeOrganizationSuspended = "ORGANIZATION_SUSPENDED"
)

// Warning types attached to successful responses.
const (
	WarningGrace    = "grace"
	WarningExpiring = "expiring"
)

// Lookup loads the contract of an organization.
type Lookup interface {
	ContractForOrganization(ctx context.Context, orgID string) (*Contract, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, orgID string) (*Contract, error)

func (f LookupFunc) ContractForOrganization(ctx context.Context, orgID string) (*Contract, error) {
	return f(ctx, orgID)
}

// Warning is the advisory object merged into successful JSON bodies as
// "contractWarning".
type Warning struct {
	Type            string    `json:"type"`
	Message         string    `json:"message"`
	DaysUntilExpiry int       `json:"daysUntilExpiry"`
	ContractEndDate time.Time `json:"contractEndDate"`
	GracePeriodDays int       `json:"gracePeriodDays"`
	GraceEndsAt     time.Time `json:"graceEndsAt"`
}

// Options configures Validate.
type Options struct {
	// WarningDays is the window before EndDate that attaches an "expiring"
	// warning. Defaults to 30.
	WarningDays int
	Now         func() time.Time
	Logger      zerolog.Logger
}

// Validate gates Clinic users on their organization's contract. SuperAdmin
// and every other role pass untouched. Lookup failures other than
// ErrNotFound let the request through and are logged.
func Validate(lookup Lookup, opts Options) echo.MiddlewareFunc {
	if opts.WarningDays <= 0 {
		opts.WarningDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := auth.PrincipalFromEcho(c)
			if p == nil || p.Role != auth.RoleClinic {
				return next(c)
			}
			if p.OrganizationID == nil || *p.OrganizationID == "" {
				return apierror.Forbidden(CodeNoOrganization, "your account is not linked to an organization")
			}

			ct, err := lookup.ContractForOrganization(c.Request().Context(), *p.OrganizationID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return apierror.Forbidden(CodeNoOrganization, "your organization no longer exists")
				}
				opts.Logger.Error().Err(err).
					Str("organization_id", *p.OrganizationID).
					Msg("contract validation failed, allowing request")
				return next(c)
			}

			if ct.Status == StatusSuspended {
				return apierror.Forbidden(CodeOrganizationSuspended, "your organization has been suspended, contact admin")
			}

			now := opts.Now()
			if !ct.IsContractValid(now) {
				days := ct.DaysUntilExpiry(now)
				return apierror.Forbidden(CodeContractExpired,
					fmt.Sprintf("contract expired %d days ago and the %d-day grace period has ended, renew to continue",
						-days, ct.GracePeriodDays)).
					WithDetails(map[string]any{
						"contractEndDate": ct.EndDate,
						"gracePeriodDays": ct.GracePeriodDays,
						"graceEndsAt":     ct.GraceEndsAt(),
						"daysUntilExpiry": days,
						"inGracePeriod":   false,
					})
			}

			w := warningFor(*ct, now, opts.WarningDays)
			if w == nil {
				return next(c)
			}
			c.Set(warningKey, w)
			return withWarning(c, next, w)
		}
	}
}

const warningKey = "contract_warning"

// WarningFromContext returns the warning attached to this request, if any.
func WarningFromContext(c echo.Context) *Warning {
	w, _ := c.Get(warningKey).(*Warning)
	return w
}

func warningFor(ct Contract, now time.Time, warningDays int) *Warning {
	days := ct.DaysUntilExpiry(now)
	base := Warning{
		DaysUntilExpiry: days,
		ContractEndDate: ct.EndDate,
		GracePeriodDays: ct.GracePeriodDays,
		GraceEndsAt:     ct.GraceEndsAt(),
	}
	switch {
	case ct.IsInGracePeriod(now):
		base.Type = WarningGrace
		base.Message = fmt.Sprintf("contract expired, in grace period until %s, contact admin",
			ct.GraceEndsAt().Format("2006-01-02"))
		return &base
	case days <= warningDays:
		base.Type = WarningExpiring
		base.Message = fmt.Sprintf("contract expires in %d days", days)
		return &base
	}
	return nil
}

// withWarning buffers the response and merges w into a JSON object body
// whose top-level "success" is true. Anything else is flushed unchanged.
func withWarning(c echo.Context, next echo.HandlerFunc, w *Warning) error {
	res := c.Response()
	orig := res.Writer
	buf := &bufferedWriter{writer: orig, buf: &bytes.Buffer{}, status: http.StatusOK}
	res.Writer = buf

	err := next(c)
	res.Writer = orig
	if !buf.wroteHeader && buf.buf.Len() == 0 {
		return err
	}

	body := buf.buf.Bytes()
	if strings.HasPrefix(orig.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if merged, ok := mergeWarning(body, w); ok {
			body = merged
		}
	}
	orig.Header().Del(echo.HeaderContentLength)
	orig.WriteHeader(buf.status)
	if len(body) > 0 {
		if _, werr := orig.Write(body); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func mergeWarning(body []byte, w *Warning) ([]byte, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, false
	}
	var success bool
	if raw, ok := obj["success"]; !ok || json.Unmarshal(raw, &success) != nil || !success {
		return nil, false
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, false
	}
	obj["contractWarning"] = raw
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return append(out, '\n'), true
}

type bufferedWriter struct {
	writer      http.ResponseWriter
	buf         *bytes.Buffer
	status      int
	wroteHeader bool
}

func (w *bufferedWriter) Header() http.Header { return w.writer.Header() }

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferedWriter) WriteHeader(code int) {
	w.status = code
	w.wroteHeader = true
}

func (w *bufferedWriter) Flush() {}
