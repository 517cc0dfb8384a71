package auth

import (
	"context"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	// echoPrincipalKey is the echo.Context key holding the *Principal.
	echoPrincipalKey = "auth_principal"
)

// Principal is the authenticated user as seen by middleware and handlers.
type Principal struct {
	ID             string
	Role           string
	OrganizationID *string
	DisplayName    string
	Verified       bool
	Active         bool
}

// InOrganization reports whether the principal belongs to orgID.
func (p *Principal) InOrganization(orgID string) bool {
	return p.OrganizationID != nil && *p.OrganizationID == orgID
}

// SetPrincipal attaches p to both the echo context and the request context.
func SetPrincipal(c echo.Context, p *Principal) {
	c.Set(echoPrincipalKey, p)
	req := c.Request()
	c.SetRequest(req.WithContext(WithPrincipal(req.Context(), p)))
}

// PrincipalFromEcho returns the authenticated principal or nil.
func PrincipalFromEcho(c echo.Context) *Principal {
	if c == nil {
		return nil
	}
	if p, ok := c.Get(echoPrincipalKey).(*Principal); ok {
		return p
	}
	return PrincipalFromContext(c.Request().Context())
}

// WithPrincipal returns a child context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
