package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicadmin/clinic/pkg/apierror"
)

// CodeInsufficientRights is the discriminator for every 403 from this file.
const CodeInsufficientRights = "INSUFFICIENT_RIGHTS"

func insufficient(required []string, actual any) error {
	return apierror.Forbidden(CodeInsufficientRights, "insufficient rights").
		WithDetails(map[string]any{"required": required, "actual": actual})
}

func unauthenticated() error {
	return apierror.Unauthorized(CodeUnauthorized, "unauthorized")
}

// RequireRole passes iff the user's role is one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromEcho(c)
			if p == nil {
				return unauthenticated()
			}
			if !IsKnownRole(p.Role) {
				return insufficient(roles, p.Role)
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return insufficient(roles, p.Role)
		}
	}
}

// RequirePermission passes iff the user's role grants at least one of perms.
func RequirePermission(perms ...string) echo.MiddlewareFunc {
	return permissionCheck(perms, HasAnyPermission)
}

// RequireAllPermissions passes iff the user's role grants every one of perms.
func RequireAllPermissions(perms ...string) echo.MiddlewareFunc {
	return permissionCheck(perms, HasAllPermissions)
}

func permissionCheck(perms []string, check func(string, ...string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromEcho(c)
			if p == nil {
				return unauthenticated()
			}
			if !check(p.Role, perms...) {
				return insufficient(perms, Permissions(p.Role))
			}
			return next(c)
		}
	}
}

// Authorize checks roles when every argument is a known role name and
// permissions (any) otherwise. Prefer RequireRole or RequirePermission
// where the intent is known.
func Authorize(rolesOrPermissions ...string) echo.MiddlewareFunc {
	if isRoleList(rolesOrPermissions) {
		return RequireRole(rolesOrPermissions...)
	}
	return RequirePermission(rolesOrPermissions...)
}

func isRoleList(items []string) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !IsKnownRole(it) {
			return false
		}
	}
	return true
}
