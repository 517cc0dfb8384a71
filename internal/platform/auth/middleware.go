package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicadmin/clinic/pkg/apierror"
)

// ErrUserNotFound is returned by a PrincipalLoader for unknown ids.
var ErrUserNotFound = errors.New("user not found")

// Rejection codes set in the error envelope.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeAccountUnverified  = "ACCOUNT_UNVERIFIED"
	CodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
)

// PrincipalLoader resolves the user named by a session token.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (*Principal, error)
}

// PrincipalLoaderFunc adapts a function to PrincipalLoader.
type PrincipalLoaderFunc func(ctx context.Context, userID string) (*Principal, error)

func (f PrincipalLoaderFunc) LoadPrincipal(ctx context.Context, userID string) (*Principal, error) {
	return f(ctx, userID)
}

// Authenticate verifies the session token and attaches the loaded user.
// skipper may be nil.
func Authenticate(sessions *Sessions, loader PrincipalLoader, skipper func(echo.Context) bool, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			token := sessions.TokenFromRequest(c)
			if token == "" {
				return apierror.Unauthorized(CodeUnauthorized, "unauthorized")
			}

			claims, err := sessions.Parse(token)
			if err != nil {
				sessions.ClearCookie(c)
				if errors.Is(err, ErrSessionExpired) {
					return apierror.Unauthorized(CodeSessionExpired, "session expired")
				}
				return apierror.Unauthorized(CodeUnauthorized, "unauthorized")
			}

			p, err := loader.LoadPrincipal(c.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					sessions.ClearCookie(c)
					return apierror.Unauthorized(CodeUserNotFound, "user no longer exists")
				}
				logger.Error().Err(err).Str("user_id", claims.Subject).Msg("load session user")
				return apierror.Internal(err)
			}
			if !p.Verified {
				return apierror.Unauthorized(CodeAccountUnverified, "account is not verified")
			}
			if !p.Active {
				return apierror.Unauthorized(CodeAccountDeactivated, "account has been deactivated")
			}

			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// Identify attaches the session user when the request carries a valid
// token and passes every request through. It serves public routes, such as
// logout, that still want a named actor.
func Identify(sessions *Sessions, loader PrincipalLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if PrincipalFromEcho(c) != nil {
				return next(c)
			}
			token := sessions.TokenFromRequest(c)
			if token == "" {
				return next(c)
			}
			claims, err := sessions.Parse(token)
			if err != nil {
				return next(c)
			}
			if p, err := loader.LoadPrincipal(c.Request().Context(), claims.Subject); err == nil {
				SetPrincipal(c, p)
			}
			return next(c)
		}
	}
}

// RequireAuthenticated rejects requests without a principal. Routes that
// sit behind Authenticate never need it; it guards routes that skip it.
func RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if PrincipalFromEcho(c) == nil {
				return apierror.New(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}
