package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/apierror"
)

// RateLimitConfig holds the API-wide fixed window limit.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Now      func() time.Time
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Requests: 300,
		Window:   time.Minute,
	}
}

// RateLimit counts requests per caller in fixed windows held in store. The
// caller is the authenticated user when there is one, else the client IP.
// Store failures let the request through.
func RateLimit(store auth.KeyedStore, cfg RateLimitConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := strconv.Itoa(cfg.Requests)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := "ip:" + c.RealIP()
			if p := auth.PrincipalFromEcho(c); p != nil {
				caller = "user:" + p.ID
			}

			now := cfg.Now()
			window := now.UnixNano() / int64(cfg.Window)
			key := "ratelimit:" + caller + ":" + strconv.FormatInt(window, 10)

			n, err := store.Incr(c.Request().Context(), key, cfg.Window)
			if err != nil {
				logger.Warn().Err(err).Msg("rate limit store unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			remaining := int64(cfg.Requests) - n
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(cfg.Requests) {
				resetAt := time.Unix(0, (window+1)*int64(cfg.Window))
				retry := int(resetAt.Sub(now).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(retry))
				return apierror.New(http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			}
			return next(c)
		}
	}
}
