package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/clinicadmin/clinic/pkg/apierror"
)

// LoginThrottle is a per-client token bucket placed in front of the login
// endpoints. It is stricter than the API-wide window limit.
type LoginThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

type throttleEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLoginThrottle allows burst attempts, refilled at rps per second.
func NewLoginThrottle(rps float64, burst int) *LoginThrottle {
	return &LoginThrottle{
		limiters: make(map[string]*throttleEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// Allow consumes one token for key.
func (t *LoginThrottle) Allow(key string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.limiters[key]
	if !ok {
		e = &throttleEntry{lim: rate.NewLimiter(t.rps, t.burst)}
		t.limiters[key] = e
		if len(t.limiters)%256 == 0 {
			t.evictIdle(now)
		}
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (t *LoginThrottle) evictIdle(now time.Time) {
	for k, e := range t.limiters {
		if now.Sub(e.seen) > t.idle {
			delete(t.limiters, k)
		}
	}
}

// Middleware rejects over-limit clients with 429.
func (t *LoginThrottle) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !t.Allow(c.RealIP()) {
				retry := 1
				if t.rps > 0 {
					retry = int(1/float64(t.rps)) + 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				return apierror.New(http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many login attempts, try again later")
			}
			return next(c)
		}
	}
}
