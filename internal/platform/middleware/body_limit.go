package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinicadmin/clinic/pkg/apierror"
)

const defaultBodyLimit = 1 << 20

// sizeUnits is checked in order, so two-letter suffixes come first.
var sizeUnits = []struct {
	suffix string
	factor int64
}{
	{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
	{"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10},
}

// BodyLimit caps request bodies at limit ("1M", "512K", "2G" or bytes).
// Oversized bodies fail with 413 PAYLOAD_TOO_LARGE, either up front from
// Content-Length or when the handler reads past the cap.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max := parseLimit(limit)
	rejected := apierror.New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		fmt.Sprintf("request body is larger than %d bytes", max))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > max {
				return rejected
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, max)
			return next(c)
		}
	}
}

func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	factor := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			factor = u.factor
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n * factor
}
