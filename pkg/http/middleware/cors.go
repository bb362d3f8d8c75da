package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// CORSConfig describes browser access to the API. Every route is readable;
// only WritePaths also accept POST.
type CORSConfig struct {
	AllowOrigins []string
	WritePaths   []string
	AllowHeaders []string
	MaxAge       time.Duration
}

var (
	readMethods  = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	writeMethods = append(append([]string{}, readMethods...), http.MethodPost)
)

// CORS returns CORS middleware. Requests from origins outside AllowOrigins
// pass through untouched. Preflights asking for a method the path does not
// take are refused with 403.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	writable := make(map[string]bool, len(cfg.WritePaths))
	for _, p := range cfg.WritePaths {
		writable[p] = true
	}
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" || !originAllowed(cfg.AllowOrigins, origin) {
				return next(c)
			}

			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			if req.Method != http.MethodOptions {
				return next(c)
			}

			methods := readMethods
			if writable[req.URL.Path] {
				methods = writeMethods
			}
			if want := req.Header.Get(echo.HeaderAccessControlRequestMethod); want != "" && !contains(methods, want) {
				return c.NoContent(http.StatusForbidden)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, strings.Join(methods, ", "))
			if headers != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			}
			if cfg.MaxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(int(cfg.MaxAge/time.Second)))
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
