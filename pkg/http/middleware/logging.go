package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "BriefMaker/pkg/logger"
)

// RequestLogging logs HTTP requests. Successful requests log at debug level.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", req.RemoteAddr),
				applogger.Int("status", res.Status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if err != nil {
				l.Warn("http request error", append(fields, applogger.Error(err))...)
			} else {
				l.Debug("http request", fields...)
			}
			return err
		}
	}
}
