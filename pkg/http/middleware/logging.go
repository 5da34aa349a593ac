package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"OptionsFlow/pkg/logger"
)

// RequestLogging logs each HTTP request at debug level, 5xx at error.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("path", routeLabel(c)),
				logger.String("remote", c.RealIP()),
				logger.Int("status", status),
				logger.Duration("latency", time.Since(start)),
			}
			if status >= 500 {
				log.Error("http request failed", fields...)
			} else {
				log.Debug("http request", fields...)
			}
			return nil
		}
	}
}
