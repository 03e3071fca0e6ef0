package middleware

import (
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/labstack/echo/v4"
)

// quietPrefixes are probe routes logged at debug level
var quietPrefixes = []string{"/api/v1/health", "/metrics"}

// Logger logs one line per request. Server errors log at error level, client
// errors at warn, probes at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			ctx := c.Request().Context()
			fields := map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"method":        req.Method,
				"route":         c.Path(),
				"status":        res.Status,
				"response_time": time.Since(start),
				"response_size": res.Size,
				"remote_ip":     c.RealIP(),
			}
			if source := context.GetSource(ctx); source != "" {
				fields["source"] = source
			}
			if source := c.Param("source"); source != "" {
				fields["source"] = source
			}
			if id := c.Param("id"); id != "" {
				fields["resource_id"] = id
			}

			log := logger.WithContext(ctx).WithFields(fields)
			switch {
			case res.Status >= 500:
				log.Error("Request failed")
			case res.Status >= 400:
				log.Warn("Request rejected")
			case isQuiet(req.URL.Path):
				log.Debug("Request")
			default:
				log.Info("Request")
			}
			return nil
		}
	}
}

func isQuiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
