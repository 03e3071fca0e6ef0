package middleware

import (
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderSource names the data provider that sent the request
const HeaderSource = "X-Source"

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			if source := req.Header.Get(HeaderSource); source != "" {
				ctx = context.SetSource(ctx, source)
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
