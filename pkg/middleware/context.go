package middleware

import (
	"net/http"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Context tags every request with an id, echoed back on the response, so the
// contact log lines, error bodies and published events of one call can be
// joined.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := requestID(req)
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			ctx := context.SetRequestID(req.Context(), id)
			ctx = context.SetSource(ctx, context.SourceHTTP)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

func requestID(req *http.Request) string {
	if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}
