package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/labstack/echo/v4"
)

// Logger writes one line per request once the error handler has rendered the
// response. Health and metrics scrapes log at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			log := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":  context.GetRequestID(req.Context()),
				"method":      req.Method,
				"route":       c.Path(),
				"status":      res.Status,
				"bytes_out":   res.Size,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_ip":   c.RealIP(),
			})

			switch {
			case isScrape(req.URL.Path):
				log.Debug("Served scrape")
			case res.Status >= http.StatusInternalServerError:
				log.Warn("Served request with server error")
			default:
				log.Info("Served request")
			}
			return nil
		}
	}
}

func isScrape(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/api/health") || strings.HasPrefix(path, "/api/v1/health")
}
