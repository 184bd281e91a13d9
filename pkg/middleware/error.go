package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error renders handler errors as an ErrorResponse. Store outages and anomalies
// log at error level; rejected requests only warn.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()
		code, body := describe(err)

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status": code,
			"route":  c.Path(),
		})
		if code >= http.StatusInternalServerError {
			log.Error("Request failed")
		} else {
			log.Warn("Request rejected")
		}

		body.RequestID = context.GetRequestID(ctx)
		body.TraceID = tracing.GetTraceID(ctx)
		_ = c.JSON(code, body)
	}
}

// describe picks the status and public message for err. Anything that is not
// an echo or ectoerror HTTP error is a 500 with the generic status text.
func describe(err error) (int, ErrorResponse) {
	if httperror.IsHTTPError(err) {
		he := httperror.ToHTTPError(err)
		body := ErrorResponse{Message: he.Error(), Meta: he.Meta}
		if body.Meta == nil {
			body.Meta = map[string]any{}
		}
		return httperror.GetStatusCode(err), body
	}

	code := http.StatusInternalServerError
	body := ErrorResponse{Message: http.StatusText(code), Meta: map[string]any{}}
	var ee *echo.HTTPError
	if errors.As(err, &ee) {
		code = ee.Code
		body.Message = http.StatusText(code)
		if msg, ok := ee.Message.(string); ok {
			body.Message = msg
		}
	}
	return code, body
}
