package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// ToHTTPError translates resolution errors into HTTP errors. Errors that are
// already HTTP errors, and unknown errors, are returned unchanged.
func ToHTTPError(err error) error {
	if err == nil || httperror.IsHTTPError(err) {
		return err
	}

	switch {
	case errors.Is(err, errors.ErrUnsupportedSource),
		errors.Is(err, errors.ErrMissingIdentifier),
		errors.Is(err, errors.ErrInvalidDocument):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errors.ErrConflict):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "entity is being resolved concurrently, retry later")
	case errors.Is(err, errors.ErrStorage):
		if errors.IsRetryable(err) {
			return httperror.NewHTTPError(http.StatusServiceUnavailable, "storage timeout, retry later")
		}
		return httperror.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
	return err
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		err = ToHTTPError(err)
		if httperror.IsHTTPError(err) {
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			if httperr.Meta != nil {
				meta = httperr.Meta
			}
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
