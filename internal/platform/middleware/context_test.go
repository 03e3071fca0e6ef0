package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	tests := []struct {
		name       string
		requestID  string
		source     string
		wantSource string
	}{
		{"generates request id", "", "", ""},
		{"keeps request id", "req-1", "", ""},
		{"carries source header", "req-2", "dnb", "dnb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(Context(), Logger(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})))

			var gotID, gotSource, gotMethod string
			e.GET("/ping", func(c echo.Context) error {
				ctx := c.Request().Context()
				gotID = context.GetRequestID(ctx)
				gotSource = context.GetSource(ctx)
				gotMethod = context.GetMethod(ctx)
				return c.NoContent(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.requestID != "" {
				req.Header.Set(echo.HeaderXRequestID, tt.requestID)
			}
			if tt.source != "" {
				req.Header.Set(HeaderSource, tt.source)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.NotEmpty(t, gotID)
			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, gotID)
			}
			assert.Equal(t, gotID, rec.Header().Get(echo.HeaderXRequestID))
			assert.Equal(t, tt.wantSource, gotSource)
			assert.Equal(t, http.MethodGet, gotMethod)
		})
	}
}

func TestIsQuiet(t *testing.T) {
	assert.True(t, isQuiet("/api/v1/health/live"))
	assert.True(t, isQuiet("/metrics"))
	assert.False(t, isQuiet("/api/v1/entities/1"))
}
