package trustrule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/middleware"
	"github.com/Ramsey-B/fern/internal/repositories/trustrule"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/trust"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	echo  *echo.Echo
	repo  *trustrule.MemoryRepository
	cache *trust.CachedProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	f := &fixture{repo: trustrule.NewMemoryRepository()}
	f.cache = trust.NewCachedProvider(f.repo, time.Hour)

	f.echo = echo.New()
	f.echo.HTTPErrorHandler = middleware.Error(logger)
	NewHandler(f.repo, f.cache, logger).Register(f.echo.Group("/api/v1"))
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestUpsertRule(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"field rule", `{"source": "dnb", "field": "revenue_usd", "weight": 10}`, http.StatusOK},
		{"wildcard rule", `{"source": "dnb", "field": "*", "weight": 5}`, http.StatusOK},
		{"dated rule", `{"source": "dnb", "field": "name", "weight": 3, "effective_from": "2024-01-01T00:00:00Z", "effective_to": "2024-12-31T00:00:00Z"}`, http.StatusOK},
		{"missing source", `{"field": "name", "weight": 3}`, http.StatusBadRequest},
		{"negative weight", `{"source": "dnb", "field": "name", "weight": -1}`, http.StatusBadRequest},
		{"unknown field", `{"source": "dnb", "field": "favourite_colour", "weight": 1}`, http.StatusBadRequest},
		{"inverted period", `{"source": "dnb", "field": "name", "weight": 3, "effective_from": "2024-12-31T00:00:00Z", "effective_to": "2024-01-01T00:00:00Z"}`, http.StatusBadRequest},
		{"invalid body", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/v1/trust-rules", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestUpsertRule_DefaultsEffectiveFromToEpoch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/trust-rules", `{"source": "dnb", "field": "revenue_usd", "weight": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var rule models.TrustRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.EffectiveFrom.Equal(time.Unix(0, 0)))
}

func TestUpsertRule_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ruleSet := trust.NewRuleSet(f.cache)

	rec := f.do(http.MethodPost, "/api/v1/trust-rules", `{"source": "dnb", "field": "revenue_usd", "weight": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	weight, err := ruleSet.WeightFor(ctx, "dnb", "revenue_usd", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10, weight)

	rec = f.do(http.MethodPost, "/api/v1/trust-rules", `{"source": "dnb", "field": "revenue_usd", "weight": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	weight, err = ruleSet.WeightFor(ctx, "dnb", "revenue_usd", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, weight)
}

func TestListAndDeleteRules(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`{"source": "dnb", "field": "revenue_usd", "weight": 10}`,
		`{"source": "companies_house", "field": "legal_name", "weight": 10}`,
	} {
		require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/trust-rules", body).Code)
	}

	rec := f.do(http.MethodGet, "/api/v1/trust-rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.TrustRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = f.do(http.MethodGet, "/api/v1/trust-rules?source=dnb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dnb []models.TrustRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dnb))
	require.Len(t, dnb, 1)

	rec = f.do(http.MethodDelete, "/api/v1/trust-rules/"+dnb[0].ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodDelete, "/api/v1/trust-rules/"+dnb[0].ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/trust-rules?source=dnb", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}
