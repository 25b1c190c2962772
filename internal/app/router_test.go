package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagency/pdadesk/internal/auth"
	"github.com/portagency/pdadesk/internal/observability"
	"github.com/portagency/pdadesk/internal/pda"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubPDAService struct {
	companies []int64
}

func (s *stubPDAService) Calculate(context.Context, int64, pda.CalculateRequest) (pda.Preview, error) {
	return pda.Preview{}, nil
}

func (s *stubPDAService) Save(context.Context, int64, pda.SaveRequest) (int64, error) { return 1, nil }

func (s *stubPDAService) List(_ context.Context, companyID int64) ([]pda.Summary, error) {
	s.companies = append(s.companies, companyID)
	return []pda.Summary{}, nil
}

func (s *stubPDAService) Detail(context.Context, int64, int64) (pda.Detail, error) {
	return pda.Detail{}, nil
}

func (s *stubPDAService) Taxes(context.Context, int64, pda.TaxRequest) (pda.TaxResult, error) {
	return pda.TaxResult{}, nil
}

func newTestRouter(t *testing.T, db Pinger) (http.Handler, *auth.Tokens, *stubPDAService) {
	t.Helper()
	tokens := auth.NewTokens("router-test-secret", "", time.Hour)
	svc := &stubPDAService{}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := NewRouter(RouterParams{
		Logger:     logger,
		Config:     &Config{AppEnv: "test", RateLimitPerMinute: 1000, AppRequestTimeout: 5 * time.Second},
		DB:         db,
		Tokens:     tokens,
		Metrics:    observability.NewMetrics(),
		PDAHandler: pda.NewHandler(logger, svc),
	})
	return h, tokens, svc
}

func get(h http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzReportsDatabase(t *testing.T) {
	h, _, _ := newTestRouter(t, stubPinger{})
	rr := get(h, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	h, _, _ = newTestRouter(t, stubPinger{err: errors.New("connection refused")})
	rr = get(h, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h, tokens, svc := newTestRouter(t, nil)

	rr := get(h, "/api/pda/", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	raw, _, err := tokens.Issue(&auth.User{ID: 5, CompanyID: 77, Name: "ops", Role: "agent"})
	require.NoError(t, err)
	rr = get(h, "/api/pda/", raw)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []int64{77}, svc.companies)
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)
	get(h, "/api/pda/", "")

	rr := get(h, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `pdadesk_http_requests_total{code="401",route="/api/pda`), rr.Body.String())
}

func TestUnknownRouteIsProblemJSON(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)
	rr := get(h, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRateLimitReturnsProblem(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := NewRouter(RouterParams{
		Logger: logger,
		Config: &Config{AppEnv: "test", RateLimitPerMinute: 2},
		Tokens: auth.NewTokens("router-test-secret", "", time.Hour),
	})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(h, "/healthz", "").Code)
	}
	rr := get(h, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "rate limit")
}
