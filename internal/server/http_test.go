package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigi/quizmaster/internal/metrics"
)

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := NewHandler(zerolog.Nop(), Deps{Redis: client})

	rec := serve(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = serve(h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "service_unavailable")
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)
	collectors.SessionOpened()

	h := NewHandler(zerolog.Nop(), Deps{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	rec := serve(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quizmaster_live_sessions 1")
}

func TestOptionalRoutesAreSkipped(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Deps{})

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/v1/sessions").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/ws/sessions").Code)
}

func TestUpgraderOriginCheck(t *testing.T) {
	open := NewUpgrader(nil)
	strict := NewUpgrader([]string{"https://quiz.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws/sessions", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.True(t, open.CheckOrigin(req))
	assert.False(t, strict.CheckOrigin(req))

	req.Header.Set("Origin", "https://quiz.example")
	assert.True(t, strict.CheckOrigin(req))
}
