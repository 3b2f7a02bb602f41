package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegouvfr/sill-web/internal/domain"
)

func TestProfileMetrics(t *testing.T) {
	m := NewProfileMetrics(NewRegistry())

	m.RecordProfileUpdate(domain.FieldEmail, nil)
	m.RecordProfileUpdate(domain.FieldEmail, errors.New("boom"))
	m.RecordProfileUpdate(domain.FieldAgencyName, nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Updates.WithLabelValues("email", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Updates.WithLabelValues("email", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Updates.WithLabelValues("agencyName", "success")), 0)
}

func TestBackendMetrics(t *testing.T) {
	m := NewBackendMetrics(NewRegistry())

	m.RecordCall("getSoftwares", 20*time.Millisecond, nil)
	m.RecordCall("getSoftwares", time.Second, errors.New("down"))
	m.RecordRetry("getSoftwares")
	m.RecordBreakerState("open")

	assert.InDelta(t, 1, testutil.ToFloat64(m.CallsTotal.WithLabelValues("getSoftwares", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CallsTotal.WithLabelValues("getSoftwares", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Retries.WithLabelValues("getSoftwares")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.BreakerState), 0)

	m.RecordBreakerState("closed")
	assert.InDelta(t, 0, testutil.ToFloat64(m.BreakerState), 0)
}

func TestSessionMetrics(t *testing.T) {
	m := NewSessionMetrics(NewRegistry())

	m.SessionCreated()
	m.SessionCreated()
	m.SessionDropped("idle")

	assert.InDelta(t, 1, testutil.ToFloat64(m.Active), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Created), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Evicted.WithLabelValues("idle")), 0)
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/catalog", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/health/live", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/catalog", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/catalog", "200")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestHTTPMetrics_RateLimited(t *testing.T) {
	m := NewHTTPMetrics(NewRegistry())

	m.RecordRateLimited("profile")
	m.RecordRateLimited("profile")

	assert.InDelta(t, 2, testutil.ToFloat64(m.RateLimited.WithLabelValues("profile")), 0)

	var disabled *HTTPMetrics
	assert.NotPanics(t, func() { disabled.RecordRateLimited("auth") })
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	NewCacheMetrics(reg).RecordHit("memory")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sillweb_reference_cache_hits_total{layer="memory"} 1`)
}

func TestRegistry_BuildInfo(t *testing.T) {
	reg := NewRegistry()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sillweb_build_info{")
	assert.Contains(t, rec.Body.String(), `version="dev"`)
}

func TestRedisMetrics(t *testing.T) {
	m := NewRedisMetrics(NewRegistry())

	m.RecordOperation("get", time.Millisecond, nil)
	m.RecordOperation("get", time.Millisecond, errors.New("timeout"))
	m.RecordDialError()

	assert.InDelta(t, 1, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DialErrors), 0)
}

func TestRedisMetrics_BreakerState(t *testing.T) {
	m := NewRedisMetrics(NewRegistry())

	m.RecordBreakerState("half-open")
	assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerState), 0)

	m.RecordBreakerState("unknown")
	assert.InDelta(t, -1, testutil.ToFloat64(m.BreakerState), 0)
}
