package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(reg prometheus.Registerer) (*gin.Engine, *PrometheusMiddleware) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	pm := NewPrometheusMiddleware("test", reg)
	r.Use(NewRequestLogger(logging.NewWriterLogger("http", io.Discard, logging.OFF)).Handler(), pm.Handler())
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("trace_id"))
	})
	r.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	return r, pm
}

func TestRequestLogger_SetsTraceID(t *testing.T) {
	r, _ := newRouter(prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
	assert.Equal(t, rec.Body.String(), rec.Header().Get("X-Trace-Id"))
}

func TestPrometheusMiddleware_CountsErrors(t *testing.T) {
	r, pm := newRouter(prometheus.NewRegistry())

	for _, path := range []string{"/ok", "/fail", "/fail", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.reqErrors.WithLabelValues("GET", "/fail", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.reqErrors.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.reqInflight))
	assert.Equal(t, 3, testutil.CollectAndCount(pm.reqDuration))
}
