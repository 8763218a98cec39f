package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSnapshotFetch(t *testing.T) {
	before := testutil.ToFloat64(snapshotFetchesTotal.WithLabelValues("ok"))
	ObserveSnapshotFetch("ok", 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(snapshotFetchesTotal.WithLabelValues("ok")))
}

func TestCounters(t *testing.T) {
	cd := testutil.ToFloat64(cooldownsTotal)
	IncCooldown()
	assert.Equal(t, cd+1, testutil.ToFloat64(cooldownsTotal))

	rows := testutil.ToFloat64(rowsTotal)
	AddRows(12)
	assert.Equal(t, rows+12, testutil.ToFloat64(rowsTotal))

	miss := testutil.ToFloat64(missingHoursTotal)
	IncMissingHour()
	assert.Equal(t, miss+1, testutil.ToFloat64(missingHoursTotal))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(Handler()))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/ping", "GET", "200"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/ping", "GET", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "windhindcast_http_requests_total")
}
