package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenRefresh("toyota", true)
	c.RecordTokenRefresh("toyota", false)
	c.RecordTokenRefresh("toyota", false)
	c.RecordBrandFetch("subaru", true)
	c.RecordVehicleFetch("subaru", false)
	c.RecordCacheLookup(true)
	c.RecordCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.tokenRefresh.WithLabelValues("toyota", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tokenRefresh.WithLabelValues("toyota", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.brandFetch.WithLabelValues("subaru", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.vehicleFetch.WithLabelValues("subaru", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
}

func TestCollector_RefreshCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRefreshCycle(time.Second, 3, nil)
	c.RecordRefreshCycle(time.Second, 0, errors.New("store unreadable"))

	assert.Equal(t, 3.0, testutil.ToFloat64(c.vehicles))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycleErrors))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCacheLookup(true)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "carwatch_cache_lookups_total")
}
