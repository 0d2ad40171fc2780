// Package metrics 提供 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 指标记录接口，服务层依赖此接口
type Recorder interface {
	RecordTokenRefresh(brand string, success bool)
	RecordBrandFetch(brand string, success bool)
	RecordVehicleFetch(brand string, success bool)
	RecordCacheLookup(hit bool)
	RecordRefreshCycle(duration time.Duration, vehicles int, err error)
}

// Collector Prometheus 指标实现
type Collector struct {
	tokenRefresh  *prometheus.CounterVec
	brandFetch    *prometheus.CounterVec
	vehicleFetch  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cycleErrors   prometheus.Counter
	vehicles      prometheus.Gauge
}

// NewCollector 创建 Collector 并注册到 reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carwatch_token_refresh_total",
			Help: "令牌刷新次数",
		}, []string{"brand", "result"}),
		brandFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carwatch_brand_fetch_total",
			Help: "品牌车辆列表获取次数",
		}, []string{"brand", "result"}),
		vehicleFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carwatch_vehicle_fetch_total",
			Help: "单车详情获取次数",
		}, []string{"brand", "result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carwatch_cache_lookups_total",
			Help: "快照缓存查询次数",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "carwatch_refresh_cycle_seconds",
			Help:    "定时刷新耗时（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carwatch_refresh_cycle_errors_total",
			Help: "定时刷新失败次数",
		}),
		vehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carwatch_vehicles",
			Help: "最近一次刷新得到的车辆数",
		}),
	}

	reg.MustRegister(
		c.tokenRefresh,
		c.brandFetch,
		c.vehicleFetch,
		c.cacheLookups,
		c.cycleDuration,
		c.cycleErrors,
		c.vehicles,
	)

	return c
}

// RecordTokenRefresh 记录令牌刷新结果
func (c *Collector) RecordTokenRefresh(brand string, success bool) {
	c.tokenRefresh.WithLabelValues(brand, result(success)).Inc()
}

// RecordBrandFetch 记录品牌列表获取结果
func (c *Collector) RecordBrandFetch(brand string, success bool) {
	c.brandFetch.WithLabelValues(brand, result(success)).Inc()
}

// RecordVehicleFetch 记录单车详情获取结果
func (c *Collector) RecordVehicleFetch(brand string, success bool) {
	c.vehicleFetch.WithLabelValues(brand, result(success)).Inc()
}

// RecordCacheLookup 记录缓存命中情况
func (c *Collector) RecordCacheLookup(hit bool) {
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordRefreshCycle 记录一次定时刷新
func (c *Collector) RecordRefreshCycle(duration time.Duration, vehicles int, err error) {
	c.cycleDuration.Observe(duration.Seconds())
	if err != nil {
		c.cycleErrors.Inc()
		return
	}
	c.vehicles.Set(float64(vehicles))
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler Prometheus 抓取接口
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop 不记录任何指标
type Nop struct{}

func (Nop) RecordTokenRefresh(string, bool) {}
func (Nop) RecordBrandFetch(string, bool) {}
func (Nop) RecordVehicleFetch(string, bool) {}
func (Nop) RecordCacheLookup(bool) {}
func (Nop) RecordRefreshCycle(time.Duration, int, error) {}
