package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	webhookRequests  *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	eventErrors      *prometheus.CounterVec
	hubClients       prometheus.Gauge
	hubDropped       prometheus.Counter
	natsConnected    prometheus.Gauge
	statusUpdates    *prometheus.CounterVec
	cacheHitTotal    *prometheus.CounterVec
	cacheMissTotal   *prometheus.CounterVec
	webhookDurations prometheus.Histogram
}

// NewMetrics 创建指标收集器并注册到 registerer
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_requests_total",
				Help:      "Total number of webhook requests by outcome",
			},
			[]string{"outcome"}, // accepted, rejected, failed
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_events_published_total",
				Help:      "Total number of change events published",
			},
			[]string{"sink", "event_type"},
		),
		eventErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_event_errors_total",
				Help:      "Total number of change event publish or decode errors",
			},
			[]string{"type"},
		),
		hubClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hub_clients",
				Help:      "Current number of realtime subscribers",
			},
		),
		hubDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hub_slow_clients_dropped_total",
				Help:      "Subscribers dropped because their send queue was full",
			},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
		statusUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_updates_total",
				Help:      "Total number of alert status updates",
			},
			[]string{"status"}, // success, not_found, error
		),
		cacheHitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hit_total",
				Help:      "缓存命中总数（按缓存类型）",
			},
			[]string{"cache_type"},
		),
		cacheMissTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_miss_total",
				Help:      "缓存未命中总数（按缓存类型）",
			},
			[]string{"cache_type"},
		),
		webhookDurations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_duration_seconds",
				Help:      "webhook 处理耗时分布（秒）",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
	}

	reg.MustRegister(
		m.webhookRequests,
		m.eventsPublished,
		m.eventErrors,
		m.hubClients,
		m.hubDropped,
		m.natsConnected,
		m.statusUpdates,
		m.cacheHitTotal,
		m.cacheMissTotal,
		m.webhookDurations,
	)

	return m
}

// IncWebhook 按结果计数
func (m *Metrics) IncWebhook(outcome string) {
	m.webhookRequests.WithLabelValues(outcome).Inc()
}

// ObserveWebhookDuration 观察 webhook 耗时
func (m *Metrics) ObserveWebhookDuration(seconds float64) {
	m.webhookDurations.Observe(seconds)
}

// IncEventsPublished 增加事件发布计数
func (m *Metrics) IncEventsPublished(sink, eventType string) {
	m.eventsPublished.WithLabelValues(sink, eventType).Inc()
}

// IncEventErrors 增加事件错误计数
func (m *Metrics) IncEventErrors(errType string) {
	m.eventErrors.WithLabelValues(errType).Inc()
}

// SetHubClients 设置订阅者数量
func (m *Metrics) SetHubClients(count int) {
	m.hubClients.Set(float64(count))
}

// IncHubDropped 慢订阅者被踢出
func (m *Metrics) IncHubDropped() {
	m.hubDropped.Inc()
}

// SetNATSConnected 设置NATS连接状态
func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}

// IncStatusUpdates 增加状态修改计数
func (m *Metrics) IncStatusUpdates(status string) {
	m.statusUpdates.WithLabelValues(status).Inc()
}

// IncCacheHit 增加缓存命中计数
func (m *Metrics) IncCacheHit(cacheType string) {
	m.cacheHitTotal.WithLabelValues(cacheType).Inc()
}

// IncCacheMiss 增加缓存未命中计数
func (m *Metrics) IncCacheMiss(cacheType string) {
	m.cacheMissTotal.WithLabelValues(cacheType).Inc()
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("alert_hub", prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

// InitMetrics 初始化指标收集器（供main使用）
func InitMetrics() {
	GetMetrics()
}
