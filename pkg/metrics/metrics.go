package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器。所有方法对 nil 接收者安全，测试中可以直接传 nil
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 消息增强流水线
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	queueDepth    prometheus.Gauge

	// 翻译缓存
	translationCache *prometheus.CounterVec

	// 实时网关
	gatewayMessages    *prometheus.CounterVec
	gatewayConnections prometheus.Gauge

	// 疫情监测
	epidemicAlerts *prometheus.CounterVec
	aggregatorRuns *prometheus.CounterVec
}

// NewMetrics 在 reg 上注册全部指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		stageTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_pipeline_stage_total",
				Help: "Enrichment stage executions by outcome",
			},
			[]string{"stage", "outcome"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_pipeline_duration_seconds",
				Help:    "Enrichment stage duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"stage"},
		),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "triage_pipeline_queue_depth",
			Help: "Messages waiting for enrichment",
		}),

		translationCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_translation_cache_total",
				Help: "Translation cache lookups and stores",
			},
			[]string{"result"},
		),

		gatewayMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_gateway_messages_total",
				Help: "Inbound gateway messages by outcome",
			},
			[]string{"outcome"},
		),
		gatewayConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "triage_gateway_connections",
			Help: "Open realtime connections",
		}),

		epidemicAlerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_epidemic_alerts_total",
				Help: "Epidemic alerts raised by symptom category",
			},
			[]string{"category"},
		),
		aggregatorRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_aggregator_runs_total",
				Help: "Aggregator ticks by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStage 记录流水线阶段结果
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *Metrics) AddQueueDepth(delta float64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(delta)
}

// RecordTranslationCache result is hit, miss or store_error.
func (m *Metrics) RecordTranslationCache(result string) {
	if m == nil {
		return
	}
	m.translationCache.WithLabelValues(result).Inc()
}

// RecordGatewayMessage outcome is accepted, throttled or dropped.
func (m *Metrics) RecordGatewayMessage(outcome string) {
	if m == nil {
		return
	}
	m.gatewayMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetGatewayConnections(n int) {
	if m == nil {
		return
	}
	m.gatewayConnections.Set(float64(n))
}

func (m *Metrics) RecordEpidemicAlert(category string) {
	if m == nil {
		return
	}
	m.epidemicAlerts.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordAggregatorRun(outcome string) {
	if m == nil {
		return
	}
	m.aggregatorRuns.WithLabelValues(outcome).Inc()
}
