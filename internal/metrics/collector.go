// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/agentos/studio/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 workflow.Observer
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 工作流运行指标
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runsInFlight prometheus.Gauge

	// 节点执行指标
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec
	nodeTokensUsed      *prometheus.CounterVec

	// 执行记录存储指标
	storeOperationDuration *prometheus.HistogramVec
	storeErrorsTotal       *prometheus.CounterVec

	// 数据库连接池指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

var _ workflow.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器，注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建指标收集器，注册到指定 registry
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 工作流运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of finished workflow runs",
		},
		[]string{"status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"status"},
	)

	c.runsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_runs_in_flight",
			Help:      "Number of workflow runs currently executing",
		},
	)

	// 节点执行指标
	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"kind", "status"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Node execution duration in seconds, retries included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"kind"},
	)

	c.nodeTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_tokens_used_total",
			Help:      "Total number of tokens consumed by nodes",
		},
		[]string{"kind"},
	)

	// 存储指标
	c.storeOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "record_store_operation_duration_seconds",
			Help:      "Execution record store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	c.storeErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_store_errors_total",
			Help:      "Total number of failed record store operations",
		},
		[]string{"backend", "operation"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔀 工作流事件
// =============================================================================

// OnEvent 实现 workflow.Observer，将执行事件折算为指标
func (c *Collector) OnEvent(e workflow.Event) {
	switch e.Type {
	case workflow.EventRunStarted:
		c.runsInFlight.Inc()

	case workflow.EventRunCompleted, workflow.EventRunFailed:
		c.runsInFlight.Dec()
		c.runsTotal.WithLabelValues(string(e.Status)).Inc()
		c.runDuration.WithLabelValues(string(e.Status)).Observe(e.Duration.Seconds())

	case workflow.EventNodeCompleted, workflow.EventNodeFailed:
		kind := string(e.NodeKind)
		status := "success"
		if e.Type == workflow.EventNodeFailed {
			status = "error"
		}
		c.nodeExecutionsTotal.WithLabelValues(kind, status).Inc()
		c.nodeDuration.WithLabelValues(kind).Observe(e.Duration.Seconds())
		if e.Result != nil && e.Result.TokensUsed > 0 {
			c.nodeTokensUsed.WithLabelValues(kind).Add(float64(e.Result.TokensUsed))
		}
	}
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOperation 记录执行记录存储操作
func (c *Collector) RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	c.storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		c.storeErrorsTotal.WithLabelValues(backend, operation).Inc()
	}
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
