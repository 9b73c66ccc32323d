// Package metrics 引擎的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"ctoken-engine-sol/internal/logic/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ctoken"

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics 每个实例持有独立的 registry，测试之间互不干扰
type Metrics struct {
	registry *prometheus.Registry

	transitionsTotal   *prometheus.CounterVec   // kind, result
	transitionErrors   *prometheus.CounterVec   // kind, error
	transitionDuration *prometheus.HistogramVec // kind
	ledgerSequence     prometheus.Gauge
	treeNextIndex      *prometheus.GaugeVec // tree
	treeCapacity       *prometheus.GaugeVec // tree
	kafkaPublished     *prometheus.CounterVec // topic
	kafkaFailures      *prometheus.CounterVec // topic
	requestsConsumed   *prometheus.CounterVec // result
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Total number of state transitions by kind and result",
		}, []string{"kind", "result"}),

		transitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transition_errors_total",
			Help:      "Rejected state transitions by kind and error name",
		}, []string{"kind", "error"}),

		transitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transition_duration_seconds",
			Help:      "Duration of state transitions including the ledger commit",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms ~ 4s
		}, []string{"kind"}),

		ledgerSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sequence",
			Help:      "Last committed ledger sequence number",
		}),

		treeNextIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tree_next_index",
			Help:      "Next free leaf index per merkle tree",
		}, []string{"tree"}),

		treeCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tree_capacity",
			Help:      "Leaf capacity per merkle tree",
		}, []string{"tree"}),

		kafkaPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "events_published_total",
			Help:      "Events delivered to kafka by topic",
		}, []string{"topic"}),

		kafkaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "publish_failures_total",
			Help:      "Kafka messages that failed delivery by topic",
		}, []string{"topic"}),

		requestsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "requests_total",
			Help:      "Transition requests read from kafka by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.transitionsTotal,
		m.transitionErrors,
		m.transitionDuration,
		m.ledgerSequence,
		m.treeNextIndex,
		m.treeCapacity,
		m.kafkaPublished,
		m.kafkaFailures,
		m.requestsConsumed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransition 记录一次转换的结果与耗时，err 为 nil 表示成功
func (m *Metrics) ObserveTransition(kind core.TransitionKind, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	label := kind.String()
	m.transitionDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err != nil {
		m.transitionsTotal.WithLabelValues(label, ResultFailed).Inc()
		m.transitionErrors.WithLabelValues(label, core.ErrorNameOf(err)).Inc()
		return
	}
	m.transitionsTotal.WithLabelValues(label, ResultOK).Inc()
}

func (m *Metrics) SetSequence(seq uint64) {
	if m == nil {
		return
	}
	m.ledgerSequence.Set(float64(seq))
}

func (m *Metrics) SetTreeFill(tree string, nextIndex, capacity uint64) {
	if m == nil {
		return
	}
	m.treeNextIndex.WithLabelValues(tree).Set(float64(nextIndex))
	m.treeCapacity.WithLabelValues(tree).Set(float64(capacity))
}

func (m *Metrics) AddPublished(topic string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.kafkaPublished.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) AddPublishFailures(topic string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.kafkaFailures.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) IncConsumed(result string) {
	if m == nil {
		return
	}
	m.requestsConsumed.WithLabelValues(result).Inc()
}
