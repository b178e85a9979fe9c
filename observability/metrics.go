package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	streamMetricsOnce sync.Once
	streamRegistry    *StreamMetrics

	indexerMetricsOnce sync.Once
	indexerRegistry    *IndexerMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "veritynet",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. A non-zero code should be
// the JSON-RPC error code that was ultimately written to the response.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// StreamMetrics captures the health of the websocket event feed.
type StreamMetrics struct {
	subscribers prometheus.Gauge
	delivered   prometheus.Counter
	dropped     *prometheus.CounterVec
}

// Stream returns the singleton metrics registry for the event stream.
func Stream() *StreamMetrics {
	streamMetricsOnce.Do(func() {
		streamRegistry = &StreamMetrics{
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "veritynet",
				Subsystem: "stream",
				Name:      "subscribers",
				Help:      "Number of websocket clients currently subscribed to the event feed.",
			}),
			delivered: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "stream",
				Name:      "events_delivered_total",
				Help:      "Count of events written to websocket subscribers.",
			}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "stream",
				Name:      "events_dropped_total",
				Help:      "Count of events dropped before delivery segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			streamRegistry.subscribers,
			streamRegistry.delivered,
			streamRegistry.dropped,
		)
	})
	return streamRegistry
}

// ClientConnected records a new websocket subscriber.
func (m *StreamMetrics) ClientConnected() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// ClientDisconnected records a departed websocket subscriber.
func (m *StreamMetrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

// RecordDelivery increments the delivered-event counter.
func (m *StreamMetrics) RecordDelivery() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

// RecordDrop increments the dropped-event counter for the supplied reason.
func (m *StreamMetrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// IndexerMetrics captures the progress of the event indexer service.
type IndexerMetrics struct {
	indexed    prometheus.Counter
	duplicates prometheus.Counter
	reconnects prometheus.Counter
	lastSeq    prometheus.Gauge
}

// Indexer returns the singleton metrics registry for the indexer service.
func Indexer() *IndexerMetrics {
	indexerMetricsOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			indexed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "indexer",
				Name:      "events_indexed_total",
				Help:      "Count of events persisted by the indexer.",
			}),
			duplicates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "indexer",
				Name:      "events_duplicate_total",
				Help:      "Count of events skipped because their sequence was already stored.",
			}),
			reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "veritynet",
				Subsystem: "indexer",
				Name:      "reconnects_total",
				Help:      "Count of websocket reconnect attempts against the node.",
			}),
			lastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "veritynet",
				Subsystem: "indexer",
				Name:      "last_indexed_seq",
				Help:      "Highest event sequence number persisted so far.",
			}),
		}
		prometheus.MustRegister(
			indexerRegistry.indexed,
			indexerRegistry.duplicates,
			indexerRegistry.reconnects,
			indexerRegistry.lastSeq,
		)
	})
	return indexerRegistry
}

// RecordIndexed notes a newly persisted event and advances the sequence gauge.
func (m *IndexerMetrics) RecordIndexed(seq uint64) {
	if m == nil {
		return
	}
	m.indexed.Inc()
	m.lastSeq.Set(float64(seq))
}

// RecordDuplicate notes an event skipped because its sequence was already stored.
func (m *IndexerMetrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RecordReconnect notes a websocket reconnect attempt against the node.
func (m *IndexerMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
