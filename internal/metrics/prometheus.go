package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the Prometheus collectors for the metric set
// spec.md §6 names, plus the oplog counters SPEC_FULL.md's DOMAIN STACK
// expansion adds.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	createInstanceSeconds prometheus.Histogram
	resumeInstanceSeconds prometheus.Histogram

	invocationTotal            *prometheus.CounterVec // labels: mode, outcome
	invocationConsumptionTotal prometheus.Counter
	hostFunctionCallTotal      *prometheus.CounterVec // labels: interface, name

	grpcSuccessSeconds prometheus.Histogram
	grpcFailureSeconds prometheus.Histogram

	assignedShardCount prometheus.Gauge

	oplogCommitTotal             prometheus.Counter
	oplogCommitBytes             prometheus.Counter
	oplogPayloadExternalizedTotal prometheus.Counter

	processCPUSecondsTotal prometheus.Gauge
}

// defaultBuckets are the histogram buckets used when InitPrometheus is
// called with a nil or empty buckets slice (in milliseconds).
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem under the
// given namespace, registering every collector spec.md §6 names.
func InitPrometheus(namespace string, buckets []float64) *PrometheusMetrics {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	reg := prometheus.NewRegistry()
	m := &PrometheusMetrics{
		registry: reg,

		createInstanceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "create_instance_seconds",
			Help:      "Latency of worker creation (spec.md §4.3).",
			Buckets:   buckets,
		}),
		resumeInstanceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resume_instance_seconds",
			Help:      "Latency of resuming an interrupted worker.",
			Buckets:   buckets,
		}),
		invocationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_total",
			Help:      "Count of invocations by mode (fire-and-forget vs await) and outcome.",
		}, []string{"mode", "outcome"}),
		invocationConsumptionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_consumption_total",
			Help:      "Total fuel consumed servicing invocations.",
		}),
		hostFunctionCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_function_call_total",
			Help:      "Count of host function calls by WIT interface and function name.",
		}, []string{"interface", "name"}),
		grpcSuccessSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_success_seconds",
			Help:      "Latency of successful gRPC routing calls.",
			Buckets:   buckets,
		}),
		grpcFailureSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_failure_seconds",
			Help:      "Latency of failed gRPC routing calls.",
			Buckets:   buckets,
		}),
		assignedShardCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assigned_shard_count",
			Help:      "Number of shards currently assigned to this executor.",
		}),
		oplogCommitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oplog_commit_total",
			Help:      "Count of oplog commit batches flushed to IndexedStorage.",
		}),
		oplogCommitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oplog_commit_bytes",
			Help:      "Total encoded bytes written across oplog commits.",
		}),
		oplogPayloadExternalizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oplog_payload_externalized_total",
			Help:      "Count of oplog payloads written to BlobStorage instead of inlined.",
		}),
		processCPUSecondsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_seconds_total",
			Help:      "Accumulated user+system CPU time for this process, sampled via getrusage on Linux.",
		}),
	}

	reg.MustRegister(
		m.createInstanceSeconds,
		m.resumeInstanceSeconds,
		m.invocationTotal,
		m.invocationConsumptionTotal,
		m.hostFunctionCallTotal,
		m.grpcSuccessSeconds,
		m.grpcFailureSeconds,
		m.assignedShardCount,
		m.oplogCommitTotal,
		m.oplogCommitBytes,
		m.oplogPayloadExternalizedTotal,
		m.processCPUSecondsTotal,
	)

	promMetrics = m
	return m
}

// Prometheus returns the process-wide PrometheusMetrics instance, or nil if
// InitPrometheus has not been called.
func Prometheus() *PrometheusMetrics {
	return promMetrics
}

// Handler exposes the registry over HTTP for scraping.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) ObserveCreateInstance(seconds float64) {
	m.createInstanceSeconds.Observe(seconds)
}

func (m *PrometheusMetrics) ObserveResumeInstance(seconds float64) {
	m.resumeInstanceSeconds.Observe(seconds)
}

// RecordInvocation increments invocation_total{mode,outcome} and, when fuel
// is non-zero, invocation_consumption_total.
func (m *PrometheusMetrics) RecordInvocation(mode, outcome string, fuelConsumed uint64) {
	m.invocationTotal.WithLabelValues(mode, outcome).Inc()
	if fuelConsumed > 0 {
		m.invocationConsumptionTotal.Add(float64(fuelConsumed))
	}
}

func (m *PrometheusMetrics) RecordHostFunctionCall(iface, name string) {
	m.hostFunctionCallTotal.WithLabelValues(iface, name).Inc()
}

func (m *PrometheusMetrics) ObserveGRPCCall(seconds float64, success bool) {
	if success {
		m.grpcSuccessSeconds.Observe(seconds)
	} else {
		m.grpcFailureSeconds.Observe(seconds)
	}
}

func (m *PrometheusMetrics) SetAssignedShardCount(n int) {
	m.assignedShardCount.Set(float64(n))
}

func (m *PrometheusMetrics) RecordOplogCommit(entries int, bytes int) {
	m.oplogCommitTotal.Inc()
	m.oplogCommitBytes.Add(float64(bytes))
}

func (m *PrometheusMetrics) RecordOplogPayloadExternalized() {
	m.oplogPayloadExternalizedTotal.Inc()
}

// SampleProcessCPU refreshes process_cpu_seconds_total from the OS. Callers
// run this periodically (the daemon ticks it alongside its debug HTTP
// server); it is not updated on every scrape since getrusage is a syscall.
func (m *PrometheusMetrics) SampleProcessCPU() {
	m.processCPUSecondsTotal.Set(processCPUSeconds())
}
