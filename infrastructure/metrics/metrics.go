// Package metrics provides Prometheus metrics collection for the
// orchestration core, re-scoped to saga, limit, queue, and breaker
// observability.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paymentflow/core/infrastructure/config"
)

// Metrics holds all Prometheus collectors for the orchestration core.
type Metrics struct {
	SagaStepTotal     *prometheus.CounterVec
	SagaStepDuration  *prometheus.HistogramVec
	SagaCompensations *prometheus.CounterVec
	SagasActive       prometheus.Gauge
	SagasTerminal     *prometheus.CounterVec

	BreakerStateChanges *prometheus.CounterVec
	RetryAttempts       *prometheus.CounterVec

	LimitReservations *prometheus.CounterVec
	LimitBucketUsage  *prometheus.GaugeVec

	QueueDepth      *prometheus.GaugeVec
	QueueRetries    *prometheus.CounterVec
	QueuePoisonTail *prometheus.CounterVec

	ServiceInfo *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom
// registerer (tests use a fresh prometheus.NewRegistry() to avoid collisions).
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		SagaStepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_step_total",
			Help: "Total number of saga step executions by step and outcome",
		}, []string{"step", "outcome"}),
		SagaStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saga_step_duration_seconds",
			Help:    "Saga step execution duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"step"}),
		SagaCompensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Total number of compensator invocations by step and outcome",
		}, []string{"step", "outcome"}),
		SagasActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sagas_active",
			Help: "Current number of non-terminal saga instances",
		}),
		SagasTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sagas_terminal_total",
			Help: "Total number of sagas reaching a terminal status",
		}, []string{"status"}),

		BreakerStateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Total number of circuit breaker state transitions",
		}, []string{"service", "from", "to"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts by op and outcome",
		}, []string{"op", "outcome"}),

		LimitReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "limit_reservations_total",
			Help: "Total number of limit reservation outcomes",
		}, []string{"outcome"}),
		LimitBucketUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "limit_bucket_used_amount",
			Help: "Current used amount for a limit bucket",
		}, []string{"bucket_kind"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queued_message_depth",
			Help: "Current number of queued messages by status",
		}, []string{"status"}),
		QueueRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queued_message_retries_total",
			Help: "Total number of queued message retry attempts",
		}, []string{"service"}),
		QueuePoisonTail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queued_message_expired_total",
			Help: "Total number of queued messages that expired without success",
		}, []string{"service"}),

		ServiceInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "service_info",
			Help: "Static service build/environment info",
		}, []string{"service", "version", "environment"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.SagaStepTotal, m.SagaStepDuration, m.SagaCompensations,
			m.SagasActive, m.SagasTerminal,
			m.BreakerStateChanges, m.RetryAttempts,
			m.LimitReservations, m.LimitBucketUsage,
			m.QueueDepth, m.QueueRetries, m.QueuePoisonTail,
			m.ServiceInfo,
		)
	}

	env, _ := config.ParseEnvironment(config.GetEnv("APP_ENV", "development"))
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", string(env)).Set(1)

	return m
}

// RecordSagaStep records the outcome and duration of one saga step execution.
func (m *Metrics) RecordSagaStep(step, outcome string, duration time.Duration) {
	m.SagaStepTotal.WithLabelValues(step, outcome).Inc()
	m.SagaStepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordCompensation records a compensator invocation outcome.
func (m *Metrics) RecordCompensation(step, outcome string) {
	m.SagaCompensations.WithLabelValues(step, outcome).Inc()
}

// RecordSagaTerminal records a saga reaching a terminal status.
func (m *Metrics) RecordSagaTerminal(status string) {
	m.SagasTerminal.WithLabelValues(status).Inc()
}

// RecordBreakerStateChange records a circuit breaker transition.
func (m *Metrics) RecordBreakerStateChange(service, from, to string) {
	m.BreakerStateChanges.WithLabelValues(service, from, to).Inc()
}

// RecordRetry records a retry attempt outcome.
func (m *Metrics) RecordRetry(op, outcome string) {
	m.RetryAttempts.WithLabelValues(op, outcome).Inc()
}

// RecordLimitReservation records a reserve/consume/release/expire outcome.
func (m *Metrics) RecordLimitReservation(outcome string) {
	m.LimitReservations.WithLabelValues(outcome).Inc()
}

// SetLimitBucketUsage records the current used_amount for a bucket kind.
func (m *Metrics) SetLimitBucketUsage(bucketKind string, amount float64) {
	m.LimitBucketUsage.WithLabelValues(bucketKind).Set(amount)
}

// SetQueueDepth records the number of queued messages currently in a status.
func (m *Metrics) SetQueueDepth(status string, depth int) {
	m.QueueDepth.WithLabelValues(status).Set(float64(depth))
}

// RecordQueueRetry records a queued-message retry attempt for a backend service.
func (m *Metrics) RecordQueueRetry(service string) {
	m.QueueRetries.WithLabelValues(service).Inc()
}

// RecordQueueExpired records a queued message expiring without success.
func (m *Metrics) RecordQueueExpired(service string) {
	m.QueuePoisonTail.WithLabelValues(service).Inc()
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes (once) and returns the process-wide Metrics instance.
// This is the one deliberately global, mutable registry in the package: a
// clearly-marked process-wide metrics registry.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the process-wide Metrics instance, initializing a default
// one if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("orchestrator")
	}
	return globalMetrics
}
