package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for authentication attempts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Collector holds all Prometheus metrics for the authentication backend
type Collector struct {
	// Authentication metrics
	AuthAttempts *prometheus.CounterVec

	// Connection lifecycle metrics
	Reconnects     prometheus.Counter
	ConnectErrors  prometheus.Counter
	LivenessProbes prometheus.Counter
	ProbeFailures  prometheus.Counter

	// Repository metrics
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// Account metrics
	UsersAdded   prometheus.Counter
	UsersRemoved prometheus.Counter
}

// NewCollector creates a new metrics collector with all Prometheus metrics
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "sqlauth"
	}

	return &Collector{
		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by mechanism and outcome",
		}, []string{"mechanism", "outcome"}),

		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_reconnects_total",
			Help:      "Total number of database connection (re)builds",
		}),
		ConnectErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_connect_errors_total",
			Help:      "Total number of failed database connection attempts",
		}),
		LivenessProbes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_liveness_probes_total",
			Help:      "Total number of executed connection liveness probes",
		}),
		ProbeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_liveness_probe_failures_total",
			Help:      "Total number of liveness probes that detected a dead connection",
		}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Statement execution latency by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Statement execution failures by operation",
		}, []string{"operation"}),

		UsersAdded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_added_total",
			Help:      "Total number of accounts created",
		}),
		UsersRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_removed_total",
			Help:      "Total number of accounts removed",
		}),
	}
}

// RecordAuthAttempt records one authentication attempt. Collector may be nil.
func (c *Collector) RecordAuthAttempt(mechanism, outcome string) {
	if c == nil {
		return
	}
	c.AuthAttempts.WithLabelValues(mechanism, outcome).Inc()
}

// RecordReconnect records a successful connection (re)build.
func (c *Collector) RecordReconnect() {
	if c == nil {
		return
	}
	c.Reconnects.Inc()
}

// RecordConnectError records a failed connection attempt.
func (c *Collector) RecordConnectError() {
	if c == nil {
		return
	}
	c.ConnectErrors.Inc()
}

// RecordLivenessProbe records a probe execution and whether it failed.
func (c *Collector) RecordLivenessProbe(failed bool) {
	if c == nil {
		return
	}
	c.LivenessProbes.Inc()
	if failed {
		c.ProbeFailures.Inc()
	}
}

// ObserveQuery records the latency of one statement execution.
func (c *Collector) ObserveQuery(operation string, start time.Time) {
	if c == nil {
		return
	}
	c.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordQueryError records a statement execution failure.
func (c *Collector) RecordQueryError(operation string) {
	if c == nil {
		return
	}
	c.QueryErrors.WithLabelValues(operation).Inc()
}

// RecordUserAdded records a created account.
func (c *Collector) RecordUserAdded() {
	if c == nil {
		return
	}
	c.UsersAdded.Inc()
}

// RecordUserRemoved records a removed account.
func (c *Collector) RecordUserRemoved() {
	if c == nil {
		return
	}
	c.UsersRemoved.Inc()
}
