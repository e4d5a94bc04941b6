package goEnroll

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by goEnroll APIs.
//
// MetricID instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type MetricID uint16

// Counter and histogram identifiers tracked by the engine.
const (
	// MetricEnrollmentIssued is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentIssued MetricID = iota

	// MetricEnrollmentIssueFailure is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentIssueFailure

	// MetricEnrollmentConfirmSuccess is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentConfirmSuccess

	// MetricEnrollmentConfirmFailure is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentConfirmFailure

	// MetricEnrollmentAttemptsExceeded is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentAttemptsExceeded

	// MetricEnrollmentCancelled is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentCancelled

	// MetricEnrollmentExpired is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentExpired

	// MetricEnrollmentRateLimited is an exported constant or variable used by the enrollment engine.
	MetricEnrollmentRateLimited

	// MetricCodeVerifySuccess is an exported constant or variable used by the enrollment engine.
	MetricCodeVerifySuccess

	// MetricCodeVerifyFailure is an exported constant or variable used by the enrollment engine.
	MetricCodeVerifyFailure

	// MetricCodeReplayRejected is an exported constant or variable used by the enrollment engine.
	MetricCodeReplayRejected

	// MetricTOTPDisabled is an exported constant or variable used by the enrollment engine.
	MetricTOTPDisabled

	// MetricBackupCodeUsed is an exported constant or variable used by the enrollment engine.
	MetricBackupCodeUsed

	// MetricBackupCodeFailed is an exported constant or variable used by the enrollment engine.
	MetricBackupCodeFailed

	// MetricConfirmLatency is an exported constant or variable used by the enrollment engine.
	MetricConfirmLatency

	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricEnrollmentIssued:           "enrollment_issued",
	MetricEnrollmentIssueFailure:     "enrollment_issue_failure",
	MetricEnrollmentConfirmSuccess:   "enrollment_confirm_success",
	MetricEnrollmentConfirmFailure:   "enrollment_confirm_failure",
	MetricEnrollmentAttemptsExceeded: "enrollment_attempts_exceeded",
	MetricEnrollmentCancelled:        "enrollment_cancelled",
	MetricEnrollmentExpired:          "enrollment_expired",
	MetricEnrollmentRateLimited:      "enrollment_rate_limited",
	MetricCodeVerifySuccess:          "code_verify_success",
	MetricCodeVerifyFailure:          "code_verify_failure",
	MetricCodeReplayRejected:         "code_replay_rejected",
	MetricTOTPDisabled:               "totp_disabled",
	MetricBackupCodeUsed:             "backup_code_used",
	MetricBackupCodeFailed:           "backup_code_failed",
	MetricConfirmLatency:             "confirm_latency",
}

// String describes the string operation and its observable behavior.
func (id MetricID) String() string {
	if id < metricIDCount {
		return metricNames[id]
	}
	return "unknown"
}

const cacheLineSize = 64

// paddedCounter occupies a full cache line so adjacent counters do not
// false-share under concurrent increments.
type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

const latencyBucketCount = 8

// latencyBucketBounds are upper bounds in milliseconds; the last bucket is +Inf.
var latencyBucketBounds = [latencyBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 1000}

type latencyHistogram struct {
	buckets [latencyBucketCount]paddedCounter
	sum     atomic.Int64
	count   atomic.Uint64
}

func (h *latencyHistogram) observe(d time.Duration) {
	ms := d.Milliseconds()
	h.sum.Add(ms)
	h.count.Add(1)
	h.buckets[bucketIndex(ms)].value.Add(1)
}

func bucketIndex(ms int64) int {
	for i, bound := range latencyBucketBounds {
		if ms <= bound {
			return i
		}
	}
	return latencyBucketCount - 1
}

// Metrics defines a public type used by goEnroll APIs.
//
// Metrics is a lock-free in-process recorder. It has no export dependencies;
// the metrics/export subpackages translate snapshots for OpenTelemetry or
// Prometheus scrapes.
type Metrics struct {
	enabled    bool
	histograms bool
	counters   [metricIDCount]paddedCounter
	confirm    latencyHistogram
}

func newMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:    cfg.Enabled,
		histograms: cfg.EnableLatencyHistograms,
	}
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Observe describes the observe operation and its observable behavior.
//
// Observe does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.histograms {
		return
	}
	if id == MetricConfirmLatency {
		m.confirm.observe(d)
	}
}

// HistogramSnapshot defines a public type used by goEnroll APIs.
//
// HistogramSnapshot instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type HistogramSnapshot struct {
	Buckets [latencyBucketCount]uint64
	SumMS   int64
	Count   uint64
}

// MetricsSnapshot defines a public type used by goEnroll APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[string]uint64
	Histograms map[string]HistogramSnapshot
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   make(map[string]uint64, int(metricIDCount)),
		Histograms: make(map[string]HistogramSnapshot, 1),
	}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricConfirmLatency {
			continue
		}
		snap.Counters[id.String()] = m.counters[id].value.Load()
	}
	if m.histograms {
		var h HistogramSnapshot
		for i := range m.confirm.buckets {
			h.Buckets[i] = m.confirm.buckets[i].value.Load()
		}
		h.SumMS = m.confirm.sum.Load()
		h.Count = m.confirm.count.Load()
		snap.Histograms[MetricConfirmLatency.String()] = h
	}
	return snap
}
