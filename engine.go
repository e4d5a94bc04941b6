package goEnroll

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Engine defines a public type used by goEnroll APIs.
//
// Engine is the two-factor enrollment core. Construct it through Builder;
// the zero value is not usable. All methods are safe for concurrent use.
type Engine struct {
	config Config

	redis        *redis.Client
	userProvider UserProvider

	totp           *totpManager
	pendingStore   *pendingEnrollmentStore
	confirmLimiter *codeLimiter
	verifyLimiter  *codeLimiter

	audit   *auditDispatcher
	metrics *Metrics

	ready bool
}

// Close describes the close operation and its observable behavior.
//
// Close drains the audit queue and releases engine-owned resources. The Redis
// client is caller-owned and is not closed.
func (e *Engine) Close() {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot describes the metrics snapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped describes the audit dropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	e.metrics.Observe(id, d)
}
