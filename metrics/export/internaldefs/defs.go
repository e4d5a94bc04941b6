// Package internaldefs holds the shared metric naming tables used by the
// otel and prometheus exporters, so both emit identical series names for the
// same engine snapshot.
package internaldefs

import (
	"fmt"
	"math"
)

// CounterDef maps an engine snapshot counter key to an exported series.
type CounterDef struct {
	// Key is the Snapshot().Counters map key.
	Key string

	// Name is the exported metric name.
	Name string

	// Help is the human description emitted by text-format exporters.
	Help string
}

// HistogramDef maps an engine snapshot histogram key to an exported series.
type HistogramDef struct {
	Key  string
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{Key: "enrollment_issued", Name: "goenroll_enrollment_issued_total", Help: "Enrollments issued."},
	{Key: "enrollment_issue_failure", Name: "goenroll_enrollment_issue_failures_total", Help: "Enrollment issue attempts rejected or failed."},
	{Key: "enrollment_confirm_success", Name: "goenroll_enrollment_confirm_success_total", Help: "Enrollments confirmed."},
	{Key: "enrollment_confirm_failure", Name: "goenroll_enrollment_confirm_failures_total", Help: "Confirmation codes rejected."},
	{Key: "enrollment_attempts_exceeded", Name: "goenroll_enrollment_attempts_exceeded_total", Help: "Pending enrollments destroyed by the attempt cap."},
	{Key: "enrollment_cancelled", Name: "goenroll_enrollment_cancelled_total", Help: "Pending enrollments cancelled."},
	{Key: "enrollment_expired", Name: "goenroll_enrollment_expired_total", Help: "Confirmations against an expired enrollment."},
	{Key: "enrollment_rate_limited", Name: "goenroll_enrollment_rate_limited_total", Help: "Calls rejected by per-user rate windows."},
	{Key: "code_verify_success", Name: "goenroll_code_verify_success_total", Help: "Post-enrollment codes accepted."},
	{Key: "code_verify_failure", Name: "goenroll_code_verify_failures_total", Help: "Post-enrollment codes rejected."},
	{Key: "code_replay_rejected", Name: "goenroll_code_replay_rejected_total", Help: "Codes rejected by replay protection."},
	{Key: "totp_disabled", Name: "goenroll_totp_disabled_total", Help: "Accounts that disabled two-factor."},
	{Key: "backup_code_used", Name: "goenroll_backup_code_used_total", Help: "Backup codes consumed."},
	{Key: "backup_code_failed", Name: "goenroll_backup_code_failures_total", Help: "Backup codes rejected."},
}

// HistogramDefs lists every engine histogram in export order.
var HistogramDefs = []HistogramDef{
	{Key: "confirm_latency", Name: "goenroll_confirm_latency_ms", Help: "ConfirmEnrollment latency in milliseconds."},
}

// AuditDroppedName is the exported series for dispatcher drops.
const AuditDroppedName = "goenroll_audit_events_dropped_total"

// HistogramBounds are the engine's bucket upper bounds in milliseconds. The
// implicit final bucket is +Inf.
var HistogramBounds = []float64{5, 10, 25, 50, 100, 250, 1000}

// HistogramBoundSuffix renders a bound for per-bucket series names.
func HistogramBoundSuffix(i int) string {
	if i >= len(HistogramBounds) {
		return "+Inf"
	}
	return fmt.Sprintf("%g", HistogramBounds[i])
}

// CumulativeBuckets converts the engine's per-bucket counts into the
// cumulative form Prometheus and OTLP histograms expect.
func CumulativeBuckets(buckets []uint64) []uint64 {
	out := make([]uint64, len(buckets))
	var running uint64
	for i, b := range buckets {
		running += b
		out[i] = running
	}
	return out
}

// NormalizeBuckets truncates or zero-pads raw bucket counts to the canonical
// length (bounds plus the +Inf bucket).
func NormalizeBuckets(buckets []uint64) []uint64 {
	want := len(HistogramBounds) + 1
	out := make([]uint64, want)
	copy(out, buckets[:min(len(buckets), want)])
	return out
}

// SaturatingInt64 clamps a uint64 counter for APIs that take int64.
func SaturatingInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
