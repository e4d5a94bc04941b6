package goEnroll

import (
	"context"
	"time"
)

// Audit event type names emitted by the engine.
const (
	auditEnrollmentIssued        = "enrollment_issued"
	auditEnrollmentConfirmed     = "enrollment_confirmed"
	auditEnrollmentConfirmFailed = "enrollment_confirm_failed"
	auditEnrollmentCancelled     = "enrollment_cancelled"
	auditCodeVerified            = "code_verified"
	auditCodeRejected            = "code_rejected"
	auditBackupCodeUsed          = "backup_code_used"
	auditBackupCodeRejected      = "backup_code_rejected"
	auditTOTPDisabled            = "totp_disabled"
	auditRateLimitHit            = "rate_limit_hit"
)

// emitAudit assembles and queues an event. It never blocks the caller beyond
// a channel send and is a no-op when audit is disabled.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, enrollmentID string, errValue error, metadata map[string]string) {
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		UserID:       userID,
		TenantID:     tenantIDFromContext(ctx),
		EnrollmentID: enrollmentID,
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if errValue != nil {
		event.Error = errValue.Error()
	}
	e.audit.Emit(event)
}

func (e *Engine) emitRateLimit(ctx context.Context, userID, operation string) {
	e.metricInc(MetricEnrollmentRateLimited)
	e.emitAudit(ctx, auditRateLimitHit, false, userID, "", ErrEnrollmentRateLimited,
		map[string]string{"operation": operation})
}
