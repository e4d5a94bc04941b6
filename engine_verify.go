package goEnroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goEnroll/internal/codes"
)

// VerifyCode describes the verify code operation and its observable behavior.
//
// VerifyCode checks an authenticator code for a user whose enrollment is
// already confirmed. With replay protection on, a code is accepted only when
// its time-step counter is strictly greater than the last accepted one.
//
// VerifyCode may return an error when input validation, dependency calls, or security checks
// fail. It does not mutate shared global state and can be used concurrently when the receiver
// and dependencies are concurrently safe.
func (e *Engine) VerifyCode(ctx context.Context, userID, code string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUserNotFound
	}
	if code == "" {
		return ErrCodeRequired
	}

	tenantID := tenantIDFromContext(ctx)
	if err := e.verifyLimiter.Check(ctx, tenantID, userID); err != nil {
		if errors.Is(err, errCodeRateLimited) {
			e.emitRateLimit(ctx, userID, "verify_code")
			return ErrEnrollmentRateLimited
		}
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	totpRec, err := e.totpRecordFor(ctx, userID)
	if err != nil {
		return err
	}

	counter, ok := e.totp.VerifyCode(totpRec.Secret, code, time.Now())
	if !ok {
		return e.verifyFailed(ctx, tenantID, userID, ErrCodeInvalid)
	}
	if e.config.TOTP.EnforceReplayProtection {
		if counter <= totpRec.LastUsedCounter {
			e.metricInc(MetricCodeReplayRejected)
			return e.verifyFailed(ctx, tenantID, userID, ErrCodeReplayed)
		}
		if err := e.userProvider.UpdateTOTPLastUsedCounter(ctx, userID, counter); err != nil {
			return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
		}
	}

	if err := e.verifyLimiter.Reset(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	e.metricInc(MetricCodeVerifySuccess)
	e.emitAudit(ctx, auditCodeVerified, true, userID, "", nil, nil)
	return nil
}

// VerifyBackupCode describes the verify backup code operation and its observable behavior.
//
// VerifyBackupCode consumes a single-use recovery code. Entry formatting is
// forgiving: case, hyphens, and spaces are ignored before hashing.
//
// VerifyBackupCode may return an error when input validation, dependency calls, or security
// checks fail. It does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUserNotFound
	}
	canonical := codes.Canonicalize(code)
	if canonical == "" {
		return ErrCodeRequired
	}

	tenantID := tenantIDFromContext(ctx)
	if err := e.verifyLimiter.Check(ctx, tenantID, userID); err != nil {
		if errors.Is(err, errCodeRateLimited) {
			e.emitRateLimit(ctx, userID, "verify_backup_code")
			return ErrEnrollmentRateLimited
		}
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	consumed, err := e.userProvider.ConsumeBackupCode(ctx, userID, codes.Hash(userID, canonical))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	if !consumed {
		e.metricInc(MetricBackupCodeFailed)
		if lerr := e.verifyLimiter.RecordFailure(ctx, tenantID, userID); lerr != nil {
			return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, lerr)
		}
		e.emitAudit(ctx, auditBackupCodeRejected, false, userID, "", ErrBackupCodeInvalid, nil)
		return ErrBackupCodeInvalid
	}

	if err := e.verifyLimiter.Reset(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditBackupCodeUsed, true, userID, "", nil, nil)
	return nil
}

// DisableTOTP describes the disable totp operation and its observable behavior.
//
// DisableTOTP removes the stored secret and backup codes after re-verifying a
// current authenticator code. Disabling is deliberately gated on a valid code
// so a hijacked session cannot silently weaken the account.
//
// DisableTOTP may return an error when input validation, dependency calls, or security checks
// fail. It does not mutate shared global state and can be used concurrently when the receiver
// and dependencies are concurrently safe.
func (e *Engine) DisableTOTP(ctx context.Context, userID, code string) error {
	if err := e.VerifyCode(ctx, userID, code); err != nil {
		return err
	}
	if err := e.userProvider.DisableTOTP(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditTOTPDisabled, true, userID, "", nil, nil)
	return nil
}

// totpRecordFor loads and sanity-checks the user's confirmed TOTP material.
func (e *Engine) totpRecordFor(ctx context.Context, userID string) (*TOTPRecord, error) {
	rec, err := e.userProvider.GetTOTPSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	if rec == nil || !rec.Enabled || len(rec.Secret) == 0 {
		return nil, ErrTOTPNotConfigured
	}
	return rec, nil
}

func (e *Engine) verifyFailed(ctx context.Context, tenantID, userID string, cause error) error {
	e.metricInc(MetricCodeVerifyFailure)
	if err := e.verifyLimiter.RecordFailure(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	e.emitAudit(ctx, auditCodeRejected, false, userID, "", cause, nil)
	return cause
}
